package recommend

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/lifecraft/backend/core"
	"github.com/lifecraft/backend/core/badge"
	"github.com/lifecraft/backend/core/learning"
	"github.com/lifecraft/backend/core/user"
)

type (
	// Generator is any text-generation backend able to answer a prompt.
	Generator interface {
		Generate(ctx context.Context, prompt string) (string, error)
	}

	Service interface {
		// Recommend returns at most MaxRecommendations items for the user,
		// serving from cache when possible.
		Recommend(ctx context.Context, usr user.User) (Result, error)
	}

	service struct {
		gen      Generator
		learnSvc learning.Service
		badgeSvc badge.Service
		cache    core.Cache
		conf     core.RecommendConfig
		logger   core.Logger
		nowFunc  func() time.Time // mockable
	}
)

var _ Service = (*service)(nil)

func NewService(
	gen Generator,
	learnSvc learning.Service,
	badgeSvc badge.Service,
	cache core.Cache,
	conf core.RecommendConfig,
	logger core.Logger,
) Service {
	return &service{
		gen:      gen,
		learnSvc: learnSvc,
		badgeSvc: badgeSvc,
		cache:    cache,
		conf:     conf,
		logger:   logger,
		nowFunc:  time.Now,
	}
}

func resultKey(userID string) string   { return "recommend:" + userID }
func metadataKey(userID string) string { return "recommend:meta:" + userID }

func (svc *service) Recommend(ctx context.Context, usr user.User) (Result, error) {
	var cached []Recommendation
	err := core.GetJSON(ctx, svc.cache, resultKey(usr.ID), &cached)
	if err == nil {
		return Result{Recommendations: cached, FromCache: true}, nil
	}
	if errors.Cause(err) != core.ErrCacheMiss {
		svc.logger.Error(fmt.Sprintf("reading recommendation cache: %v", err), err)
	}

	available, err := svc.learnSvc.Available(ctx, usr.ID)
	if err != nil {
		return Result{}, errors.Wrap(err, "querying available items")
	}
	if len(available) == 0 {
		// nothing left to recommend; generation is never invoked
		return Result{Recommendations: []Recommendation{}}, nil
	}

	completed, err := svc.learnSvc.UserCompletions(ctx, usr.ID)
	if err != nil {
		return Result{}, errors.Wrap(err, "querying user completions")
	}
	stats, err := svc.learnSvc.Stats(ctx, usr.ID)
	if err != nil {
		return Result{}, errors.Wrap(err, "computing achievement stats")
	}
	earned, err := svc.badgeSvc.AllBadges(ctx, usr.ID)
	if err != nil {
		return Result{}, errors.Wrap(err, "querying earned badges")
	}

	started := svc.nowFunc()
	recs, source := svc.generate(ctx, usr, stats, completed, earned, available)
	latency := svc.nowFunc().Sub(started)

	if err = core.SetJSON(ctx, svc.cache, resultKey(usr.ID), recs, svc.conf.CacheTTL); err != nil {
		svc.logger.Error(fmt.Sprintf("caching recommendations: %v", err), err)
	}
	meta := Metadata{
		UserID:      usr.ID,
		GeneratedAt: started.UTC(),
		LatencyMS:   latency.Milliseconds(),
		Source:      source,
	}
	if err = core.SetJSON(ctx, svc.cache, metadataKey(usr.ID), meta, svc.conf.CacheTTL); err != nil {
		svc.logger.Error(fmt.Sprintf("caching recommendation metadata: %v", err), err)
	}

	return Result{Recommendations: recs}, nil
}

// generate asks the model for suggestions and falls back to the difficulty
// heuristic on any call or parse failure.
func (svc *service) generate(
	ctx context.Context,
	usr user.User,
	stats learning.AchievementStats,
	completed []learning.CompletedItem,
	earned []badge.EarnedBadge,
	available []learning.Item,
) ([]Recommendation, string) {
	prompt := buildPrompt(usr, stats, completed, earned, available)

	raw, err := svc.gen.Generate(ctx, prompt)
	if err != nil {
		svc.logger.Warn(fmt.Sprintf("recommendation generation failed, using fallback: %v", err), err)
		return fallback(available, stats.AverageScore), "fallback"
	}

	recs, err := parseRecommendations(raw)
	if err != nil {
		svc.logger.Warn(fmt.Sprintf("parsing generated recommendations failed, using fallback: %v", err), err)
		return fallback(available, stats.AverageScore), "fallback"
	}

	return normalize(recs, available), "ai"
}

// parseRecommendations strips code-fence markers and decodes the raw model
// output.
func parseRecommendations(raw string) ([]Recommendation, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var recs []Recommendation
	if err := json.Unmarshal([]byte(cleaned), &recs); err != nil {
		return nil, errors.Wrap(err, "decoding recommendations JSON")
	}
	return recs, nil
}

// normalize drops entries the model made up or repeated, keeps at most
// MaxRecommendations, fills missing fields with defaults and tops the list up
// from the available items when too few survive.
func normalize(recs []Recommendation, available []learning.Item) []Recommendation {
	byID := make(map[string]learning.Item, len(available))
	for _, item := range available {
		byID[item.ID] = item
	}

	seen := make(map[string]bool, len(recs))
	out := make([]Recommendation, 0, MaxRecommendations)
	for _, rec := range recs {
		if len(out) >= MaxRecommendations {
			break
		}
		item, ok := byID[rec.ItemID]
		if !ok || seen[rec.ItemID] {
			// only items the user can actually take next
			continue
		}
		if rec.Title == "" {
			rec.Title = item.Title
		}
		if rec.Reason == "" {
			rec.Reason = defaultReason
		}
		seen[rec.ItemID] = true
		out = append(out, rec)
	}

	for _, item := range available {
		if len(out) >= MaxRecommendations {
			break
		}
		if seen[item.ID] {
			continue
		}
		out = append(out, Recommendation{ItemID: item.ID, Title: item.Title, Reason: defaultReason})
	}
	return out
}

// fallback scores each available item by the difficulty-vs-average-score
// table and returns the top entries, stable by iteration order.
func fallback(available []learning.Item, averageScore float64) []Recommendation {
	ranked := rankFallback(available, averageScore)
	if len(ranked) > MaxRecommendations {
		ranked = ranked[:MaxRecommendations]
	}
	recs := make([]Recommendation, 0, len(ranked))
	for _, item := range ranked {
		recs = append(recs, Recommendation{
			ItemID: item.ID,
			Title:  item.Title,
			Reason: fmt.Sprintf("A %s %s to match your current level", item.Difficulty, item.Kind),
		})
	}
	return recs
}

func buildPrompt(
	usr user.User,
	stats learning.AchievementStats,
	completed []learning.CompletedItem,
	earned []badge.EarnedBadge,
	available []learning.Item,
) string {
	var b strings.Builder
	b.WriteString("You are the recommendation engine of a disaster-preparedness training app.\n")
	b.WriteString("Pick the 3 best next learning items for this user.\n\n")

	fmt.Fprintf(&b, "User: %s (rank %s, %d points, average score %.1f)\n",
		usr.Name, usr.Rank().Name, usr.Points, stats.AverageScore)

	b.WriteString("Earned badges:")
	if len(earned) == 0 {
		b.WriteString(" none")
	}
	for _, eb := range earned {
		fmt.Fprintf(&b, " %q", eb.Name)
	}
	b.WriteString("\n\nCompleted items:\n")
	for _, ci := range completed {
		fmt.Fprintf(&b, "- %s (%s, %s, score %d)\n", ci.Title, ci.Kind, ci.Difficulty, ci.Score)
	}
	b.WriteString("\nAvailable items:\n")
	for _, item := range available {
		fmt.Fprintf(&b, "- id=%s title=%q kind=%s category=%s difficulty=%s\n",
			item.ID, item.Title, item.Kind, item.Category, item.Difficulty)
	}

	b.WriteString("\nAnswer with raw JSON only (no code fences, no prose): an array of exactly 3 objects ")
	b.WriteString(`shaped {"item_id": "...", "title": "...", "reason": "..."}, ranked best first. `)
	b.WriteString("Every item_id must come from the available items above.\n")
	return b.String()
}
