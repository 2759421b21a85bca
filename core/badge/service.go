package badge

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/lifecraft/backend/core"
	"github.com/lifecraft/backend/core/learning"
	"github.com/lifecraft/backend/core/user"
)

var (
	// errors
	ErrAlreadyAwarded = errors.New("badge already awarded")
)

type (
	Repository interface {
		QueryUserAwards(ctx context.Context, userID string) ([]Award, error)
		// CreateAward returns ErrAlreadyAwarded when (user, name) already exists.
		CreateAward(ctx context.Context, award Award) (Award, error)
	}

	Service interface {
		// Evaluate runs the rule list for the user and returns newly earned badges.
		Evaluate(ctx context.Context, userID string) ([]Badge, error)
		// AllBadges returns the user's earned-badge snapshot (cache-aside).
		AllBadges(ctx context.Context, userID string) ([]EarnedBadge, error)
		// NewBadges returns the short-lived newly-earned list for UI toasts.
		NewBadges(ctx context.Context, userID string) ([]Badge, error)
	}

	service struct {
		repo     Repository
		learnSvc learning.Service
		usrSvc   user.Service
		cache    core.Cache
		conf     core.BadgeConfig
		logger   core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(
	repo Repository,
	learnSvc learning.Service,
	usrSvc user.Service,
	cache core.Cache,
	conf core.BadgeConfig,
	logger core.Logger,
) Service {
	return &service{
		repo:     repo,
		learnSvc: learnSvc,
		usrSvc:   usrSvc,
		cache:    cache,
		conf:     conf,
		logger:   logger,
	}
}

func newBadgesKey(userID string) string { return "badges:new:" + userID }
func allBadgesKey(userID string) string { return "badges:all:" + userID }

// Evaluate fetches the user's earned set and stats snapshot, runs every rule
// not yet earned, awards matches (one insert + fixed bonus points each) and
// rebuilds both cache entries in full.
func (svc *service) Evaluate(ctx context.Context, userID string) ([]Badge, error) {
	awards, err := svc.repo.QueryUserAwards(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "querying user awards")
	}
	earned := make(map[string]Award, len(awards))
	for _, a := range awards {
		earned[a.Name] = a
	}

	stats, err := svc.learnSvc.Stats(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "computing achievement stats")
	}

	now := time.Now().UTC()
	newly := make([]Badge, 0, len(Rules))
	for _, rule := range Rules {
		if _, ok := earned[rule.Name]; ok {
			continue
		}
		if !rule.Predicate(stats) {
			continue
		}

		award, err := svc.repo.CreateAward(ctx, Award{UserID: userID, Name: rule.Name, AwardedAt: now})
		if errors.Cause(err) == ErrAlreadyAwarded {
			// a concurrent evaluation won the insert; skip the bonus
			continue
		} else if err != nil {
			return nil, errors.Wrap(err, "creating award")
		}
		if _, err = svc.usrSvc.AddPoints(ctx, userID, svc.conf.BonusPoints); err != nil {
			return nil, errors.Wrap(err, "adding badge bonus points")
		}

		earned[rule.Name] = award
		newly = append(newly, rule.Badge)
	}

	svc.rebuildCaches(ctx, userID, earned, newly)
	return newly, nil
}

// rebuildCaches publishes the short-lived "new badges" list and the
// longer-lived "all badges" snapshot, both rebuilt in full.
func (svc *service) rebuildCaches(ctx context.Context, userID string, earned map[string]Award, newly []Badge) {
	all := make([]EarnedBadge, 0, len(earned))
	for _, rule := range Rules { // declaration order, duplicate-free by construction
		if award, ok := earned[rule.Name]; ok {
			all = append(all, EarnedBadge{Badge: rule.Badge, AwardedAt: award.AwardedAt})
		}
	}

	if err := core.SetJSON(ctx, svc.cache, newBadgesKey(userID), newly, svc.conf.NewBadgesTTL); err != nil {
		svc.logger.Error(fmt.Sprintf("caching new badges: %v", err), err)
	}
	if err := core.SetJSON(ctx, svc.cache, allBadgesKey(userID), all, svc.conf.AllBadgesTTL); err != nil {
		svc.logger.Error(fmt.Sprintf("caching all badges: %v", err), err)
	}
}

func (svc *service) AllBadges(ctx context.Context, userID string) ([]EarnedBadge, error) {
	var cached []EarnedBadge
	err := core.GetJSON(ctx, svc.cache, allBadgesKey(userID), &cached)
	if err == nil {
		return cached, nil
	}
	if errors.Cause(err) != core.ErrCacheMiss {
		svc.logger.Error(fmt.Sprintf("reading all-badges cache: %v", err), err)
	}

	// rebuild from the source of truth
	awards, err := svc.repo.QueryUserAwards(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "querying user awards")
	}
	earned := make(map[string]Award, len(awards))
	for _, a := range awards {
		earned[a.Name] = a
	}
	all := make([]EarnedBadge, 0, len(earned))
	for _, rule := range Rules {
		if award, ok := earned[rule.Name]; ok {
			all = append(all, EarnedBadge{Badge: rule.Badge, AwardedAt: award.AwardedAt})
		}
	}

	if err = core.SetJSON(ctx, svc.cache, allBadgesKey(userID), all, svc.conf.AllBadgesTTL); err != nil {
		svc.logger.Error(fmt.Sprintf("caching all badges: %v", err), err)
	}
	return all, nil
}

func (svc *service) NewBadges(ctx context.Context, userID string) ([]Badge, error) {
	var cached []Badge
	err := core.GetJSON(ctx, svc.cache, newBadgesKey(userID), &cached)
	if errors.Cause(err) == core.ErrCacheMiss {
		return []Badge{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading new-badges cache")
	}
	if cached == nil {
		cached = []Badge{}
	}
	return cached, nil
}
