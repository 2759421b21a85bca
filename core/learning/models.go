package learning

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/lifecraft/backend/core"
)

// Kinds of learning content a learner progresses through.
const (
	KindModule   = "module"
	KindDrill    = "drill"
	KindTutorial = "tutorial"
)

// Difficulty tiers
const (
	DifficultyBeginner     = "beginner"
	DifficultyIntermediate = "intermediate"
	DifficultyAdvanced     = "advanced"
)

var (
	AllKinds        = []string{KindModule, KindDrill, KindTutorial}
	AllDifficulties = []string{DifficultyBeginner, DifficultyIntermediate, DifficultyAdvanced}
)

// Item is a single piece of learning content: a module, a scored drill or a
// first-aid tutorial.
type Item struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Title      string    `json:"title"`
	Summary    string    `json:"summary"`
	Category   string    `json:"category"`
	Difficulty string    `json:"difficulty"`
	Points     int       `json:"points"`
	Locked     bool      `json:"locked"`
	CreatedAt  time.Time `json:"created_at"` // UTC
	UpdatedAt  time.Time `json:"updated_at"` // UTC
}

// Completion records that a user finished an item. Score is 0-100; non-drill
// completions record 100.
type Completion struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	ItemID      string    `json:"item_id"`
	Score       int       `json:"score"`
	CompletedAt time.Time `json:"completed_at"` // UTC
}

// CompletedItem is a completion joined with its item, as needed by the stats
// pass and the profile API.
type CompletedItem struct {
	Item
	Score       int       `json:"score"`
	CompletedAt time.Time `json:"completed_at"`
}

// AchievementStats is the per-user snapshot the badge rules evaluate against.
type AchievementStats struct {
	CompletedModuleCount     int     `json:"completed_module_count"`
	AverageScore             float64 `json:"average_score"`
	HasPerfectScore          bool    `json:"has_perfect_score"`
	HasCompletedFullCategory bool    `json:"has_completed_full_category"`
}

// ComputeStats derives AchievementStats in one pass over a user's completed
// items, cross-referenced against per-category item totals to detect a fully
// completed category.
func ComputeStats(completed []CompletedItem, categoryTotals map[string]int) AchievementStats {
	var stats AchievementStats
	if len(completed) == 0 {
		return stats
	}

	var scoreSum int
	categoryCounts := make(map[string]int)
	for _, ci := range completed {
		if ci.Kind == KindModule {
			stats.CompletedModuleCount++
		}
		scoreSum += ci.Score
		if ci.Score >= 100 {
			stats.HasPerfectScore = true
		}
		categoryCounts[ci.Category]++
	}
	stats.AverageScore = float64(scoreSum) / float64(len(completed))

	for category, count := range categoryCounts {
		if total := categoryTotals[category]; total > 0 && count >= total {
			stats.HasCompletedFullCategory = true
			break
		}
	}
	return stats
}

// NewItem contains information needed to create a new Item.
type NewItem struct {
	Kind       string `json:"kind" validate:"required,oneof=module drill tutorial"`
	Title      string `json:"title" validate:"required"`
	Summary    string `json:"summary"`
	Category   string `json:"category" validate:"required"`
	Difficulty string `json:"difficulty" validate:"required,oneof=beginner intermediate advanced"`
	Points     int    `json:"points" validate:"min=0"`
	Locked     bool   `json:"locked"`
}

func (ni *NewItem) Validate(validate *validator.Validate) error {
	ni.Kind = core.CleanString(ni.Kind, true /* lower */)
	ni.Title = core.CleanString(ni.Title)
	ni.Summary = core.CleanString(ni.Summary)
	ni.Category = core.CleanString(ni.Category, true /* lower */)
	ni.Difficulty = core.CleanString(ni.Difficulty, true /* lower */)
	return validate.Struct(ni)
}

// UpdateItem defines what information may be provided to modify an existing Item.
type UpdateItem struct {
	Title      string `json:"title"`
	Summary    string `json:"summary"`
	Category   string `json:"category"`
	Difficulty string `json:"difficulty" validate:"omitempty,oneof=beginner intermediate advanced"`
	Points     *int   `json:"points" validate:"omitempty,min=0"`
	Locked     *bool  `json:"locked"`
}

func (ui *UpdateItem) Validate(validate *validator.Validate, orig Item) error {
	if title := core.CleanString(ui.Title); title != "" {
		ui.Title = title
	} else {
		ui.Title = orig.Title
	}
	if summary := core.CleanString(ui.Summary); summary != "" {
		ui.Summary = summary
	} else {
		ui.Summary = orig.Summary
	}
	if category := core.CleanString(ui.Category, true /* lower */); category != "" {
		ui.Category = category
	} else {
		ui.Category = orig.Category
	}
	if difficulty := core.CleanString(ui.Difficulty, true /* lower */); difficulty != "" {
		ui.Difficulty = difficulty
	} else {
		ui.Difficulty = orig.Difficulty
	}
	return validate.Struct(ui)
}

// CompleteItem is the payload recording a completion; drills submit their
// score, other kinds default to 100.
type CompleteItem struct {
	Score *int `json:"score" validate:"omitempty,min=0,max=100"`
}

func (ci CompleteItem) Validate(validate *validator.Validate) error {
	return validate.Struct(ci)
}

type QueryFilter struct {
	Kind          string `query:"kind"`
	Category      string `query:"category"`
	Difficulty    string `query:"difficulty"`
	IncludeLocked bool   `query:"-"` // set from the caller's role, never bound
}

func (qf *QueryFilter) Clean() {
	qf.Kind = core.CleanString(qf.Kind, true /* lower */)
	qf.Category = core.CleanString(qf.Category, true /* lower */)
	qf.Difficulty = core.CleanString(qf.Difficulty, true /* lower */)
}
