package badge

import (
	"time"

	"github.com/lifecraft/backend/core/learning"
)

// Badge is an achievement unlocked when a derived statistic crosses a fixed
// threshold.
type Badge struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

// Rule pairs a badge with the predicate that unlocks it. Rules are evaluated
// in declaration order against a single stats snapshot and have no
// dependencies between them.
type Rule struct {
	Badge
	Predicate func(stats learning.AchievementStats) bool `json:"-"`
}

// Rules is the fixed in-process rule list.
var Rules = []Rule{
	{
		Badge: Badge{Name: "First Steps", Description: "Complete your first module", Icon: "footprints"},
		Predicate: func(s learning.AchievementStats) bool {
			return s.CompletedModuleCount >= 1
		},
	},
	{
		Badge: Badge{Name: "Dedicated Learner", Description: "Complete 5 modules", Icon: "books"},
		Predicate: func(s learning.AchievementStats) bool {
			return s.CompletedModuleCount >= 5
		},
	},
	{
		Badge: Badge{Name: "Preparedness Pro", Description: "Complete 10 modules", Icon: "graduation-cap"},
		Predicate: func(s learning.AchievementStats) bool {
			return s.CompletedModuleCount >= 10
		},
	},
	{
		Badge: Badge{Name: "Sharp Shooter", Description: "Score a perfect 100 on a drill", Icon: "target"},
		Predicate: func(s learning.AchievementStats) bool {
			return s.HasPerfectScore
		},
	},
	{
		Badge: Badge{Name: "High Achiever", Description: "Keep an average score of 90 or higher", Icon: "star"},
		Predicate: func(s learning.AchievementStats) bool {
			return s.AverageScore >= 90
		},
	},
	{
		Badge: Badge{Name: "Category Champion", Description: "Complete every item in a category", Icon: "trophy"},
		Predicate: func(s learning.AchievementStats) bool {
			return s.HasCompletedFullCategory
		},
	},
}

// Catalog returns the badges of all rules, in declaration order.
func Catalog() []Badge {
	badges := make([]Badge, 0, len(Rules))
	for _, r := range Rules {
		badges = append(badges, r.Badge)
	}
	return badges
}

// Award is the persistent record of a badge earned by a user.
type Award struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	AwardedAt time.Time `json:"awarded_at"` // UTC
}

// EarnedBadge is a badge joined with when it was awarded; this is the shape
// cached for the dashboard.
type EarnedBadge struct {
	Badge
	AwardedAt time.Time `json:"awarded_at"`
}
