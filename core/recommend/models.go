package recommend

import (
	"sort"
	"time"

	"github.com/lifecraft/backend/core/learning"
)

// MaxRecommendations bounds every response.
const MaxRecommendations = 3

// Recommendation is a single suggested learning item.
type Recommendation struct {
	ItemID string `json:"item_id"`
	Title  string `json:"title"`
	Reason string `json:"reason"`
}

const defaultReason = "Recommended for you"

// Result is the recommendation response; FromCache marks cache hits.
type Result struct {
	Recommendations []Recommendation `json:"recommendations"`
	FromCache       bool             `json:"from_cache"`
}

// Metadata is the diagnostics record written alongside each generated result.
type Metadata struct {
	UserID      string    `json:"user_id"`
	GeneratedAt time.Time `json:"generated_at"`
	LatencyMS   int64     `json:"latency_ms"`
	Source      string    `json:"source"` // "ai" | "fallback"
}

// difficultyScore ranks an item's difficulty against the user's average score:
// skill-matched difficulty scores highest.
func difficultyScore(difficulty string, averageScore float64) int {
	var table map[string]int
	switch {
	case averageScore >= 80:
		table = map[string]int{
			learning.DifficultyAdvanced:     3,
			learning.DifficultyIntermediate: 2,
			learning.DifficultyBeginner:     1,
		}
	case averageScore >= 60:
		table = map[string]int{
			learning.DifficultyIntermediate: 3,
			learning.DifficultyBeginner:     2,
			learning.DifficultyAdvanced:     1,
		}
	default:
		table = map[string]int{
			learning.DifficultyBeginner:     3,
			learning.DifficultyIntermediate: 2,
			learning.DifficultyAdvanced:     1,
		}
	}
	return table[difficulty]
}

// rankFallback orders available items by the difficulty heuristic. The sort is
// stable: ties keep the incoming iteration order.
func rankFallback(available []learning.Item, averageScore float64) []learning.Item {
	ranked := make([]learning.Item, len(available))
	copy(ranked, available)
	sort.SliceStable(ranked, func(i, j int) bool {
		return difficultyScore(ranked[i].Difficulty, averageScore) > difficultyScore(ranked[j].Difficulty, averageScore)
	})
	return ranked
}
