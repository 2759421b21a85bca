package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lifecraft/backend/core"
	"github.com/lifecraft/backend/core/learning"
)

type learningRepository struct {
	items       *itemTable
	completions *completionTable
}

func NewLearningRepository(db *DB) learning.Repository {
	return &learningRepository{items: db.item, completions: db.completion}
}

var _ learning.Repository = (*learningRepository)(nil)

func (repo *learningRepository) queryItems() []learning.Item {
	items := make([]learning.Item, 0, len(repo.items.table))
	for _, item := range repo.items.table {
		items = append(items, *item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })
	return items
}

func (repo *learningRepository) CreateItem(_ context.Context, item learning.Item) (learning.Item, error) {
	repo.items.mutex.Lock()
	defer repo.items.mutex.Unlock()

	item.ID = uuid.NewString()
	repo.items.table[item.ID] = &item
	return item, nil
}

func (repo *learningRepository) UpdateItem(_ context.Context, item learning.Item, locked *bool) (learning.Item, error) {
	repo.items.mutex.Lock()
	defer repo.items.mutex.Unlock()

	orig, ok := repo.items.table[item.ID]
	if !ok {
		return learning.Item{}, learning.ErrNotFound
	}
	if item.Title != "" {
		orig.Title = item.Title
	}
	if item.Summary != "" {
		orig.Summary = item.Summary
	}
	if item.Category != "" {
		orig.Category = item.Category
	}
	if item.Difficulty != "" {
		orig.Difficulty = item.Difficulty
	}
	if item.Points >= 0 {
		orig.Points = item.Points
	}
	if locked != nil {
		orig.Locked = *locked
	}
	if !item.UpdatedAt.IsZero() {
		orig.UpdatedAt = item.UpdatedAt
	}
	return *orig, nil
}

func (repo *learningRepository) DeleteItemsByID(_ context.Context, ids ...string) error {
	repo.items.mutex.Lock()
	defer repo.items.mutex.Unlock()
	for _, id := range ids {
		delete(repo.items.table, id)
	}
	return nil
}

func (repo *learningRepository) GetItemByID(_ context.Context, id string) (learning.Item, error) {
	repo.items.mutex.RLock()
	defer repo.items.mutex.RUnlock()

	if item, ok := repo.items.table[id]; ok {
		return *item, nil
	}
	return learning.Item{}, learning.ErrNotFound
}

func (repo *learningRepository) QueryItems(_ context.Context, filter *learning.QueryFilter, ordering []core.DBOrdering) ([]learning.Item, error) {
	repo.items.mutex.RLock()
	defer repo.items.mutex.RUnlock()

	items := make([]learning.Item, 0)
	for _, item := range repo.queryItems() {
		if filter != nil && !matchesItemFilter(item, filter) {
			continue
		}
		items = append(items, item)
	}
	orderItems(items, ordering)
	return items, nil
}

func matchesItemFilter(item learning.Item, filter *learning.QueryFilter) bool {
	if item.Locked && !filter.IncludeLocked {
		return false
	}
	if filter.Kind != "" && item.Kind != filter.Kind {
		return false
	}
	if filter.Category != "" && item.Category != filter.Category {
		return false
	}
	if filter.Difficulty != "" && item.Difficulty != filter.Difficulty {
		return false
	}
	return true
}

func orderItems(items []learning.Item, ordering []core.DBOrdering) {
	if len(ordering) == 0 {
		return
	}
	sort.SliceStable(items, func(i, j int) bool {
		for _, ord := range ordering {
			cmp := compareItems(items[i], items[j], ord.Field)
			if cmp == 0 {
				continue
			}
			if ord.Ascending {
				return cmp < 0
			}
			return cmp > 0
		}
		return false
	})
}

func compareItems(a, b learning.Item, field string) int {
	switch field {
	case "title":
		return strings.Compare(a.Title, b.Title)
	case "category":
		return strings.Compare(a.Category, b.Category)
	case "difficulty":
		return strings.Compare(a.Difficulty, b.Difficulty)
	case "points":
		return a.Points - b.Points
	case "created_at":
		return timeCompare(a.CreatedAt, b.CreatedAt)
	case "updated_at":
		return timeCompare(a.UpdatedAt, b.UpdatedAt)
	}
	return 0
}

func (repo *learningRepository) CountItemsByCategory(_ context.Context) (map[string]int, error) {
	repo.items.mutex.RLock()
	defer repo.items.mutex.RUnlock()

	totals := make(map[string]int)
	for _, item := range repo.items.table {
		if item.Locked {
			continue
		}
		totals[item.Category]++
	}
	return totals, nil
}

func (repo *learningRepository) QueryAvailableItems(_ context.Context, userID string) ([]learning.Item, error) {
	repo.completions.mutex.RLock()
	completed := make(map[string]bool)
	for _, cmp := range repo.completions.table {
		if cmp.UserID == userID {
			completed[cmp.ItemID] = true
		}
	}
	repo.completions.mutex.RUnlock()

	repo.items.mutex.RLock()
	defer repo.items.mutex.RUnlock()

	items := make([]learning.Item, 0)
	for _, item := range repo.queryItems() {
		if item.Locked || completed[item.ID] {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func (repo *learningRepository) GetCompletion(_ context.Context, userID, itemID string) (learning.Completion, error) {
	repo.completions.mutex.RLock()
	defer repo.completions.mutex.RUnlock()

	for _, cmp := range repo.completions.table {
		if cmp.UserID == userID && cmp.ItemID == itemID {
			return *cmp, nil
		}
	}
	return learning.Completion{}, learning.ErrNotFound
}

func (repo *learningRepository) CreateCompletion(_ context.Context, cmp learning.Completion) (learning.Completion, error) {
	repo.completions.mutex.Lock()
	defer repo.completions.mutex.Unlock()

	cmp.ID = uuid.NewString()
	repo.completions.table[cmp.ID] = &cmp
	return cmp, nil
}

func (repo *learningRepository) UpdateCompletionScore(_ context.Context, id string, score int) (learning.Completion, error) {
	repo.completions.mutex.Lock()
	defer repo.completions.mutex.Unlock()

	cmp, ok := repo.completions.table[id]
	if !ok {
		return learning.Completion{}, learning.ErrNotFound
	}
	cmp.Score = score
	return *cmp, nil
}

func (repo *learningRepository) QueryUserCompletions(_ context.Context, userID string) ([]learning.CompletedItem, error) {
	repo.completions.mutex.RLock()
	completions := make([]learning.Completion, 0)
	for _, cmp := range repo.completions.table {
		if cmp.UserID == userID {
			completions = append(completions, *cmp)
		}
	}
	repo.completions.mutex.RUnlock()
	sort.Slice(completions, func(i, j int) bool {
		return completions[i].CompletedAt.Before(completions[j].CompletedAt)
	})

	repo.items.mutex.RLock()
	defer repo.items.mutex.RUnlock()

	completed := make([]learning.CompletedItem, 0, len(completions))
	for _, cmp := range completions {
		item, ok := repo.items.table[cmp.ItemID]
		if !ok {
			continue
		}
		completed = append(completed, learning.CompletedItem{
			Item:        *item,
			Score:       cmp.Score,
			CompletedAt: cmp.CompletedAt,
		})
	}
	return completed, nil
}

func timeCompare(a, b time.Time) int {
	switch {
	case a.Equal(b):
		return 0
	case a.Before(b):
		return -1
	default:
		return 1
	}
}
