package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/lifecraft/backend/core/badge"
)

type badgeRepository struct {
	db *awardTable
}

func NewBadgeRepository(db *DB) badge.Repository {
	return &badgeRepository{db: db.award}
}

var _ badge.Repository = (*badgeRepository)(nil)

func (repo *badgeRepository) QueryUserAwards(_ context.Context, userID string) ([]badge.Award, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	awards := make([]badge.Award, 0)
	for _, a := range repo.db.table {
		if a.UserID == userID {
			awards = append(awards, *a)
		}
	}
	sort.Slice(awards, func(i, j int) bool { return awards[i].AwardedAt.Before(awards[j].AwardedAt) })
	return awards, nil
}

func (repo *badgeRepository) CreateAward(_ context.Context, award badge.Award) (badge.Award, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, a := range repo.db.table {
		if a.UserID == award.UserID && a.Name == award.Name {
			return badge.Award{}, badge.ErrAlreadyAwarded
		}
	}
	award.ID = uuid.NewString()
	repo.db.table[award.ID] = &award
	return award, nil
}
