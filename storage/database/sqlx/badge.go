package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/lifecraft/backend/core/badge"
)

type awardRow struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	Name      string    `db:"name"`
	AwardedAt time.Time `db:"awarded_at"`
}

func (r awardRow) toAward() badge.Award {
	return badge.Award{
		ID:        r.ID,
		UserID:    r.UserID,
		Name:      r.Name,
		AwardedAt: r.AwardedAt.UTC(),
	}
}

type badgeRepository struct {
	db *sqlx.DB
}

func NewBadgeRepository(db *sqlx.DB) badge.Repository {
	return &badgeRepository{db: db}
}

var _ badge.Repository = (*badgeRepository)(nil)

func (repo *badgeRepository) QueryUserAwards(ctx context.Context, userID string) ([]badge.Award, error) {
	var rows []awardRow
	q := `SELECT id, user_id, name, awarded_at FROM badge_award WHERE user_id = $1 ORDER BY awarded_at`
	if err := repo.db.SelectContext(ctx, &rows, q, userID); err != nil {
		return nil, errors.Wrap(err, "querying user awards")
	}
	awards := make([]badge.Award, 0, len(rows))
	for _, r := range rows {
		awards = append(awards, r.toAward())
	}
	return awards, nil
}

func (repo *badgeRepository) CreateAward(ctx context.Context, award badge.Award) (badge.Award, error) {
	q := `
		INSERT INTO badge_award (user_id, name, awarded_at)
		VALUES ($1, $2, $3)
		RETURNING id, user_id, name, awarded_at`
	var row awardRow
	err := repo.db.GetContext(ctx, &row, q, award.UserID, award.Name, award.AwardedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return badge.Award{}, badge.ErrAlreadyAwarded
		}
		return badge.Award{}, errors.Wrap(err, "creating award")
	}
	return row.toAward(), nil
}
