package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/lifecraft/backend/core"
	"github.com/lifecraft/backend/core/learning"
)

type itemRow struct {
	ID         string    `db:"id"`
	Kind       string    `db:"kind"`
	Title      string    `db:"title"`
	Summary    string    `db:"summary"`
	Category   string    `db:"category"`
	Difficulty string    `db:"difficulty"`
	Points     int       `db:"points"`
	Locked     bool      `db:"locked"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (r itemRow) toItem() learning.Item {
	return learning.Item{
		ID:         r.ID,
		Kind:       r.Kind,
		Title:      r.Title,
		Summary:    r.Summary,
		Category:   r.Category,
		Difficulty: r.Difficulty,
		Points:     r.Points,
		Locked:     r.Locked,
		CreatedAt:  r.CreatedAt.UTC(),
		UpdatedAt:  r.UpdatedAt.UTC(),
	}
}

func toItems(rows []itemRow) []learning.Item {
	items := make([]learning.Item, 0, len(rows))
	for _, r := range rows {
		items = append(items, r.toItem())
	}
	return items
}

type completionRow struct {
	ID          string    `db:"id"`
	UserID      string    `db:"user_id"`
	ItemID      string    `db:"item_id"`
	Score       int       `db:"score"`
	CompletedAt time.Time `db:"completed_at"`
}

func (r completionRow) toCompletion() learning.Completion {
	return learning.Completion{
		ID:          r.ID,
		UserID:      r.UserID,
		ItemID:      r.ItemID,
		Score:       r.Score,
		CompletedAt: r.CompletedAt.UTC(),
	}
}

const (
	itemColumns       = `id, kind, title, summary, category, difficulty, points, locked, created_at, updated_at`
	completionColumns = `id, user_id, item_id, score, completed_at`
)

type learningRepository struct {
	db *sqlx.DB
}

func NewLearningRepository(db *sqlx.DB) learning.Repository {
	return &learningRepository{db: db}
}

var _ learning.Repository = (*learningRepository)(nil)

func (repo *learningRepository) CreateItem(ctx context.Context, item learning.Item) (learning.Item, error) {
	q := `
		INSERT INTO learning_item (kind, title, summary, category, difficulty, points, locked, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + itemColumns
	var row itemRow
	err := repo.db.GetContext(ctx, &row, q,
		item.Kind, item.Title, item.Summary, item.Category, item.Difficulty,
		item.Points, item.Locked, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return learning.Item{}, errors.Wrap(err, "creating learning item")
	}
	return row.toItem(), nil
}

func (repo *learningRepository) UpdateItem(ctx context.Context, item learning.Item, locked *bool) (learning.Item, error) {
	set := make([]string, 0, 7)
	args := make([]interface{}, 0, 8)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if item.Title != "" {
		set = append(set, "title = "+arg(item.Title))
	}
	if item.Summary != "" {
		set = append(set, "summary = "+arg(item.Summary))
	}
	if item.Category != "" {
		set = append(set, "category = "+arg(item.Category))
	}
	if item.Difficulty != "" {
		set = append(set, "difficulty = "+arg(item.Difficulty))
	}
	if item.Points >= 0 {
		set = append(set, "points = "+arg(item.Points))
	}
	if locked != nil {
		set = append(set, "locked = "+arg(*locked))
	}
	if !item.UpdatedAt.IsZero() {
		set = append(set, "updated_at = "+arg(item.UpdatedAt))
	}
	if len(set) == 0 {
		return repo.GetItemByID(ctx, item.ID)
	}

	q := `UPDATE learning_item SET ` + strings.Join(set, ", ") + ` WHERE id = ` + arg(item.ID) + ` RETURNING ` + itemColumns
	var row itemRow
	err := repo.db.GetContext(ctx, &row, q, args...)
	if err == sql.ErrNoRows {
		return learning.Item{}, learning.ErrNotFound
	} else if err != nil {
		return learning.Item{}, errors.Wrap(err, "updating learning item")
	}
	return row.toItem(), nil
}

func (repo *learningRepository) DeleteItemsByID(ctx context.Context, ids ...string) error {
	q := `DELETE FROM learning_item WHERE id = ANY($1)`
	if _, err := repo.db.ExecContext(ctx, q, pq.Array(ids)); err != nil {
		return errors.Wrap(err, "deleting learning items")
	}
	return nil
}

func (repo *learningRepository) GetItemByID(ctx context.Context, id string) (learning.Item, error) {
	var row itemRow
	q := `SELECT ` + itemColumns + ` FROM learning_item WHERE id = $1`
	err := repo.db.GetContext(ctx, &row, q, id)
	if err == sql.ErrNoRows {
		return learning.Item{}, learning.ErrNotFound
	} else if err != nil {
		return learning.Item{}, errors.Wrap(err, "getting learning item")
	}
	return row.toItem(), nil
}

var itemOrderFields = map[string]string{
	"title":      "title",
	"category":   "category",
	"difficulty": "difficulty",
	"points":     "points",
	"created_at": "created_at",
	"updated_at": "updated_at",
}

func (repo *learningRepository) QueryItems(ctx context.Context, filter *learning.QueryFilter, ordering []core.DBOrdering) ([]learning.Item, error) {
	where := make([]string, 0, 4)
	args := make([]interface{}, 0, 4)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter != nil {
		if !filter.IncludeLocked {
			where = append(where, "NOT locked")
		}
		if filter.Kind != "" {
			where = append(where, "kind = "+arg(filter.Kind))
		}
		if filter.Category != "" {
			where = append(where, "category = "+arg(filter.Category))
		}
		if filter.Difficulty != "" {
			where = append(where, "difficulty = "+arg(filter.Difficulty))
		}
	}

	q := `SELECT ` + itemColumns + ` FROM learning_item`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += orderByClause(ordering, itemOrderFields, "created_at")

	var rows []itemRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying learning items")
	}
	return toItems(rows), nil
}

func (repo *learningRepository) CountItemsByCategory(ctx context.Context) (map[string]int, error) {
	q := `SELECT category, COUNT(*) FROM learning_item WHERE NOT locked GROUP BY category`
	rows, err := repo.db.QueryxContext(ctx, q)
	if err != nil {
		return nil, errors.Wrap(err, "counting items per category")
	}
	defer func() { _ = rows.Close() }()

	totals := make(map[string]int)
	for rows.Next() {
		var category string
		var count int
		if err = rows.Scan(&category, &count); err != nil {
			return nil, errors.Wrap(err, "counting items per category")
		}
		totals[category] = count
	}
	return totals, errors.Wrap(rows.Err(), "counting items per category")
}

func (repo *learningRepository) QueryAvailableItems(ctx context.Context, userID string) ([]learning.Item, error) {
	q := `
		SELECT ` + itemColumns + ` FROM learning_item
		WHERE NOT locked
		  AND id NOT IN (SELECT item_id FROM completion WHERE user_id = $1)
		ORDER BY created_at`
	var rows []itemRow
	if err := repo.db.SelectContext(ctx, &rows, q, userID); err != nil {
		return nil, errors.Wrap(err, "querying available items")
	}
	return toItems(rows), nil
}

func (repo *learningRepository) GetCompletion(ctx context.Context, userID, itemID string) (learning.Completion, error) {
	var row completionRow
	q := `SELECT ` + completionColumns + ` FROM completion WHERE user_id = $1 AND item_id = $2`
	err := repo.db.GetContext(ctx, &row, q, userID, itemID)
	if err == sql.ErrNoRows {
		return learning.Completion{}, learning.ErrNotFound
	} else if err != nil {
		return learning.Completion{}, errors.Wrap(err, "getting completion")
	}
	return row.toCompletion(), nil
}

func (repo *learningRepository) CreateCompletion(ctx context.Context, cmp learning.Completion) (learning.Completion, error) {
	q := `
		INSERT INTO completion (user_id, item_id, score, completed_at)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + completionColumns
	var row completionRow
	err := repo.db.GetContext(ctx, &row, q, cmp.UserID, cmp.ItemID, cmp.Score, cmp.CompletedAt)
	if err != nil {
		return learning.Completion{}, errors.Wrap(err, "creating completion")
	}
	return row.toCompletion(), nil
}

func (repo *learningRepository) UpdateCompletionScore(ctx context.Context, id string, score int) (learning.Completion, error) {
	q := `UPDATE completion SET score = $1 WHERE id = $2 RETURNING ` + completionColumns
	var row completionRow
	err := repo.db.GetContext(ctx, &row, q, score, id)
	if err == sql.ErrNoRows {
		return learning.Completion{}, learning.ErrNotFound
	} else if err != nil {
		return learning.Completion{}, errors.Wrap(err, "updating completion score")
	}
	return row.toCompletion(), nil
}

func (repo *learningRepository) QueryUserCompletions(ctx context.Context, userID string) ([]learning.CompletedItem, error) {
	q := `
		SELECT i.id, i.kind, i.title, i.summary, i.category, i.difficulty, i.points, i.locked,
		       i.created_at, i.updated_at, c.score, c.completed_at
		FROM completion c
		JOIN learning_item i ON i.id = c.item_id
		WHERE c.user_id = $1
		ORDER BY c.completed_at`
	rows, err := repo.db.QueryxContext(ctx, q, userID)
	if err != nil {
		return nil, errors.Wrap(err, "querying user completions")
	}
	defer func() { _ = rows.Close() }()

	completed := make([]learning.CompletedItem, 0)
	for rows.Next() {
		var ir itemRow
		var score int
		var completedAt time.Time
		if err = rows.Scan(
			&ir.ID, &ir.Kind, &ir.Title, &ir.Summary, &ir.Category, &ir.Difficulty,
			&ir.Points, &ir.Locked, &ir.CreatedAt, &ir.UpdatedAt, &score, &completedAt,
		); err != nil {
			return nil, errors.Wrap(err, "querying user completions")
		}
		completed = append(completed, learning.CompletedItem{
			Item:        ir.toItem(),
			Score:       score,
			CompletedAt: completedAt.UTC(),
		})
	}
	return completed, errors.Wrap(rows.Err(), "querying user completions")
}
