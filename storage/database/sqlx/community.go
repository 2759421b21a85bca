package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/lifecraft/backend/core/community"
)

type sessionRow struct {
	ID              string    `db:"id"`
	Title           string    `db:"title"`
	Description     string    `db:"description"`
	Location        string    `db:"location"`
	StartsAt        time.Time `db:"starts_at"`
	Capacity        int       `db:"capacity"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
	RegisteredCount int       `db:"registered_count"`
}

func (r sessionRow) toSession() community.Session {
	return community.Session{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Location:    r.Location,
		StartsAt:    r.StartsAt.UTC(),
		Capacity:    r.Capacity,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

func (r sessionRow) toDetail() community.SessionDetail {
	return community.SessionDetail{Session: r.toSession(), RegisteredCount: r.RegisteredCount}
}

const (
	sessionColumns = `id, title, description, location, starts_at, capacity, created_at, updated_at`
	sessionDetailQ = `
		SELECT s.id, s.title, s.description, s.location, s.starts_at, s.capacity, s.created_at, s.updated_at,
		       COUNT(r.id) AS registered_count
		FROM session s
		LEFT JOIN registration r ON r.session_id = s.id`
	sessionGroupBy = ` GROUP BY s.id`
)

type communityRepository struct {
	db *sqlx.DB
}

func NewCommunityRepository(db *sqlx.DB) community.Repository {
	return &communityRepository{db: db}
}

var _ community.Repository = (*communityRepository)(nil)

func (repo *communityRepository) CreateSession(ctx context.Context, sess community.Session) (community.Session, error) {
	q := `
		INSERT INTO session (title, description, location, starts_at, capacity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + sessionColumns
	var row sessionRow
	err := repo.db.GetContext(ctx, &row, q,
		sess.Title, sess.Description, sess.Location, sess.StartsAt, sess.Capacity, sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		return community.Session{}, errors.Wrap(err, "creating session")
	}
	return row.toSession(), nil
}

func (repo *communityRepository) UpdateSession(ctx context.Context, sess community.Session) (community.Session, error) {
	q := `
		UPDATE session
		SET title = $1, description = $2, location = $3, starts_at = $4, capacity = $5, updated_at = $6
		WHERE id = $7
		RETURNING ` + sessionColumns
	var row sessionRow
	err := repo.db.GetContext(ctx, &row, q,
		sess.Title, sess.Description, sess.Location, sess.StartsAt, sess.Capacity, sess.UpdatedAt, sess.ID,
	)
	if err == sql.ErrNoRows {
		return community.Session{}, community.ErrNotFound
	} else if err != nil {
		return community.Session{}, errors.Wrap(err, "updating session")
	}
	return row.toSession(), nil
}

func (repo *communityRepository) DeleteSessionsByID(ctx context.Context, ids ...string) error {
	q := `DELETE FROM session WHERE id = ANY($1)`
	if _, err := repo.db.ExecContext(ctx, q, pq.Array(ids)); err != nil {
		return errors.Wrap(err, "deleting sessions")
	}
	return nil
}

func (repo *communityRepository) GetSessionByID(ctx context.Context, id string) (community.SessionDetail, error) {
	var row sessionRow
	q := sessionDetailQ + ` WHERE s.id = $1` + sessionGroupBy
	err := repo.db.GetContext(ctx, &row, q, id)
	if err == sql.ErrNoRows {
		return community.SessionDetail{}, community.ErrNotFound
	} else if err != nil {
		return community.SessionDetail{}, errors.Wrap(err, "getting session")
	}
	return row.toDetail(), nil
}

func (repo *communityRepository) QueryUpcomingSessions(ctx context.Context, from time.Time) ([]community.SessionDetail, error) {
	var rows []sessionRow
	q := sessionDetailQ + ` WHERE s.starts_at >= $1` + sessionGroupBy + ` ORDER BY s.starts_at`
	if err := repo.db.SelectContext(ctx, &rows, q, from); err != nil {
		return nil, errors.Wrap(err, "querying upcoming sessions")
	}
	details := make([]community.SessionDetail, 0, len(rows))
	for _, r := range rows {
		details = append(details, r.toDetail())
	}
	return details, nil
}

func (repo *communityRepository) GetRegistration(ctx context.Context, sessionID, userID string) (community.Registration, error) {
	var reg community.Registration
	q := `SELECT id, session_id, user_id, created_at FROM registration WHERE session_id = $1 AND user_id = $2`
	row := repo.db.QueryRowxContext(ctx, q, sessionID, userID)
	err := row.Scan(&reg.ID, &reg.SessionID, &reg.UserID, &reg.CreatedAt)
	if err == sql.ErrNoRows {
		return community.Registration{}, community.ErrNotRegistered
	} else if err != nil {
		return community.Registration{}, errors.Wrap(err, "getting registration")
	}
	reg.CreatedAt = reg.CreatedAt.UTC()
	return reg, nil
}

// CreateRegistration inserts the registration inside one transaction that
// locks the session row, so the capacity check and the insert are atomic
// against concurrent registrations.
func (repo *communityRepository) CreateRegistration(ctx context.Context, reg community.Registration) (community.Registration, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return community.Registration{}, errors.Wrap(err, "beginning transaction")
	}
	defer tx.Rollback() // no-op once committed

	var capacity int
	err = tx.GetContext(ctx, &capacity, `SELECT capacity FROM session WHERE id = $1 FOR UPDATE`, reg.SessionID)
	if err == sql.ErrNoRows {
		return community.Registration{}, community.ErrNotFound
	} else if err != nil {
		return community.Registration{}, errors.Wrap(err, "locking session")
	}

	var count int
	q := `SELECT COUNT(*) FROM registration WHERE session_id = $1`
	if err = tx.GetContext(ctx, &count, q, reg.SessionID); err != nil {
		return community.Registration{}, errors.Wrap(err, "counting registrations")
	}
	if count >= capacity {
		return community.Registration{}, community.ErrSessionFull
	}

	q = `
		INSERT INTO registration (session_id, user_id, created_at)
		VALUES ($1, $2, $3)
		RETURNING id, session_id, user_id, created_at`
	row := tx.QueryRowxContext(ctx, q, reg.SessionID, reg.UserID, reg.CreatedAt)
	var got community.Registration
	if err = row.Scan(&got.ID, &got.SessionID, &got.UserID, &got.CreatedAt); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return community.Registration{}, community.ErrAlreadyRegistered
		}
		return community.Registration{}, errors.Wrap(err, "creating registration")
	}
	if err = tx.Commit(); err != nil {
		return community.Registration{}, errors.Wrap(err, "committing registration")
	}
	got.CreatedAt = got.CreatedAt.UTC()
	return got, nil
}

func (repo *communityRepository) DeleteRegistration(ctx context.Context, id string) error {
	q := `DELETE FROM registration WHERE id = $1`
	if _, err := repo.db.ExecContext(ctx, q, id); err != nil {
		return errors.Wrap(err, "deleting registration")
	}
	return nil
}

func (repo *communityRepository) QueryUserSessions(ctx context.Context, userID string) ([]community.SessionDetail, error) {
	var rows []sessionRow
	q := sessionDetailQ + `
		WHERE s.id IN (SELECT session_id FROM registration WHERE user_id = $1)` +
		sessionGroupBy + ` ORDER BY s.starts_at`
	if err := repo.db.SelectContext(ctx, &rows, q, userID); err != nil {
		return nil, errors.Wrap(err, "querying user sessions")
	}
	details := make([]community.SessionDetail, 0, len(rows))
	for _, r := range rows {
		details = append(details, r.toDetail())
	}
	return details, nil
}
