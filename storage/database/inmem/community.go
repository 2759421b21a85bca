package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/lifecraft/backend/core/community"
)

type communityRepository struct {
	sessions      *sessionTable
	registrations *registrationTable
}

func NewCommunityRepository(db *DB) community.Repository {
	return &communityRepository{sessions: db.session, registrations: db.registration}
}

var _ community.Repository = (*communityRepository)(nil)

func (repo *communityRepository) registrationCount(sessionID string) int {
	var count int
	for _, reg := range repo.registrations.table {
		if reg.SessionID == sessionID {
			count++
		}
	}
	return count
}

func (repo *communityRepository) CreateSession(_ context.Context, sess community.Session) (community.Session, error) {
	repo.sessions.mutex.Lock()
	defer repo.sessions.mutex.Unlock()

	sess.ID = uuid.NewString()
	repo.sessions.table[sess.ID] = &sess
	return sess, nil
}

func (repo *communityRepository) UpdateSession(_ context.Context, sess community.Session) (community.Session, error) {
	repo.sessions.mutex.Lock()
	defer repo.sessions.mutex.Unlock()

	if _, ok := repo.sessions.table[sess.ID]; !ok {
		return community.Session{}, community.ErrNotFound
	}
	repo.sessions.table[sess.ID] = &sess
	return sess, nil
}

func (repo *communityRepository) DeleteSessionsByID(_ context.Context, ids ...string) error {
	repo.sessions.mutex.Lock()
	defer repo.sessions.mutex.Unlock()
	for _, id := range ids {
		delete(repo.sessions.table, id)
	}
	return nil
}

func (repo *communityRepository) GetSessionByID(_ context.Context, id string) (community.SessionDetail, error) {
	repo.sessions.mutex.RLock()
	defer repo.sessions.mutex.RUnlock()
	repo.registrations.mutex.RLock()
	defer repo.registrations.mutex.RUnlock()

	sess, ok := repo.sessions.table[id]
	if !ok {
		return community.SessionDetail{}, community.ErrNotFound
	}
	return community.SessionDetail{Session: *sess, RegisteredCount: repo.registrationCount(id)}, nil
}

func (repo *communityRepository) QueryUpcomingSessions(_ context.Context, from time.Time) ([]community.SessionDetail, error) {
	repo.sessions.mutex.RLock()
	defer repo.sessions.mutex.RUnlock()
	repo.registrations.mutex.RLock()
	defer repo.registrations.mutex.RUnlock()

	details := make([]community.SessionDetail, 0)
	for _, sess := range repo.sessions.table {
		if sess.StartsAt.Before(from) {
			continue
		}
		details = append(details, community.SessionDetail{
			Session:         *sess,
			RegisteredCount: repo.registrationCount(sess.ID),
		})
	}
	sort.Slice(details, func(i, j int) bool { return details[i].StartsAt.Before(details[j].StartsAt) })
	return details, nil
}

func (repo *communityRepository) GetRegistration(_ context.Context, sessionID, userID string) (community.Registration, error) {
	repo.registrations.mutex.RLock()
	defer repo.registrations.mutex.RUnlock()

	for _, reg := range repo.registrations.table {
		if reg.SessionID == sessionID && reg.UserID == userID {
			return *reg, nil
		}
	}
	return community.Registration{}, community.ErrNotRegistered
}

func (repo *communityRepository) CreateRegistration(_ context.Context, reg community.Registration) (community.Registration, error) {
	repo.sessions.mutex.RLock()
	defer repo.sessions.mutex.RUnlock()
	repo.registrations.mutex.Lock()
	defer repo.registrations.mutex.Unlock()

	sess, ok := repo.sessions.table[reg.SessionID]
	if !ok {
		return community.Registration{}, community.ErrNotFound
	}
	for _, r := range repo.registrations.table {
		if r.SessionID == reg.SessionID && r.UserID == reg.UserID {
			return community.Registration{}, community.ErrAlreadyRegistered
		}
	}
	// capacity check under the write lock, atomic with the insert
	if repo.registrationCount(reg.SessionID) >= sess.Capacity {
		return community.Registration{}, community.ErrSessionFull
	}
	reg.ID = uuid.NewString()
	repo.registrations.table[reg.ID] = &reg
	return reg, nil
}

func (repo *communityRepository) DeleteRegistration(_ context.Context, id string) error {
	repo.registrations.mutex.Lock()
	defer repo.registrations.mutex.Unlock()
	delete(repo.registrations.table, id)
	return nil
}

func (repo *communityRepository) QueryUserSessions(_ context.Context, userID string) ([]community.SessionDetail, error) {
	repo.registrations.mutex.RLock()
	sessionIDs := make([]string, 0)
	for _, reg := range repo.registrations.table {
		if reg.UserID == userID {
			sessionIDs = append(sessionIDs, reg.SessionID)
		}
	}
	counts := make(map[string]int, len(sessionIDs))
	for _, id := range sessionIDs {
		counts[id] = repo.registrationCount(id)
	}
	repo.registrations.mutex.RUnlock()

	repo.sessions.mutex.RLock()
	defer repo.sessions.mutex.RUnlock()

	details := make([]community.SessionDetail, 0, len(sessionIDs))
	for _, id := range sessionIDs {
		sess, ok := repo.sessions.table[id]
		if !ok {
			continue
		}
		details = append(details, community.SessionDetail{Session: *sess, RegisteredCount: counts[id]})
	}
	sort.Slice(details, func(i, j int) bool { return details[i].StartsAt.Before(details[j].StartsAt) })
	return details, nil
}
