package inmemdb

import (
	"sync"

	"github.com/lifecraft/backend/core/badge"
	"github.com/lifecraft/backend/core/community"
	"github.com/lifecraft/backend/core/learning"
	"github.com/lifecraft/backend/core/user"
)

// DB is a mutex-guarded in-memory store used in tests and local development.
type DB struct {
	user         *userTable
	item         *itemTable
	completion   *completionTable
	award        *awardTable
	session      *sessionTable
	registration *registrationTable
}

func NewDB() *DB {
	return &DB{
		user:         &userTable{table: make(map[string]*user.User)},
		item:         &itemTable{table: make(map[string]*learning.Item)},
		completion:   &completionTable{table: make(map[string]*learning.Completion)},
		award:        &awardTable{table: make(map[string]*badge.Award)},
		session:      &sessionTable{table: make(map[string]*community.Session)},
		registration: &registrationTable{table: make(map[string]*community.Registration)},
	}
}

// Reset empties every table.
func (db *DB) Reset() {
	db.user.reset()
	db.item.reset()
	db.completion.reset()
	db.award.reset()
	db.session.reset()
	db.registration.reset()
}

type userTable struct {
	mutex sync.RWMutex
	table map[string]*user.User
}

func (t *userTable) reset() {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.table = make(map[string]*user.User)
}

type itemTable struct {
	mutex sync.RWMutex
	table map[string]*learning.Item
}

func (t *itemTable) reset() {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.table = make(map[string]*learning.Item)
}

type completionTable struct {
	mutex sync.RWMutex
	table map[string]*learning.Completion
}

func (t *completionTable) reset() {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.table = make(map[string]*learning.Completion)
}

type awardTable struct {
	mutex sync.RWMutex
	table map[string]*badge.Award
}

func (t *awardTable) reset() {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.table = make(map[string]*badge.Award)
}

type sessionTable struct {
	mutex sync.RWMutex
	table map[string]*community.Session
}

func (t *sessionTable) reset() {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.table = make(map[string]*community.Session)
}

type registrationTable struct {
	mutex sync.RWMutex
	table map[string]*community.Registration
}

func (t *registrationTable) reset() {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.table = make(map[string]*community.Registration)
}
