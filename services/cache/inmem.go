package cachesvc

import (
	"context"
	"sync"
	"time"

	"github.com/lifecraft/backend/core"
)

type inmemEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

// InmemCache is a map-backed Cache used in tests and local development.
type InmemCache struct {
	mutex   sync.RWMutex
	entries map[string]inmemEntry
	nowFunc func() time.Time // mockable
}

var _ core.Cache = (*InmemCache)(nil)

func NewInmemCache() *InmemCache {
	return &InmemCache{
		entries: make(map[string]inmemEntry),
		nowFunc: time.Now,
	}
}

func (c *InmemCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mutex.RLock()
	entry, ok := c.entries[key]
	c.mutex.RUnlock()

	if !ok {
		return nil, core.ErrCacheMiss
	}
	if !entry.expiresAt.IsZero() && c.nowFunc().After(entry.expiresAt) {
		c.mutex.Lock()
		delete(c.entries, key)
		c.mutex.Unlock()
		return nil, core.ErrCacheMiss
	}
	return entry.value, nil
}

func (c *InmemCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	entry := inmemEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = c.nowFunc().Add(ttl)
	}
	c.mutex.Lock()
	c.entries[key] = entry
	c.mutex.Unlock()
	return nil
}

func (c *InmemCache) Delete(_ context.Context, key string) error {
	c.mutex.Lock()
	delete(c.entries, key)
	c.mutex.Unlock()
	return nil
}

// Flush empties the cache.
func (c *InmemCache) Flush() {
	c.mutex.Lock()
	c.entries = make(map[string]inmemEntry)
	c.mutex.Unlock()
}
