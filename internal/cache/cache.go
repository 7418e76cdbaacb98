package cache

import (
	"context"
	"sync"

	"github.com/leetfollow/leetfollow-service/internal/models"
)

// StatsCache is the capability for the per-username stats cache.
// Get is a raw lookup: it returns whatever entry is stored, however old.
// Freshness is a read-time comparison owned by the caller, so the policy
// lives in exactly one place. Set upserts; entries are never deleted here.
type StatsCache interface {
	Get(ctx context.Context, username string) (models.CacheEntry, bool, error)
	Set(ctx context.Context, entry models.CacheEntry) error
}

// InMemoryCache implements StatsCache with a mutex-protected map. Safe for
// concurrent use by the fan-out workers. Intended for dev and tests; the
// memcached backend is the durable-ish production option.
type InMemoryCache struct {
	mu   sync.RWMutex
	data map[string]models.CacheEntry
}

// NewInMemoryCache creates a new in-memory cache instance.
func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{
		data: make(map[string]models.CacheEntry),
	}
}

// Get retrieves the stored entry for username if present.
// Returns (entry, true, nil) when found, (zero, false, nil) when absent.
func (c *InMemoryCache) Get(ctx context.Context, username string) (models.CacheEntry, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.data[username]
	if !ok {
		return models.CacheEntry{}, false, nil
	}
	return entry, true, nil
}

// Set upserts the entry keyed by its username. Last writer wins; concurrent
// writers for the same key both reflect a recently fetched truth, so no
// versioning is needed.
func (c *InMemoryCache) Set(ctx context.Context, entry models.CacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[entry.Username] = entry
	return nil
}
