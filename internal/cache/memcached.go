package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/leetfollow/leetfollow-service/internal/models"
)

const keyPrefix = "leetstats:"

// MemcachedCache implements StatsCache using memcached. Entries are stored
// without an expiration: freshness is decided at read time from UpdatedAt,
// and a stale entry behaves exactly like a missing one to the caller.
type MemcachedCache struct {
	client *memcache.Client
}

// NewMemcachedCache creates a MemcachedCache. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and maxIdleConns
// configure the client; both use package defaults if zero.
func NewMemcachedCache(addrs string, timeout time.Duration, maxIdleConns int) (*MemcachedCache, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedCache{client: client}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

func (c *MemcachedCache) key(username string) string {
	return keyPrefix + username
}

// Get implements StatsCache.Get. Returns false, nil on a miss; false, err on error.
func (c *MemcachedCache) Get(ctx context.Context, username string) (models.CacheEntry, bool, error) {
	if ctx.Err() != nil {
		return models.CacheEntry{}, false, ctx.Err()
	}
	item, err := c.client.Get(c.key(username))
	if err != nil {
		if err == memcache.ErrCacheMiss {
			return models.CacheEntry{}, false, nil
		}
		return models.CacheEntry{}, false, err
	}
	var entry models.CacheEntry
	if err := json.Unmarshal(item.Value, &entry); err != nil {
		return models.CacheEntry{}, false, err
	}
	return entry, true, nil
}

// Set implements StatsCache.Set.
func (c *MemcachedCache) Set(ctx context.Context, entry models.CacheEntry) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return c.client.Set(&memcache.Item{
		Key:   c.key(entry.Username),
		Value: raw,
		// Expiration 0: memcached keeps the entry until evicted for space.
	})
}

// Ping checks if memcached is reachable. Used for health checks.
func (c *MemcachedCache) Ping() error {
	return c.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (c *MemcachedCache) Close() error {
	return c.client.Close()
}
