package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leetfollow/leetfollow-service/internal/client"
	"github.com/leetfollow/leetfollow-service/internal/models"
)

// mockStatsClient returns canned records per username and counts its calls.
type mockStatsClient struct {
	mu      sync.Mutex
	calls   int
	byName  map[string]models.StatsRecord
	failAll error
}

func (m *mockStatsClient) FetchStats(_ context.Context, username string) (models.StatsRecord, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.failAll != nil {
		return models.StatsRecord{}, m.failAll
	}
	rec, ok := m.byName[username]
	if !ok {
		return models.StatsRecord{}, client.ErrUserNotFound
	}
	return rec, nil
}

func (m *mockStatsClient) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// mockCache wraps an in-memory map and can be told to fail reads or writes.
type mockCache struct {
	mu      sync.Mutex
	entries map[string]models.CacheEntry
	getErr  error
	setErr  error
	sets    int
}

func newMockCache() *mockCache {
	return &mockCache{entries: make(map[string]models.CacheEntry)}
}

func (m *mockCache) Get(_ context.Context, username string) (models.CacheEntry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return models.CacheEntry{}, false, m.getErr
	}
	e, ok := m.entries[username]
	return e, ok, nil
}

func (m *mockCache) Set(_ context.Context, entry models.CacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets++
	if m.setErr != nil {
		return m.setErr
	}
	m.entries[entry.Username] = entry
	return nil
}

func record(username string, total int) models.StatsRecord {
	return models.StatsRecord{
		Username:    username,
		TotalSolved: total,
		Easy:        total,
		Ranking:     1000,
	}
}

// TestFetchFreshCacheHit verifies that a fresh cached entry is served
// without touching the client.
func TestFetchFreshCacheHit(t *testing.T) {
	mc := &mockStatsClient{byName: map[string]models.StatsRecord{}}
	cache := newMockCache()
	cache.entries["alice"] = models.CacheEntry{
		Username:  "alice",
		Stats:     record("alice", 42),
		UpdatedAt: time.Now().Add(-1 * time.Hour),
	}
	svc := NewStatsService(mc, cache, nil, Options{MaxAge: 24 * time.Hour})

	got, err := svc.Fetch(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if got.TotalSolved != 42 {
		t.Errorf("TotalSolved = %d, want 42", got.TotalSolved)
	}
	if mc.callCount() != 0 {
		t.Errorf("client called %d times for fresh entry, want 0", mc.callCount())
	}
}

// TestFetchStaleTriggersRefresh verifies that an entry at exactly the
// freshness boundary is refetched and the cache rewritten.
func TestFetchStaleTriggersRefresh(t *testing.T) {
	mc := &mockStatsClient{byName: map[string]models.StatsRecord{
		"alice": record("alice", 50),
	}}
	cache := newMockCache()
	cache.entries["alice"] = models.CacheEntry{
		Username:  "alice",
		Stats:     record("alice", 42),
		UpdatedAt: time.Now().Add(-24 * time.Hour),
	}
	svc := NewStatsService(mc, cache, nil, Options{MaxAge: 24 * time.Hour})

	got, err := svc.Fetch(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if got.TotalSolved != 50 {
		t.Errorf("TotalSolved = %d, want refreshed value 50", got.TotalSolved)
	}
	if mc.callCount() != 1 {
		t.Errorf("client called %d times, want 1", mc.callCount())
	}
	if e := cache.entries["alice"]; e.Stats.TotalSolved != 50 {
		t.Errorf("cache not rewritten: TotalSolved = %d, want 50", e.Stats.TotalSolved)
	}
}

// TestFetchStaleAndFetchFails verifies there is no serve-stale fallback:
// a stale entry plus a failing fetch yields ErrStatsUnavailable, not the
// old data.
func TestFetchStaleAndFetchFails(t *testing.T) {
	mc := &mockStatsClient{failAll: client.ErrUpstreamFailure}
	cache := newMockCache()
	cache.entries["alice"] = models.CacheEntry{
		Username:  "alice",
		Stats:     record("alice", 42),
		UpdatedAt: time.Now().Add(-48 * time.Hour),
	}
	svc := NewStatsService(mc, cache, nil, Options{MaxAge: 24 * time.Hour})

	_, err := svc.Fetch(context.Background(), "alice")
	if !errors.Is(err, ErrStatsUnavailable) {
		t.Fatalf("error = %v, want ErrStatsUnavailable", err)
	}
}

// TestFetchErrorCollapse verifies that every client failure mode comes back
// as ErrStatsUnavailable.
func TestFetchErrorCollapse(t *testing.T) {
	causes := []error{
		client.ErrUserNotFound,
		client.ErrUpstreamFailure,
		client.ErrRateLimited,
		client.ErrMalformedResponse,
		client.ErrCircuitOpen,
	}
	for _, cause := range causes {
		t.Run(cause.Error(), func(t *testing.T) {
			mc := &mockStatsClient{failAll: cause}
			svc := NewStatsService(mc, newMockCache(), nil, Options{})

			_, err := svc.Fetch(context.Background(), "ghost")
			if !errors.Is(err, ErrStatsUnavailable) {
				t.Errorf("error = %v, want ErrStatsUnavailable", err)
			}
			if errors.Is(err, cause) {
				t.Errorf("underlying cause %v leaked through the service boundary", cause)
			}
		})
	}
}

// TestFetchBlankUsername verifies that blank input short-circuits without a
// network call.
func TestFetchBlankUsername(t *testing.T) {
	for _, username := range []string{"", "   ", "\t\n"} {
		mc := &mockStatsClient{}
		svc := NewStatsService(mc, newMockCache(), nil, Options{})

		_, err := svc.Fetch(context.Background(), username)
		if !errors.Is(err, ErrStatsUnavailable) {
			t.Errorf("Fetch(%q) error = %v, want ErrStatsUnavailable", username, err)
		}
		if mc.callCount() != 0 {
			t.Errorf("Fetch(%q) reached the client", username)
		}
	}
}

// TestFetchCacheReadErrorIsMiss verifies that a failing cache read falls
// through to the client instead of failing the request.
func TestFetchCacheReadErrorIsMiss(t *testing.T) {
	mc := &mockStatsClient{byName: map[string]models.StatsRecord{
		"alice": record("alice", 7),
	}}
	cache := newMockCache()
	cache.getErr = errors.New("memcache: connect timeout")
	svc := NewStatsService(mc, cache, nil, Options{})

	got, err := svc.Fetch(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if got.TotalSolved != 7 {
		t.Errorf("TotalSolved = %d, want 7", got.TotalSolved)
	}
	if mc.callCount() != 1 {
		t.Errorf("client called %d times, want 1", mc.callCount())
	}
}

// TestFetchCacheWriteErrorSwallowed verifies that a failing write-through
// still returns the fetched record.
func TestFetchCacheWriteErrorSwallowed(t *testing.T) {
	mc := &mockStatsClient{byName: map[string]models.StatsRecord{
		"alice": record("alice", 7),
	}}
	cache := newMockCache()
	cache.setErr = errors.New("memcache: server error")
	svc := NewStatsService(mc, cache, nil, Options{})

	got, err := svc.Fetch(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if got.TotalSolved != 7 {
		t.Errorf("TotalSolved = %d, want 7", got.TotalSolved)
	}
	if cache.sets != 1 {
		t.Errorf("cache.Set called %d times, want 1", cache.sets)
	}
}

// TestFetchWriteThroughServesSecondCall verifies that a second fetch within
// the freshness window is answered from cache.
func TestFetchWriteThroughServesSecondCall(t *testing.T) {
	mc := &mockStatsClient{byName: map[string]models.StatsRecord{
		"alice": record("alice", 7),
	}}
	svc := NewStatsService(mc, newMockCache(), nil, Options{MaxAge: 24 * time.Hour})

	for i := 0; i < 2; i++ {
		if _, err := svc.Fetch(context.Background(), "alice"); err != nil {
			t.Fatalf("Fetch %d returned error: %v", i+1, err)
		}
	}
	if mc.callCount() != 1 {
		t.Errorf("client called %d times across two fetches, want 1", mc.callCount())
	}
}

// slowClient tracks the peak number of concurrent FetchStats calls.
type slowClient struct {
	inFlight atomic.Int64
	peak     atomic.Int64
	delay    time.Duration
}

func (c *slowClient) FetchStats(_ context.Context, username string) (models.StatsRecord, error) {
	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(c.delay)
	if username == "missing" {
		return models.StatsRecord{}, client.ErrUserNotFound
	}
	return record(username, 1), nil
}

// TestFetchManyBoundsConcurrency verifies the worker cap holds across a
// batch larger than the pool.
func TestFetchManyBoundsConcurrency(t *testing.T) {
	sc := &slowClient{delay: 20 * time.Millisecond}
	svc := NewStatsService(sc, newMockCache(), nil, Options{Workers: 5})

	usernames := make([]string, 20)
	for i := range usernames {
		usernames[i] = fmt.Sprintf("user%02d", i)
	}
	results := svc.FetchMany(context.Background(), usernames)

	if len(results) != 20 {
		t.Fatalf("got %d results, want 20", len(results))
	}
	if p := sc.peak.Load(); p > 5 {
		t.Errorf("peak concurrent fetches = %d, want <= 5", p)
	}
}

// TestFetchManyDropsFailuresPreservingOrder verifies that failed usernames
// vanish from the result while the survivors keep their input order.
func TestFetchManyDropsFailuresPreservingOrder(t *testing.T) {
	sc := &slowClient{delay: time.Millisecond}
	svc := NewStatsService(sc, newMockCache(), nil, Options{Workers: 3})

	usernames := []string{"alice", "missing", "bob", "missing", "carol"}
	results := svc.FetchMany(context.Background(), usernames)

	want := []string{"alice", "bob", "carol"}
	if len(results) != len(want) {
		t.Fatalf("got %d results, want %d", len(results), len(want))
	}
	for i, w := range want {
		if results[i].Username != w {
			t.Errorf("results[%d].Username = %q, want %q", i, results[i].Username, w)
		}
	}
}

// TestFetchManyEmptyBatch verifies the degenerate input.
func TestFetchManyEmptyBatch(t *testing.T) {
	svc := NewStatsService(&mockStatsClient{}, newMockCache(), nil, Options{})
	if results := svc.FetchMany(context.Background(), nil); len(results) != 0 {
		t.Errorf("got %d results for empty batch, want 0", len(results))
	}
}

// TestFetchManyAllFail verifies the whole-batch-failure case returns an
// empty slice, not an error.
func TestFetchManyAllFail(t *testing.T) {
	mc := &mockStatsClient{failAll: client.ErrUpstreamFailure}
	svc := NewStatsService(mc, newMockCache(), nil, Options{Workers: 2})

	results := svc.FetchMany(context.Background(), []string{"a", "b", "c"})
	if len(results) != 0 {
		t.Errorf("got %d results, want 0", len(results))
	}
}
