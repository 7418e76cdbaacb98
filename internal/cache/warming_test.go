package cache

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/leetfollow/leetfollow-service/internal/models"
)

type recordingFetcher struct {
	mu      sync.Mutex
	fetched []string
	failFor map[string]bool
}

func (f *recordingFetcher) Fetch(ctx context.Context, username string) (models.StatsRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, username)
	if f.failFor[username] {
		return models.StatsRecord{}, errors.New("no data")
	}
	return models.StatsRecord{Username: username}, nil
}

// TestCacheWarmer_Warm verifies every configured username is fetched and a
// fully successful run returns nil.
func TestCacheWarmer_Warm(t *testing.T) {
	fetcher := &recordingFetcher{}
	warmer := NewCacheWarmer(fetcher, nil)

	err := warmer.Warm(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("Warm() error = %v", err)
	}

	if len(fetcher.fetched) != 3 {
		t.Errorf("fetched %d usernames, want 3", len(fetcher.fetched))
	}
}

// TestCacheWarmer_Warm_PartialFailure verifies failed usernames are reported
// but do not stop the remaining fetches.
func TestCacheWarmer_Warm_PartialFailure(t *testing.T) {
	fetcher := &recordingFetcher{failFor: map[string]bool{"b": true}}
	warmer := NewCacheWarmer(fetcher, nil)

	err := warmer.Warm(context.Background(), []string{"a", "b", "c"})
	if err == nil {
		t.Fatal("Warm() error = nil, want aggregated error")
	}

	if len(fetcher.fetched) != 3 {
		t.Errorf("fetched %d usernames, want 3 (failure must not short-circuit)", len(fetcher.fetched))
	}
}
