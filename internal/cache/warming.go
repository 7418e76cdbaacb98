package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/leetfollow/leetfollow-service/internal/models"
	"github.com/leetfollow/leetfollow-service/internal/observability"
)

// StatsFetcher is implemented by the service layer to fetch stats for one
// username. Used by CacheWarmer to avoid a circular dependency on the
// service package.
type StatsFetcher interface {
	Fetch(ctx context.Context, username string) (models.StatsRecord, error)
}

// CacheWarmer warms the cache by prefetching stats for a list of usernames,
// typically heavily-followed accounts configured at startup.
type CacheWarmer struct {
	fetcher StatsFetcher
	logger  *zap.Logger
}

// NewCacheWarmer creates a CacheWarmer that uses the given fetcher and logger.
func NewCacheWarmer(fetcher StatsFetcher, logger *zap.Logger) *CacheWarmer {
	return &CacheWarmer{fetcher: fetcher, logger: logger}
}

// Warm fetches stats for each username concurrently; the fetcher's write-through
// populates the cache. Returns an aggregated error if any username failed.
func (w *CacheWarmer) Warm(ctx context.Context, usernames []string) error {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	if w.logger != nil {
		w.logger.Info("warming cache", zap.Int("usernames", len(usernames)))
	}
	var wg sync.WaitGroup
	errCh := make(chan error, len(usernames))
	for _, username := range usernames {
		username := username
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := w.fetcher.Fetch(ctx, username); err != nil {
				errCh <- fmt.Errorf("warm %s: %w", username, err)
			}
		}()
	}
	wg.Wait()
	close(errCh)
	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	if w.logger != nil {
		w.logger.Info("cache warming complete", zap.Int("usernames", len(usernames)), zap.Int("errors", len(errs)), zap.Float64("duration_seconds", duration))
	}
	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return fmt.Errorf("cache warming: %v", errs)
	}
	return nil
}

// WarmPeriodic runs an initial Warm, then refreshes at the given interval until ctx is done.
func (w *CacheWarmer) WarmPeriodic(ctx context.Context, usernames []string, interval time.Duration) error {
	if err := w.Warm(ctx, usernames); err != nil && w.logger != nil {
		w.logger.Warn("initial cache warm failed", zap.Error(err))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Warm(ctx, usernames); err != nil && w.logger != nil {
				w.logger.Warn("periodic cache warm failed", zap.Error(err))
			}
		}
	}
}
