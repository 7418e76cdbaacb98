package service

import (
	"context"
	"sync"

	"github.com/leetfollow/leetfollow-service/internal/models"
	"github.com/leetfollow/leetfollow-service/internal/observability"
)

// FetchMany fetches stats for every username concurrently, with at most
// Workers fetches in flight at once. The result preserves input order with
// failed usernames dropped, so a caller that remembers which names survived
// can still line results up with its own list. FetchMany itself never fails;
// an empty batch or a batch of all-failures both return an empty slice.
func (s *StatsService) FetchMany(ctx context.Context, usernames []string) []models.StatsRecord {
	observability.FanoutBatchSize.Observe(float64(len(usernames)))
	if len(usernames) == 0 {
		return []models.StatsRecord{}
	}

	// One slot per input keeps ordering trivial: workers write only their
	// own index, the compaction pass below restores input order.
	slots := make([]*models.StatsRecord, len(usernames))
	sem := make(chan struct{}, s.workers)
	var wg sync.WaitGroup

	for i, username := range usernames {
		wg.Add(1)
		go func(i int, username string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			record, err := s.Fetch(ctx, username)
			if err != nil {
				observability.FanoutDroppedTotal.Inc()
				return
			}
			slots[i] = &record
		}(i, username)
	}
	wg.Wait()

	results := make([]models.StatsRecord, 0, len(usernames))
	for _, r := range slots {
		if r != nil {
			results = append(results, *r)
		}
	}
	return results
}
