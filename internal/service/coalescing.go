package service

import (
	"context"
	"sync"
	"time"

	"github.com/leetfollow/leetfollow-service/internal/models"
	"github.com/leetfollow/leetfollow-service/internal/observability"
)

const defaultCoalesceTimeout = 5 * time.Second

// inflightCall is one upstream fetch that late arrivals can wait on.
type inflightCall struct {
	done   chan struct{}
	record models.StatsRecord
	err    error
}

// requestCoalescer collapses concurrent fetches for the same username into a
// single upstream call. The first caller runs the fetch; everyone else waits
// for its result, bounded by the coalesce timeout and their own context.
type requestCoalescer struct {
	mu       sync.Mutex
	inFlight map[string]*inflightCall
	timeout  time.Duration
}

func newRequestCoalescer(timeout time.Duration) *requestCoalescer {
	if timeout <= 0 {
		timeout = defaultCoalesceTimeout
	}
	return &requestCoalescer{
		inFlight: make(map[string]*inflightCall),
		timeout:  timeout,
	}
}

func (rc *requestCoalescer) getOrDo(ctx context.Context, key string, fn func() (models.StatsRecord, error)) (models.StatsRecord, error) {
	rc.mu.Lock()
	if call, ok := rc.inFlight[key]; ok {
		rc.mu.Unlock()
		observability.CoalescedFetchesTotal.Inc()

		waitCtx, cancel := context.WithTimeout(ctx, rc.timeout)
		defer cancel()
		select {
		case <-call.done:
			return call.record, call.err
		case <-waitCtx.Done():
			return models.StatsRecord{}, waitCtx.Err()
		}
	}

	call := &inflightCall{done: make(chan struct{})}
	rc.inFlight[key] = call
	rc.mu.Unlock()

	call.record, call.err = fn()

	rc.mu.Lock()
	delete(rc.inFlight, key)
	rc.mu.Unlock()
	close(call.done)

	return call.record, call.err
}
