// Package service holds the read path for solved-problem stats: a
// freshness-gated cache in front of the LeetCode client, with write-through
// on every successful fetch.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/leetfollow/leetfollow-service/internal/cache"
	"github.com/leetfollow/leetfollow-service/internal/client"
	"github.com/leetfollow/leetfollow-service/internal/models"
	"github.com/leetfollow/leetfollow-service/internal/observability"
)

// ErrStatsUnavailable means no stats could be produced for a username: the
// user does not exist upstream, the single fetch attempt failed, or the
// username was blank. Callers treat it as absence, not a server fault; the
// underlying cause is logged here and not propagated.
var ErrStatsUnavailable = errors.New("stats unavailable")

const (
	defaultMaxAge  = 24 * time.Hour
	defaultWorkers = 5
)

// Options tune a StatsService. Zero values fall back to defaults.
type Options struct {
	// MaxAge is the freshness window for cached entries. An entry whose age
	// is exactly MaxAge is already stale.
	MaxAge time.Duration

	// Workers caps concurrent fetches inside FetchMany.
	Workers int

	// Coalesce collapses concurrent fetches for the same username into a
	// single upstream call.
	Coalesce        bool
	CoalesceTimeout time.Duration
}

// StatsService serves solved-problem stats, preferring fresh cached entries
// and falling through to the upstream client otherwise.
type StatsService struct {
	client    client.StatsClient
	cache     cache.StatsCache
	logger    *zap.Logger
	maxAge    time.Duration
	workers   int
	coalescer *requestCoalescer
}

// NewStatsService wires a service over the given client and cache.
func NewStatsService(c client.StatsClient, sc cache.StatsCache, logger *zap.Logger, opts Options) *StatsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = defaultMaxAge
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	s := &StatsService{
		client:  c,
		cache:   sc,
		logger:  logger,
		maxAge:  opts.MaxAge,
		workers: opts.Workers,
	}
	if opts.Coalesce {
		s.coalescer = newRequestCoalescer(opts.CoalesceTimeout)
	}
	return s
}

// Fetch returns stats for username, from cache when the entry is younger
// than the freshness window, otherwise from the upstream API. A successful
// upstream fetch is written back to the cache before returning; a failed
// write is logged and does not fail the request. Any fetch failure comes
// back as ErrStatsUnavailable.
func (s *StatsService) Fetch(ctx context.Context, username string) (models.StatsRecord, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return models.StatsRecord{}, fmt.Errorf("blank username: %w", ErrStatsUnavailable)
	}

	observability.StatsQueriesTotal.Inc()
	start := time.Now()

	entry, ok, err := s.cache.Get(ctx, username)
	if err != nil {
		// A broken cache read is a miss, not a failure.
		observability.CacheErrorsTotal.WithLabelValues("get", string(client.CategorizeError(err))).Inc()
		s.logger.Warn("cache read failed, treating as miss",
			zap.String("username", username),
			zap.Error(err))
		ok = false
	}
	if ok && entry.Fresh(time.Now(), s.maxAge) {
		observability.CacheHitsTotal.WithLabelValues("stats").Inc()
		s.logger.Debug("stats served from cache",
			zap.String("username", username),
			zap.Duration("duration", time.Since(start)))
		return entry.Stats, nil
	}
	// A stale entry behaves exactly like an absent one. There is no
	// serve-stale fallback: a failed refresh must not hand out data that
	// could be arbitrarily old.

	record, err := s.fetchUpstream(ctx, username)
	if err != nil {
		s.logger.Info("stats fetch failed",
			zap.String("username", username),
			zap.String("category", string(client.CategorizeError(err))),
			zap.Error(err))
		return models.StatsRecord{}, fmt.Errorf("no stats for %q: %w", username, ErrStatsUnavailable)
	}

	if err := s.cache.Set(ctx, models.CacheEntry{
		Username:  username,
		Stats:     record,
		UpdatedAt: time.Now().UTC(),
	}); err != nil {
		// The fetched value is still good; only the next reader pays.
		observability.CacheErrorsTotal.WithLabelValues("set", string(client.CategorizeError(err))).Inc()
		s.logger.Warn("cache write-through failed",
			zap.String("username", username),
			zap.Error(err))
	}

	s.logger.Debug("stats served from upstream",
		zap.String("username", username),
		zap.Duration("duration", time.Since(start)))
	return record, nil
}

func (s *StatsService) fetchUpstream(ctx context.Context, username string) (models.StatsRecord, error) {
	if s.coalescer != nil {
		return s.coalescer.getOrDo(ctx, username, func() (models.StatsRecord, error) {
			return s.client.FetchStats(ctx, username)
		})
	}
	return s.client.FetchStats(ctx, username)
}
