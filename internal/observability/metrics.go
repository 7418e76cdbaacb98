package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation, capacity limits.
	HTTPRequestsInFlight prometheus.Gauge

	// LeetCode GraphQL call rate. Watch for: error vs success ratio.
	LeetCodeAPICallsTotal *prometheus.CounterVec

	// Upstream latency per call. Watch for: p95 > 2s (upstream degradation).
	LeetCodeAPIDuration *prometheus.HistogramVec

	// Fresh cache hits. Hit rate = hits / statsQueriesTotal.
	CacheHitsTotal *prometheus.CounterVec

	// Cache read/write failures by operation and reason. Reads degrade to a
	// fetch and writes are swallowed, so these counters are the only signal.
	CacheErrorsTotal *prometheus.CounterVec

	// Total stats lookups (cached or not). rate() for QPS.
	StatsQueriesTotal prometheus.Counter

	// Usernames per fan-out batch. Watch for: users following many accounts.
	FanoutBatchSize prometheus.Histogram

	// Fetches dropped from fan-out results (no data for username).
	FanoutDroppedTotal prometheus.Counter

	// Fetches that piggybacked on an in-flight upstream call for the same username.
	CoalescedFetchesTotal prometheus.Counter

	// Rate limit denials. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter

	// Cache warming runs, failures, and duration.
	CacheWarmingTotal           prometheus.Counter
	CacheWarmingErrorsTotal     prometheus.Counter
	CacheWarmingDurationSeconds prometheus.Histogram

	// Circuit breaker state per component (0=closed, 1=open, 2=half_open) and transitions.
	circuitBreakerState       *prometheus.GaugeVec
	circuitBreakerTransitions *prometheus.CounterVec

	// In-flight requests remaining when graceful shutdown began.
	shutdownInFlight prometheus.Gauge
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	LeetCodeAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leetcodeApiCallsTotal",
			Help: "Total number of LeetCode GraphQL API calls",
		},
		[]string{"status"},
	)
	LeetCodeAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "leetcodeApiDurationSeconds",
			Help:    "LeetCode GraphQL API latency in seconds (per call)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of fresh cache hits",
		},
		[]string{"cacheType"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Cache operation failures by operation (get/set) and reason",
		},
		[]string{"operation", "reason"},
	)
	StatsQueriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "statsQueriesTotal",
			Help: "Total number of stats lookups",
		},
	)
	FanoutBatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "statsFanoutBatchSize",
			Help:    "Number of usernames per fan-out batch",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
		},
	)
	FanoutDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "statsFanoutDroppedTotal",
			Help: "Fetches dropped from fan-out results (no data for username)",
		},
	)
	CoalescedFetchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "statsCoalescedFetchesTotal",
			Help: "Fetches that waited on an in-flight upstream call for the same username",
		},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)
	CacheWarmingTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingTotal",
			Help: "Cache warming runs",
		},
	)
	CacheWarmingErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingErrorsTotal",
			Help: "Cache warming runs with at least one failed username",
		},
	)
	CacheWarmingDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cacheWarmingDurationSeconds",
			Help:    "Cache warming run duration in seconds",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 30, 60},
		},
	)
	circuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half_open)",
		},
		[]string{"component"},
	)
	circuitBreakerTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuitBreakerTransitionsTotal",
			Help: "Circuit breaker state transitions",
		},
		[]string{"component", "from", "to"},
	)
	shutdownInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shutdownInFlightRequests",
			Help: "In-flight requests observed when graceful shutdown began",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		LeetCodeAPICallsTotal, LeetCodeAPIDuration,
		CacheHitsTotal, CacheErrorsTotal,
		StatsQueriesTotal, FanoutBatchSize, FanoutDroppedTotal, CoalescedFetchesTotal,
		RateLimitDeniedTotal,
		CacheWarmingTotal, CacheWarmingErrorsTotal, CacheWarmingDurationSeconds,
		circuitBreakerState, circuitBreakerTransitions,
		shutdownInFlight,
	)
}

// RecordCircuitBreakerTransition records a state transition for the component.
func RecordCircuitBreakerTransition(component, from, to string) {
	circuitBreakerTransitions.WithLabelValues(component, from, to).Inc()
}

// SetCircuitBreakerStateGauge sets the state gauge for the component.
func SetCircuitBreakerStateGauge(component string, state int) {
	circuitBreakerState.WithLabelValues(component).Set(float64(state))
}

// RecordShutdownInFlight records the in-flight request count at shutdown start.
func RecordShutdownInFlight(count int64) {
	shutdownInFlight.Set(float64(count))
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
