package circuitbreaker

import (
	"sync"
	"time"
)

// State is the circuit breaker state (Closed, Open, HalfOpen).
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config holds circuit breaker parameters.
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold int
	// Cooldown is how long the circuit stays open before allowing a probe.
	Cooldown time.Duration
	// Component names the protected dependency, for metrics.
	Component string
	// OnStateChange, when set, is invoked on every transition.
	OnStateChange func(from, to State)
}

// CircuitBreaker protects an upstream dependency by rejecting calls after
// repeated failures. After the cooldown a single probe is allowed through;
// its outcome closes or re-opens the circuit.
type CircuitBreaker struct {
	mu            sync.Mutex
	state         State
	failures      int
	openedAt      time.Time
	threshold     int
	cooldown      time.Duration
	component     string
	onStateChange func(from, to State)
}

// New creates a CircuitBreaker with the given config, applying defaults for
// zero values (threshold 5, cooldown 30s).
func New(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	return &CircuitBreaker{
		state:         StateClosed,
		threshold:     cfg.FailureThreshold,
		cooldown:      cfg.Cooldown,
		component:     cfg.Component,
		onStateChange: cfg.OnStateChange,
	}
}

// Allow reports whether a call may proceed. When the circuit is open and the
// cooldown has elapsed it transitions to half-open and admits one probe.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen {
		if time.Since(cb.openedAt) < cb.cooldown {
			return false
		}
		cb.transitionLocked(StateHalfOpen)
	}
	return true
}

// RecordSuccess records a successful call, closing the circuit if it was not
// closed and resetting the failure count.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	if cb.state != StateClosed {
		cb.transitionLocked(StateClosed)
	}
}

// RecordFailure records a failed call. A failure in half-open state, or the
// threshold-th consecutive failure while closed, opens the circuit.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures++
	if cb.state == StateHalfOpen || (cb.state == StateClosed && cb.failures >= cb.threshold) {
		cb.openedAt = time.Now()
		cb.failures = 0
		cb.transitionLocked(StateOpen)
	}
}

// State returns the current state (for metrics).
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) transitionLocked(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if cb.onStateChange != nil {
		// Runs under the lock; keep callbacks cheap (metric updates only).
		cb.onStateChange(from, to)
	}
}
