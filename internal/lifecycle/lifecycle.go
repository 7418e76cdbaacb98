// Package lifecycle holds the process-wide draining flag shared between the
// signal handler in cmd/service and the health endpoint.
package lifecycle

import "sync/atomic"

var shuttingDown atomic.Bool

// SetShuttingDown marks the process as draining. Set when SIGTERM/SIGINT is
// received; while true, the health endpoint answers 503 shutting-down so
// load balancers stop routing new traffic here.
func SetShuttingDown(v bool) {
	shuttingDown.Store(v)
}

// IsShuttingDown reports whether the process is draining.
func IsShuttingDown() bool {
	return shuttingDown.Load()
}
