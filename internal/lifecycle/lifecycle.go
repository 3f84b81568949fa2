// Package lifecycle holds the process-wide drain flag shared by every listener.
package lifecycle

import (
	"sync/atomic"
	"time"
)

// drainStart is the unix-nano time shutdown began, or zero while serving.
var drainStart atomic.Int64

// BeginShutdown marks the process as draining. /health on every listener
// reports shutting-down from then on. It returns false if shutdown had already begun.
func BeginShutdown() bool {
	return drainStart.CompareAndSwap(0, time.Now().UnixNano())
}

// IsShuttingDown reports whether BeginShutdown has been called.
func IsShuttingDown() bool {
	return drainStart.Load() != 0
}

// DrainingFor returns how long the process has been draining, or zero.
func DrainingFor() time.Duration {
	start := drainStart.Load()
	if start == 0 {
		return 0
	}
	return time.Since(time.Unix(0, start))
}

// Reset clears the drain flag. Tests use it to restore serving state.
func Reset() {
	drainStart.Store(0)
}
