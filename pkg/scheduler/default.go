package scheduler

import (
	"sync"

	"github.com/Sternrassler/portal-api-client/pkg/logging"
)

var (
	defaultMu        sync.Mutex
	defaultScheduler *Scheduler
)

// Default returns the process-wide Scheduler, creating it with
// DefaultConfig on first use. Clients that share it share one queue and
// one backoff multiplier.
func Default() *Scheduler {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultScheduler == nil {
		defaultScheduler = New(DefaultConfig(), logging.NewLogger("scheduler"))
	}
	return defaultScheduler
}

// ResetDefault discards the process-wide Scheduler so the next Default call
// creates a fresh one. Intended for tests.
func ResetDefault() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultScheduler = nil
}
