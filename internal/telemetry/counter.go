// Package telemetry keeps process-lifetime usage counters per backend.
package telemetry

import (
	"sync"
	"time"

	"github.com/upb/omniagent/internal/router"
	"github.com/upb/omniagent/internal/shared"
)

// Snapshot is a point-in-time copy of the counters. Mutating it does not
// affect the Counter.
type Snapshot struct {
	// Backends counts successful invocations per backend identifier.
	Backends  map[string]uint64 `json:"backends"`
	Fallbacks uint64            `json:"fallbacks"`
	// Failures counts terminal failures per error kind.
	Failures  map[shared.ErrorKind]uint64 `json:"failures"`
	Total     uint64                      `json:"total"`
	StartedAt time.Time                   `json:"started_at"`
}

// Recorder receives invocation outcomes.
type Recorder interface {
	Record(outcome router.InvocationOutcome)
}

// Counter is a concurrency-safe set of monotonic usage counters. It is
// written after each invocation and read only for display; routing never
// consults it.
type Counter struct {
	mu        sync.Mutex
	backends  map[string]uint64
	failures  map[shared.ErrorKind]uint64
	fallbacks uint64
	total     uint64
	startedAt time.Time
}

// NewCounter creates an empty counter.
func NewCounter() *Counter {
	return &Counter{
		backends:  make(map[string]uint64),
		failures:  make(map[shared.ErrorKind]uint64),
		startedAt: time.Now(),
	}
}

// Record counts one outcome. Abandoned outcomes are ignored.
func (c *Counter) Record(outcome router.InvocationOutcome) {
	if outcome.Abandoned {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.total++
	if outcome.Succeeded {
		c.backends[outcome.Decision.TargetBackend]++
	} else if outcome.ErrorKind != shared.KindNone {
		c.failures[outcome.ErrorKind]++
	}
	if outcome.UsedFallback {
		c.fallbacks++
	}
}

// Snapshot returns a copy of the current counters.
func (c *Counter) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	backends := make(map[string]uint64, len(c.backends))
	for k, v := range c.backends {
		backends[k] = v
	}
	failures := make(map[shared.ErrorKind]uint64, len(c.failures))
	for k, v := range c.failures {
		failures[k] = v
	}

	return Snapshot{
		Backends:  backends,
		Fallbacks: c.fallbacks,
		Failures:  failures,
		Total:     c.total,
		StartedAt: c.startedAt,
	}
}
