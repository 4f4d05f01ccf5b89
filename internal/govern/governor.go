// Package govern implements the executor / concurrency governor of
// SPEC_FULL.md §4.6: a counting semaphore bounding in-flight tasks plus a
// process-global failure latch that releases all waiters on trip. The
// worker-pool shape (buffered channel as a semaphore, guarded shared state)
// is grounded on internal/dag/executor.go's RunParallel, adapted from a
// depth-staged task-graph scheduler down to the simpler "acquire one permit
// per call, release on return" protocol this spec calls for.
package govern

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrFailed is returned by Acquire once the latch has tripped, including to
// callers already waiting on a permit when the trip happens.
var ErrFailed = errors.New("govern: build failed")

// Governor bounds concurrent task execution to Capacity permits and exposes
// a one-shot failure latch that aborts all outstanding and future
// acquisitions (SPEC_FULL.md §4.6, §5 cancellation model).
type Governor struct {
	permits chan struct{}

	mu       sync.Mutex
	failed   atomic.Bool
	abort    chan struct{}
	abortMsg string

	inFlight atomic.Int64
}

// New constructs a Governor with the given permit capacity. capacity <= 0 is
// treated as 1 (a build must always be able to make progress).
func New(capacity int) *Governor {
	if capacity <= 0 {
		capacity = 1
	}
	return &Governor{
		permits: make(chan struct{}, capacity),
		abort:   make(chan struct{}),
	}
}

// Acquire blocks until a permit is available, the latch trips, or ctx is
// done, whichever happens first. The returned release func must be called
// exactly once, on every path including task failure.
func (g *Governor) Acquire(ctx context.Context) (release func(), err error) {
	select {
	case <-g.abort:
		return nil, g.failErr()
	default:
	}

	select {
	case g.permits <- struct{}{}:
	case <-g.abort:
		return nil, g.failErr()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	g.inFlight.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() {
			g.inFlight.Add(-1)
			<-g.permits
		})
	}, nil
}

// InFlight returns the current number of held permits, exported as the
// Prometheus gauge described in §4.6.
func (g *Governor) InFlight() int64 { return g.inFlight.Load() }

// Failed reports whether the latch has tripped.
func (g *Governor) Failed() bool { return g.failed.Load() }

// FailErr returns the error a waiter blocked on Acquire would have received,
// wrapping ErrFailed with the message passed to Fail. Callers that observe
// Failed() == true outside of Acquire (e.g. Engine.invoke's upfront check)
// use this to report the same error consistently.
func (g *Governor) FailErr() error { return g.failErr() }

// Fail trips the latch, recording msg, and releases every waiter blocked in
// Acquire. It is idempotent: only the first call's message is kept.
func (g *Governor) Fail(msg string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failed.Swap(true) {
		return
	}
	g.abortMsg = msg
	close(g.abort)
}

func (g *Governor) failErr() error {
	g.mu.Lock()
	msg := g.abortMsg
	g.mu.Unlock()
	if msg == "" {
		return ErrFailed
	}
	return fmt.Errorf("%w: %s", ErrFailed, msg)
}
