package memo

import (
	"context"
	"sync"
)

// frame is a single dependency-collection frame, realizing the per-worker
// dependency stack of SPEC_FULL.md §4.3 as a context-threaded chain rather
// than goroutine-local storage, per §9's "task-local context" design note.
// Each memoized call pushes a frame by deriving a child context carrying a
// *frame; nested memoized calls invoked with that child context get their
// own fresh frame in turn, so an inner call's dependencies never leak into
// the outer call's frame unless the outer call explicitly re-adds them.
type frame struct {
	mu   sync.Mutex
	deps []Value
}

func (f *frame) append(vs ...Value) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deps = append(f.deps, vs...)
}

func (f *frame) snapshot() []Value {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Value, len(f.deps))
	copy(out, f.deps)
	return out
}

// callStart pushes a new frame onto ctx, seeded with seed (typically the
// Module value of the task being entered), and returns the context carrying
// it along with the frame itself so the caller can later call_finish it.
func callStart(ctx context.Context, seed Value) (context.Context, *frame) {
	f := &frame{deps: []Value{seed}}
	return context.WithValue(ctx, ctxKeyFrame, f), f
}

// callFinish pops f by returning its recorded dependency list. There is
// nothing to mutate on ctx: popping is implicit in the caller reverting to
// whatever context it held before callStart was called.
func callFinish(f *frame) []Value {
	return f.snapshot()
}

func frameFromContext(ctx context.Context) *frame {
	f, _ := ctx.Value(ctxKeyFrame).(*frame)
	return f
}

// AddDep declares an input dependency from within a task body, appending to
// the top (innermost) frame of ctx's dependency stack (SPEC_FULL.md §6 task
// authoring contract). It is a no-op if ctx carries no active frame, which
// happens when called outside of any memoized task — callers relying on
// AddDep from task bodies invoked via Memoize need not check for this.
func AddDep(ctx context.Context, v Value) {
	if f := frameFromContext(ctx); f != nil {
		f.append(v)
	}
}

// AddDeps declares multiple input dependencies at once; see AddDep.
func AddDeps(ctx context.Context, vs ...Value) {
	if f := frameFromContext(ctx); f != nil {
		f.append(vs...)
	}
}
