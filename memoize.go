package memo

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"memo/internal/history"
	"memo/internal/metrics"
	"memo/internal/store"
)

// Memoize wraps fn into a memoized task function implementing the
// lookup/execute/store protocol of SPEC_FULL.md §4.5. The returned function
// must be called with a context derived from Engine.Context; calling it with
// a context carrying no Engine panics, since there would be no store to look
// up against.
//
// opts (currently only WithEnv) configure the wrapping at registration time;
// fn's descriptor is captured here, on the original function value, before
// any default-merging is applied to a given call's args.
func Memoize(fn TaskFunc, opts ...TaskOption) TaskFunc {
	desc := describeTask(fn)
	var cfg taskConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return func(ctx context.Context, args Value) (Value, error) {
		e := engineFromContext(ctx)
		if e == nil {
			panic("memo: Memoize-wrapped task invoked with a context carrying no Engine (use Engine.Context)")
		}
		return e.invoke(ctx, desc, fn, withDefaults(args, cfg.defaults))
	}
}

// invoke runs the full state machine of §4.5 for one call to a task
// described by desc, bounded by the engine's concurrency governor.
func (e *Engine) invoke(ctx context.Context, desc taskDescriptor, fn TaskFunc, args Value) (Value, error) {
	if e.Failed() {
		return Value{}, e.governor.FailErr()
	}

	tcKey := Map(
		Entry(Str("name"), Str(desc.Name)),
		Entry(Str("module"), desc.moduleValue()),
		Entry(Str("args"), args),
	)
	tcFP, err := Fingerprint(ctx, tcKey)
	if err != nil {
		return Value{}, fmt.Errorf("memo: fingerprinting call to %s: %w", desc.Name, err)
	}
	tchash := hex.EncodeToString(tcFP)

	deps, ok, err := e.lookupDeps(ctx, tchash)
	if err != nil {
		return Value{}, err
	}
	if ok {
		metrics.ObserveLookup(desc.Name, metrics.OutcomeDepsHit)
		rhash, err := e.rhashFor(ctx, tchash, deps)
		switch {
		case err != nil && errors.Is(err, ErrMissingInput):
			// An input recorded in this tchash's deps set no longer exists
			// (§4.1's error-conditions note): fold into an ordinary miss.
			metrics.ObserveLookup(desc.Name, metrics.OutcomeResultMiss)
		case err != nil:
			return Value{}, err
		default:
			if result, ok, err := e.lookupResult(ctx, rhash); err != nil {
				return Value{}, err
			} else if ok {
				metrics.ObserveLookup(desc.Name, metrics.OutcomeResultHit)
				metrics.ObserveLookup(desc.Name, metrics.OutcomeRestored)
				if err := restoreResult(ctx, result, e.BlobDir()); err != nil {
					return Value{}, err
				}
				AddDep(ctx, NodeValue(NodeFromPath(desc.ModulePath)))
				e.history.RecordBestEffort(ctx, history.Invocation{
					RunID: e.runID, TaskName: desc.Name, TCHash: tchash, RHash: hex.EncodeToString(rhash),
					Outcome: history.OutcomeRestored,
				}, e.logErr)
				return result, nil
			}
			metrics.ObserveLookup(desc.Name, metrics.OutcomeResultMiss)
		}
	} else {
		metrics.ObserveLookup(desc.Name, metrics.OutcomeDepsMiss)
	}

	return e.execute(ctx, desc, fn, args, tchash)
}

// execute runs the EXEC branch of §4.5 step 4: a fresh dependency frame,
// the task body itself (bounded by a governor permit), store on every
// resulting node, then the result-before-deps write ordering.
func (e *Engine) execute(ctx context.Context, desc taskDescriptor, fn TaskFunc, args Value, tchash string) (Value, error) {
	release, err := e.acquire(ctx)
	if err != nil {
		return Value{}, err
	}
	defer release()

	callCtx, f := callStart(ctx, desc.moduleNodeValue())

	start := time.Now()
	result, err := fn(callCtx, args)
	elapsed := time.Since(start)

	if e.Failed() {
		return Value{}, e.governor.FailErr()
	}
	if err != nil {
		e.logger.Debug().Str("task", desc.Name).Err(err).Msg("task failed")
		metrics.ObserveLookup(desc.Name, metrics.OutcomeFailed)
		e.history.RecordBestEffort(ctx, history.Invocation{
			RunID: e.runID, TaskName: desc.Name, TCHash: tchash,
			Outcome: history.OutcomeFailed, Duration: elapsed,
		}, e.logErr)
		return Value{}, err
	}

	deps := callFinish(f)

	if err := storeResult(ctx, result, e.BlobDir()); err != nil {
		return Value{}, err
	}

	rhash, err := e.rhashFor(ctx, tchash, deps)
	if err != nil {
		return Value{}, err
	}

	if err := e.putResult(rhash, result); err != nil {
		return Value{}, err
	}
	if err := e.putDeps(tchash, deps); err != nil {
		return Value{}, err
	}

	metrics.ObserveExecution(desc.Name, elapsed)
	metrics.ObserveLookup(desc.Name, metrics.OutcomeStored)
	e.history.RecordBestEffort(ctx, history.Invocation{
		RunID: e.runID, TaskName: desc.Name, TCHash: tchash, RHash: hex.EncodeToString(rhash),
		Outcome: history.OutcomeStored, Duration: elapsed,
	}, e.logErr)

	AddDep(ctx, NodeValue(NodeFromPath(desc.ModulePath)))
	return result, nil
}

// rhashFor computes the result-key fingerprint of (tchash, deps), re-hashing
// every node in deps against its current content (§4.5 step 2).
func (e *Engine) rhashFor(ctx context.Context, tchash string, deps []Value) ([]byte, error) {
	key := Map(
		Entry(Str("tchash"), Str(tchash)),
		Entry(Str("deps"), Seq(deps...)),
	)
	fp, err := Fingerprint(ctx, key)
	if err != nil {
		if isMissingInput(err) {
			return nil, errRhashMiss
		}
		return nil, fmt.Errorf("memo: computing rhash: %w", err)
	}
	return fp, nil
}

// errRhashMiss is a private sentinel distinguishing "an input vanished
// between deps recording and now" (an ordinary miss, per §4.1's error-
// conditions note) from a genuine fingerprinting failure.
var errRhashMiss = fmt.Errorf("%w: input referenced by deps set no longer present", ErrMissingInput)

func isMissingInput(err error) bool {
	return errors.Is(err, ErrMissingInput)
}

func (e *Engine) lookupDeps(ctx context.Context, tchash string) ([]Value, bool, error) {
	data, err := e.store.GetDeps(tchash)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("memo: reading deps for %s: %w", tchash, err)
	}
	var v Value
	if err := v.UnmarshalJSON(data); err != nil {
		return nil, false, fmt.Errorf("%w: decoding deps for %s: %v", ErrCacheCorruption, tchash, err)
	}
	if v.Kind != KindSeq {
		return nil, false, fmt.Errorf("%w: deps entry for %s is not a sequence", ErrCacheCorruption, tchash)
	}
	return v.Seq, true, nil
}

func (e *Engine) putDeps(tchash string, deps []Value) error {
	data, err := Seq(deps...).MarshalJSON()
	if err != nil {
		return fmt.Errorf("memo: encoding deps for %s: %w", tchash, err)
	}
	if err := e.store.PutDeps(tchash, data); err != nil {
		return fmt.Errorf("memo: writing deps for %s: %w", tchash, err)
	}
	return nil
}

func (e *Engine) lookupResult(ctx context.Context, rhash []byte) (Value, bool, error) {
	key := hex.EncodeToString(rhash)
	data, err := e.store.GetResult(key)
	if err != nil {
		if err == store.ErrNotFound {
			return Value{}, false, nil
		}
		return Value{}, false, fmt.Errorf("memo: reading result %s: %w", key, err)
	}
	var v Value
	if err := v.UnmarshalJSON(data); err != nil {
		return Value{}, false, fmt.Errorf("%w: decoding result %s: %v", ErrCacheCorruption, key, err)
	}
	return v, true, nil
}

func (e *Engine) putResult(rhash []byte, result Value) error {
	key := hex.EncodeToString(rhash)
	data, err := result.MarshalJSON()
	if err != nil {
		return fmt.Errorf("memo: encoding result %s: %w", key, err)
	}
	if err := e.store.PutResult(key, data); err != nil {
		return fmt.Errorf("memo: writing result %s: %w", key, err)
	}
	return nil
}

func (e *Engine) logErr(err error) {
	e.logger.Warn().Err(err).Msg("history write failed (best-effort, build unaffected)")
}

// storeResult walks result depth-first and calls Store on every node
// (§4.5 step 4d).
func storeResult(ctx context.Context, result Value, blobDir string) error {
	return walkNodes(result, func(n Node) error {
		if err := n.Store(ctx, blobDir); err != nil {
			return fmt.Errorf("memo: storing node: %w", err)
		}
		return nil
	})
}

// restoreResult walks result depth-first and calls Restore on every node
// (§4.5 step 3).
func restoreResult(ctx context.Context, result Value, blobDir string) error {
	return walkNodes(result, func(n Node) error {
		if err := n.Restore(ctx, blobDir); err != nil {
			return fmt.Errorf("memo: restoring node: %w", err)
		}
		return nil
	})
}
