package memo

import (
	"context"
	"sync/atomic"
	"testing"
)

// TestWithEnv_InjectsMissingDefault verifies that with_env's injected
// defaults reach the task body when the caller omits the corresponding
// argument (SPEC_FULL.md §6).
func TestWithEnv_InjectsMissingDefault(t *testing.T) {
	_, ctx := newTestEngine(t)

	var seenOptimize bool
	build := Memoize(func(ctx context.Context, args Value) (Value, error) {
		seenOptimize = fieldBool(args, "optimize")
		return Nil(), nil
	}, WithEnv(Entry(Str("optimize"), Bool(true))))

	if _, err := build(ctx, Map()); err != nil {
		t.Fatalf("build: %v", err)
	}
	if !seenOptimize {
		t.Error("task body did not see the injected default for optimize")
	}
}

// TestWithEnv_CallerValueOverridesDefault verifies an explicitly supplied
// argument is not clobbered by with_env's default.
func TestWithEnv_CallerValueOverridesDefault(t *testing.T) {
	_, ctx := newTestEngine(t)

	var seenOptimize bool
	build := Memoize(func(ctx context.Context, args Value) (Value, error) {
		seenOptimize = fieldBool(args, "optimize")
		return Nil(), nil
	}, WithEnv(Entry(Str("optimize"), Bool(true))))

	if _, err := build(ctx, Map(Entry(Str("optimize"), Bool(false)))); err != nil {
		t.Fatalf("build: %v", err)
	}
	if seenOptimize {
		t.Error("with_env default overrode the caller's explicit argument")
	}
}

// TestWithEnv_ChangingDefaultInvalidatesCache verifies "argument sensitivity"
// (§8 invariants) extends to defaults injected by with_env: two otherwise
// identical calls wrapped with different defaults must re-execute rather
// than share a cache entry.
func TestWithEnv_ChangingDefaultInvalidatesCache(t *testing.T) {
	_, ctx := newTestEngine(t)

	var execCount int32
	body := func(ctx context.Context, args Value) (Value, error) {
		atomic.AddInt32(&execCount, 1)
		return Nil(), nil
	}

	buildV1 := Memoize(body, WithEnv(Entry(Str("level"), Int(1))))
	if _, err := buildV1(ctx, Map()); err != nil {
		t.Fatalf("buildV1: %v", err)
	}

	buildV2 := Memoize(body, WithEnv(Entry(Str("level"), Int(2))))
	if _, err := buildV2(ctx, Map()); err != nil {
		t.Fatalf("buildV2: %v", err)
	}

	if n := atomic.LoadInt32(&execCount); n != 2 {
		t.Errorf("exec count after changing with_env default = %d, want 2", n)
	}
}

func fieldBool(v Value, key string) bool {
	for _, e := range v.Map {
		if e.Key.Kind == KindString && e.Key.Str == key {
			return e.Value.Bool
		}
	}
	return false
}
