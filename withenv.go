package memo

import "reflect"

// TaskOption configures a Memoize-wrapped task at registration time. The
// only option currently defined is WithEnv.
type TaskOption func(*taskConfig)

type taskConfig struct {
	defaults []MapEntry
}

// WithEnv implements the task authoring contract's with_env(**defaults)
// (SPEC_FULL.md §6): composed with Memoize, it injects default-valued
// configuration arguments into a task's args before fingerprinting, so that
// changing a default invalidates every cache entry keyed on it:
//
//	task := memo.Memoize(build, memo.WithEnv(memo.Entry(memo.Str("optimize"), memo.Bool(false))))
//
// Passed as a Memoize option (rather than a wrapper composed around the task
// function itself) so that Memoize's own task-descriptor introspection
// always sees the real, user-authored function — see task.go's describeTask
// comment for why wrapping the function value instead would not work.
func WithEnv(defaults ...MapEntry) TaskOption {
	return func(c *taskConfig) { c.defaults = append(c.defaults, defaults...) }
}

// withDefaults returns args with every entry of defaults whose key is absent
// from args appended to it. args is expected to be a KindMap Value (a
// non-Map args value is returned unchanged, since there are no keys to
// compare defaults against).
func withDefaults(args Value, defaults []MapEntry) Value {
	if args.Kind != KindMap || len(defaults) == 0 {
		return args
	}
	merged := make([]MapEntry, len(args.Map), len(args.Map)+len(defaults))
	copy(merged, args.Map)
	for _, d := range defaults {
		if !hasKey(merged, d.Key) {
			merged = append(merged, d)
		}
	}
	return Map(merged...)
}

// hasKey reports whether entries already contains key. Task kwargs are
// conventionally keyed by KindString values; other key kinds fall back to a
// structural comparison of their jsonValue encoding.
func hasKey(entries []MapEntry, key Value) bool {
	for _, e := range entries {
		if key.Kind == KindString && e.Key.Kind == KindString {
			if e.Key.Str == key.Str {
				return true
			}
			continue
		}
		if valuesStructurallyEqual(e.Key, key) {
			return true
		}
	}
	return false
}

func valuesStructurallyEqual(a, b Value) bool {
	ja, err1 := toJSONValue(a)
	jb, err2 := toJSONValue(b)
	if err1 != nil || err2 != nil {
		return false
	}
	return reflect.DeepEqual(ja, jb)
}
