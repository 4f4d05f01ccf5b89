package memo

import (
	"context"
	"reflect"
	"runtime"
)

// TaskFunc is the shape a memoized task body must have. args is the task's
// full argument tree, usually a Map Value; kwargs-style defaults injected by
// WithEnv are merged into it by the Memoize wrapper before the call is
// fingerprinted.
type TaskFunc func(ctx context.Context, args Value) (Value, error)

// taskDescriptor identifies a task by the pair (task name, defining module
// path) per SPEC_FULL.md §3. Go has no runtime equivalent of Python's
// __module__/sys.modules introspection for ahead-of-time-compiled code, so
// the module path is recovered via runtime.FuncForPC over the function
// value's program counter, which yields both the function's fully-qualified
// name and (via FileLine) the absolute path of its defining source file.
type taskDescriptor struct {
	Name       string
	ModulePath string // absolute path to the defining source file
}

// describeTask introspects fn to build its taskDescriptor. It must be called
// with the original, user-authored function value, before any wrapping —
// reflect.ValueOf(closure).Pointer() returns a closure literal's *code*
// pointer, which is shared by every closure instantiated from that same
// literal regardless of captured variables, so reflecting on an
// already-wrapped function would not distinguish between two differently
// configured wrappings of it. Memoize therefore calls this on its own fn
// argument directly, before applying WithEnv's default-merging (see
// memoize.go), rather than on anything WithEnv itself might return.
func describeTask(fn TaskFunc) taskDescriptor {
	pc := reflect.ValueOf(fn).Pointer()
	rf := runtime.FuncForPC(pc)
	if rf == nil {
		return taskDescriptor{Name: "unknown", ModulePath: "unknown"}
	}
	file, _ := rf.FileLine(pc)
	return taskDescriptor{Name: rf.Name(), ModulePath: file}
}

// moduleValue is the Value fed into tchash's fingerprint alongside task name
// and arguments (§3: "module path participates in fingerprinting via its
// source file's content"). KindModule hashes the source file's content
// directly, with no Node store/restore machinery attached.
func (d taskDescriptor) moduleValue() Value {
	return Module(d.ModulePath)
}

// moduleNodeValue is the dependency seeded into a fresh frame on call_start
// (§4.3: "seeded with a single dependency: the code module defining task, as
// a FileNode on its source file"). Using a Node here (rather than the plain
// Module scalar above) is what the spec's wording asks for, and means the
// seed participates like any other recorded dependency when rhash re-hashes
// the deps set against current content.
func (d taskDescriptor) moduleNodeValue() Value {
	return NodeValue(NodeFromPath(d.ModulePath))
}
