package memo

import "errors"

// Sentinel errors for the four error kinds of the error handling design.
// Each is errors.Is-comparable so callers (notably cmd/mem) can map a failure
// to a stable process exit code without string-matching messages.
var (
	// ErrMissingInput is returned when a declared input (typically a
	// FileNode's path) does not exist at fingerprint time. Encountered during
	// a cache lookup this is folded into an ordinary miss; encountered while
	// a task itself reads the file it surfaces as a task failure instead.
	ErrMissingInput = errors.New("memo: missing input")

	// ErrTaskFailure wraps a message passed to Fail from within a task body.
	ErrTaskFailure = errors.New("memo: task failure")

	// ErrCacheCorruption indicates a deps entry exists with no corresponding
	// result entry, or a result references a blob that is no longer present.
	// The store is expected to be purged (or pruned with `mem gc --apply`).
	ErrCacheCorruption = errors.New("memo: cache corruption")

	// ErrBuildDescription indicates a build plugin could not be loaded or the
	// requested entry point does not exist within it.
	ErrBuildDescription = errors.New("memo: build description error")

	// ErrCyclicValue is returned by Fingerprint, and by the node walk that
	// runs before a result is written, when a value tree contains a
	// reference cycle, rather than looping forever on one. MarshalJSON itself
	// does not check for cycles.
	ErrCyclicValue = errors.New("memo: cyclic value")
)

// TaskError wraps ErrTaskFailure with the message passed to Fail.
type TaskError struct {
	Msg string
}

func (e *TaskError) Error() string {
	if e.Msg == "" {
		return ErrTaskFailure.Error()
	}
	return ErrTaskFailure.Error() + ": " + e.Msg
}

func (e *TaskError) Unwrap() error { return ErrTaskFailure }
