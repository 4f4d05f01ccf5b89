package memo

import "context"

// Fail implements the task authoring contract's fail(msg?) (SPEC_FULL.md
// §6): it trips the process-global failure latch of the Engine reachable
// from ctx and returns a *TaskError describing why, which the caller should
// return immediately from its task body. Calling Fail outside of a memoized
// task (a context carrying no Engine) is a no-op beyond constructing the
// error, since there is no latch to trip.
func Fail(ctx context.Context, msg string) error {
	if e := engineFromContext(ctx); e != nil {
		e.Fail(msg)
	}
	return &TaskError{Msg: msg}
}
