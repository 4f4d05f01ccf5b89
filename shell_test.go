package memo

import (
	"context"
	"strings"
	"testing"
)

// TestShell_RunsCommandWithAllowlistedEnv verifies that a task body can
// spawn an external process via Shell and observe only the variables it
// declared, exercising §5's "tasks...may spawn external processes and wait"
// end to end through a Memoize-wrapped task.
func TestShell_RunsCommandWithAllowlistedEnv(t *testing.T) {
	_, ctx := newTestEngine(t)

	echoVar := Memoize(func(ctx context.Context, args Value) (Value, error) {
		res, err := Shell(ctx, ".", `echo "VAR=$GREETING"`, map[string]string{"GREETING": "hello"})
		if err != nil {
			return Value{}, err
		}
		return Str(string(res.Stdout)), nil
	})

	result, err := echoVar(ctx, Map())
	if err != nil {
		t.Fatalf("echoVar: %v", err)
	}
	if !strings.Contains(result.Str, "VAR=hello") {
		t.Errorf("expected VAR=hello in output, got %q", result.Str)
	}
}

// TestShell_UndeclaredHostVarInvisible verifies a task's shelled-out command
// never inherits the host's environment, only what it explicitly declared.
func TestShell_UndeclaredHostVarInvisible(t *testing.T) {
	t.Setenv("SECRET_HOST_VAR", "should_not_see_this")
	_, ctx := newTestEngine(t)

	res, err := Shell(ctx, ".", `echo "VAR=${SECRET_HOST_VAR:-unset}"`, nil)
	if err != nil {
		t.Fatalf("Shell: %v", err)
	}
	if strings.Contains(string(res.Stdout), "should_not_see_this") {
		t.Errorf("shelled command observed undeclared host variable: %s", res.Stdout)
	}
}

// TestShell_NonZeroExitReportedNotErrored verifies a failing command is
// reported via ExitCode rather than as a Go error, so a task can inspect
// and cache a deliberate non-zero-exit result.
func TestShell_NonZeroExitReportedNotErrored(t *testing.T) {
	_, ctx := newTestEngine(t)

	res, err := Shell(ctx, ".", "exit 3", nil)
	if err != nil {
		t.Fatalf("Shell: %v", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", res.ExitCode)
	}
}
