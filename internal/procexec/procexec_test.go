package procexec

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"
)

func TestRun_UndeclaredHostVarInvisible(t *testing.T) {
	os.Setenv("SECRET_HOST_VAR", "should_not_see_this")
	defer os.Unsetenv("SECRET_HOST_VAR")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := Run(ctx, t.TempDir(), `echo "VAR=${SECRET_HOST_VAR:-unset}"`, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if strings.Contains(string(res.Stdout), "should_not_see_this") {
		t.Errorf("process observed undeclared host variable: %s", res.Stdout)
	}
	if !strings.Contains(string(res.Stdout), "VAR=unset") {
		t.Errorf("expected VAR=unset, got %q", res.Stdout)
	}
}

func TestRun_DeclaredVarVisible(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := Run(ctx, t.TempDir(), `echo "VAR=$FOO"`, map[string]string{"FOO": "bar"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(string(res.Stdout), "VAR=bar") {
		t.Errorf("expected VAR=bar, got %q", res.Stdout)
	}
}

func TestRun_NonZeroExitReportedNotErrored(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := Run(ctx, t.TempDir(), "exit 7", nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ExitCode != 7 {
		t.Errorf("ExitCode = %d, want 7", res.ExitCode)
	}
}

func TestRun_CancellationKillsProcessGroup(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := Run(ctx, t.TempDir(), "sleep 5", nil)
	if err == nil {
		t.Fatal("expected an error from a cancelled run")
	}
}
