package memo

import (
	"context"
	"path/filepath"

	"memo/internal/procexec"
)

// ShellResult is the captured outcome of a Shell call.
type ShellResult struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Shell implements the task authoring contract's "tasks...may spawn
// external processes and wait" (SPEC_FULL.md §5): it runs command via
// internal/procexec under a strict environment allowlist (env, which may be
// nil for no environment at all) so that a task's observed runtime
// environment can never silently diverge from the arguments recorded in its
// fingerprint. A relative dir is resolved against the calling Engine's
// current logical working directory (ctx must carry one, e.g. from inside
// a Memoize-wrapped task body or a subdir callback); an absolute dir is
// used as-is. Shell does not itself call add_dep — a task invoking an
// external process is still responsible for declaring that process's
// inputs and outputs as dependencies.
func Shell(ctx context.Context, dir, command string, env map[string]string) (*ShellResult, error) {
	if e := engineFromContext(ctx); e != nil && !filepath.IsAbs(dir) {
		dir = filepath.Join(e.Cwd(), dir)
	}
	res, err := procexec.Run(ctx, dir, command, env)
	if err != nil {
		return nil, err
	}
	return &ShellResult{Stdout: res.Stdout, Stderr: res.Stderr, ExitCode: res.ExitCode}, nil
}
