package loader

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"memo"
)

// TestOpen_MissingFile_WrapsErrBuildDescription verifies a plugin that
// cannot be opened reports as a build-description error (§7 kind 4), not a
// raw os error, so cmd/mem can map it to ExitConfigError by sentinel rather
// than string matching.
func TestOpen_MissingFile_WrapsErrBuildDescription(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "does-not-exist.so"))
	if err == nil {
		t.Fatal("expected an error opening a nonexistent plugin")
	}
	if !errors.Is(err, memo.ErrBuildDescription) {
		t.Errorf("error does not wrap ErrBuildDescription: %v", err)
	}
}

// TestRun_MissingFile_WrapsErrBuildDescription verifies the Run convenience
// wrapper surfaces the same sentinel as Open.
func TestRun_MissingFile_WrapsErrBuildDescription(t *testing.T) {
	err := Run(nil, filepath.Join(t.TempDir(), "missing.so"), "Build", nil)
	if !errors.Is(err, memo.ErrBuildDescription) {
		t.Errorf("error does not wrap ErrBuildDescription: %v", err)
	}
}

// TestSubdir_MissingFile_WrapsErrBuildDescription verifies subdir(path)'s
// nested-plugin load fails the same way a top-level load would.
func TestSubdir_MissingFile_WrapsErrBuildDescription(t *testing.T) {
	_, err := Subdir(filepath.Join(t.TempDir(), "nested.so"), "sub")
	if !errors.Is(err, memo.ErrBuildDescription) {
		t.Errorf("error does not wrap ErrBuildDescription: %v", err)
	}
}

// TestWatch_MissingFile_WrapsErrBuildDescription verifies Watch's initial
// load failure is reported the same way Open's is, without starting a
// watch loop on a plugin that was never successfully opened.
func TestWatch_MissingFile_WrapsErrBuildDescription(t *testing.T) {
	_, err := Watch(filepath.Join(t.TempDir(), "missing.so"), zerolog.Nop())
	if !errors.Is(err, memo.ErrBuildDescription) {
		t.Errorf("error does not wrap ErrBuildDescription: %v", err)
	}
}
