package memo

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

// TestGC_ReportsOrphanedBlobAfterInputChanges verifies scenario: a file-based
// task's blob becomes orphaned once its input changes and the task re-runs,
// leaving the old content unreferenced by any live result (§4.8).
func TestGC_ReportsOrphanedBlobAfterInputChanges(t *testing.T) {
	e, ctx := newTestEngine(t)

	srcPath := filepath.Join(t.TempDir(), "a.c")
	if err := os.WriteFile(srcPath, []byte("v1"), 0o644); err != nil {
		t.Fatal(err)
	}

	outPath := filepath.Join(t.TempDir(), "a.o")

	compile := Memoize(func(ctx context.Context, args Value) (Value, error) {
		AddDep(ctx, NodeValue(NodeFromPath(srcPath)))
		data, err := os.ReadFile(srcPath)
		if err != nil {
			return Value{}, err
		}
		if err := os.WriteFile(outPath, append([]byte("object-"), data...), 0o644); err != nil {
			return Value{}, err
		}
		return NodeValue(NodeFromPath(outPath)), nil
	})
	if _, err := compile(ctx, Map()); err != nil {
		t.Fatalf("first compile: %v", err)
	}

	report, err := GC(ctx, e, 0, false)
	if err != nil {
		t.Fatalf("GC: %v", err)
	}
	if len(report.OrphanedBlobs) != 0 {
		t.Errorf("unexpected orphaned blobs before any change: %v", report.OrphanedBlobs)
	}
	if report.LiveBlobs != 1 {
		t.Errorf("live blobs before any change = %d, want 1", report.LiveBlobs)
	}

	if err := os.WriteFile(srcPath, []byte("v2"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := compile(ctx, Map()); err != nil {
		t.Fatalf("second compile: %v", err)
	}

	report, err = GC(ctx, e, 0, false)
	if err != nil {
		t.Fatalf("GC after change: %v", err)
	}
	if len(report.OrphanedBlobs) != 1 {
		t.Errorf("orphaned blobs after input change = %v, want exactly the first output's blob", report.OrphanedBlobs)
	}
	if report.LiveBlobs != 1 {
		t.Errorf("live blobs after input change = %d, want 1", report.LiveBlobs)
	}
}

// TestGC_DryRunDoesNotRemoveFiles verifies the default dry-run mode reports
// without mutating the blob area.
func TestGC_DryRunDoesNotRemoveFiles(t *testing.T) {
	e, ctx := newTestEngine(t)

	srcPath := filepath.Join(t.TempDir(), "a.c")
	if err := os.WriteFile(srcPath, []byte("v1"), 0o644); err != nil {
		t.Fatal(err)
	}
	outPath := filepath.Join(t.TempDir(), "a.o")

	compile := Memoize(func(ctx context.Context, args Value) (Value, error) {
		AddDep(ctx, NodeValue(NodeFromPath(srcPath)))
		if err := os.WriteFile(outPath, []byte("object-v1"), 0o644); err != nil {
			return Value{}, err
		}
		return NodeValue(NodeFromPath(outPath)), nil
	})
	if _, err := compile(ctx, Map()); err != nil {
		t.Fatalf("compile: %v", err)
	}

	report, err := GC(ctx, e, 0, false)
	if err != nil {
		t.Fatalf("GC: %v", err)
	}
	if report.LiveBlobs == 0 {
		t.Error("expected at least one live blob for the stored FileNode result")
	}
	if len(report.RemovedBlobs) != 0 {
		t.Error("dry-run GC must not remove anything")
	}
}
