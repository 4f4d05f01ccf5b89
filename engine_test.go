package memo

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"memo/internal/digest"
)

// TestNew_WritesDigestMarkerOnFirstOpen verifies SPEC_FULL.md §4.2's
// expansion: opening a fresh store directory records the chosen digest
// algorithm in .mem/DIGEST (here just "DIGEST" under the store root).
func TestNew_WritesDigestMarkerOnFirstOpen(t *testing.T) {
	dir := t.TempDir()
	e, err := New(context.Background(), dir, WithDigestAlgorithm(digest.SHA256))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Close()

	data, err := os.ReadFile(filepath.Join(dir, digestMarkerFile))
	if err != nil {
		t.Fatalf("reading digest marker: %v", err)
	}
	if string(data) != string(digest.SHA256) {
		t.Errorf("digest marker = %q, want %q", data, digest.SHA256)
	}
}

// TestNew_RejectsDigestMismatch verifies the loader refuses to reopen a
// store under a different digest algorithm than the one it was created with.
func TestNew_RejectsDigestMismatch(t *testing.T) {
	dir := t.TempDir()

	e1, err := New(context.Background(), dir, WithDigestAlgorithm(digest.SHA256))
	if err != nil {
		t.Fatalf("first New: %v", err)
	}
	e1.Close()

	_, err = New(context.Background(), dir, WithDigestAlgorithm(digest.BLAKE2b))
	if err == nil {
		t.Fatal("expected an error reopening a sha256 store with blake2b configured")
	}
}

// TestEngine_ContextCarriesEngineAndDigest verifies Engine.Context installs
// both the engine (for Memoize/Fail lookups) and the configured digest (for
// Fingerprint) onto the returned context.
func TestEngine_ContextCarriesEngineAndDigest(t *testing.T) {
	e, err := New(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Close()

	ctx := e.Context(context.Background())
	if engineFromContext(ctx) != e {
		t.Error("Context-derived context does not resolve back to the same Engine")
	}

	fp1, err := Fingerprint(ctx, Str("hello"))
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	fp2, err := Fingerprint(ctx, Str("hello"))
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	if string(fp1) != string(fp2) {
		t.Error("Fingerprint is not deterministic across calls on the same context")
	}
}
