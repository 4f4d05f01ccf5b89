package memo

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FileNode is the sole required Node variant: a filesystem path plus a
// fingerprint derived from its content. A missing file is not an error at
// construction time; it only surfaces when Fingerprint is called, per
// SPEC_FULL.md §4.1's error-conditions note (a missing file turns the
// enclosing lookup into a miss, never a crash).
type FileNode struct {
	Path string

	// ContentHash is the hex SHA-256 of the content last passed to Store,
	// populated by Store and consulted by Restore to locate the blob. It is
	// part of the node's JSON representation so a result loaded from disk in
	// a fresh process still knows which blob to restore from.
	ContentHash string
}

var _ Node = (*FileNode)(nil)

// Fingerprint hashes the file's current content. It returns ErrMissingInput
// (wrapped) if the file does not exist, which the memoizer treats as a cache
// miss rather than a fatal error.
func (n *FileNode) Fingerprint(ctx context.Context) ([]byte, error) {
	f, err := os.Open(n.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrMissingInput, n.Path)
		}
		return nil, fmt.Errorf("memo: opening %s: %w", n.Path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, fmt.Errorf("memo: hashing %s: %w", n.Path, err)
	}
	return h.Sum(nil), nil
}

// Store copies the node's current file content into the blob area, keyed by
// content hash, so a later Restore can reproduce it without the original
// task re-running. Idempotent: re-storing identical content is a cheap no-op
// via the hash-compare-then-atomic-write skip used by Restore as well.
func (n *FileNode) Store(ctx context.Context, blobDir string) error {
	data, err := os.ReadFile(n.Path)
	if err != nil {
		return fmt.Errorf("memo: reading %s for store: %w", n.Path, err)
	}
	sum := sha256.Sum256(data)
	n.ContentHash = hex.EncodeToString(sum[:])
	blobPath := shardedPath(blobDir, n.ContentHash)
	return atomicWriteIfDifferent(blobPath, data)
}

// Restore copies the node's blob back to Path, creating parent directories as
// needed. Absence of the blob is fatal cache corruption: the store promised
// this content exists. Restore requires ContentHash to already be populated,
// which is true for any FileNode decoded from a stored result (see
// jsonNode); a FileNode that was never Store()'d has nothing to restore.
func (n *FileNode) Restore(ctx context.Context, blobDir string) error {
	if n.ContentHash == "" {
		return fmt.Errorf("%w: %s has no recorded content hash to restore from", ErrCacheCorruption, n.Path)
	}

	if existing, err := hexSHA256IfExists(n.Path); err == nil && existing == n.ContentHash {
		return nil
	}

	blobPath := shardedPath(blobDir, n.ContentHash)
	data, err := os.ReadFile(blobPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: blob %s missing for %s", ErrCacheCorruption, n.ContentHash, n.Path)
		}
		return fmt.Errorf("memo: reading blob for %s: %w", n.Path, err)
	}

	if err := os.MkdirAll(filepath.Dir(n.Path), 0o755); err != nil {
		return fmt.Errorf("memo: creating parent dir for %s: %w", n.Path, err)
	}
	return atomicWrite(n.Path, data, 0o644)
}

func shardedPath(root, hexKey string) string {
	if len(hexKey) < 2 {
		return filepath.Join(root, hexKey)
	}
	return filepath.Join(root, hexKey[:2], hexKey[2:])
}

func hexSHA256IfExists(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func atomicWriteIfDifferent(path string, data []byte) error {
	if existing, err := os.ReadFile(path); err == nil {
		if bytesEqual(existing, data) {
			return nil
		}
	}
	return atomicWrite(path, data, 0o644)
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// atomicWrite writes data to path via write-to-temp-then-rename in the same
// directory, grounded on internal/core/replay.go's atomicWriteFile and
// internal/recovery/state/store.go's writeFileAtomicDurable (SPEC_FULL.md
// §4.1, §4.4 atomicity requirement).
func atomicWrite(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("memo: creating directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return err
	}
	_ = tmp.Sync()
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return nil
}
