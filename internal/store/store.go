// Package store implements the on-disk cache store of SPEC_FULL.md §4.4: two
// content-addressed namespaces (deps, results) plus a content-addressed blob
// area, all sharded by the first two hex characters of the key. Writes go
// through write-to-temp-then-rename plus directory fsync, grounded on
// internal/recovery/state/store.go's writeFileAtomicDurable/ensureDirDurable
// (also present in internal/core/replay.go's atomicWriteFile).
//
// Store deliberately knows nothing about memo.Value: it is a byte-addressed
// key/value store. The root package encodes/decodes Value to/from JSON on
// either side of these calls, which keeps this package free of any import on
// the root module and avoids an import cycle.
package store

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ErrNotFound is returned by the Get* methods on a cache miss.
var ErrNotFound = errors.New("store: not found")

const (
	depsDir    = "deps"
	resultsDir = "results"
	blobDir    = "blob"
	lruSize    = 4096
)

// Store is the two-stage cache store plus blob area rooted at Dir.
// A Store is safe for concurrent use.
type Store struct {
	dir string

	depsCache    *lru.Cache[string, []byte]
	resultsCache *lru.Cache[string, []byte]
}

// Open roots a Store at dir, creating the deps/, results/, and blob/
// subdirectories if absent. The in-memory LRU tiers (SPEC_FULL.md §2.2,
// grounded on tokenman's internal/cache/cache.go two-tier CacheMiddleware)
// absorb repeated lookups of hot keys within one process; they are never
// consulted in place of disk for correctness, only as an accelerator.
func Open(dir string) (*Store, error) {
	for _, sub := range []string{depsDir, resultsDir, blobDir} {
		if err := ensureDirDurable(filepath.Join(dir, sub)); err != nil {
			return nil, fmt.Errorf("store: preparing %s: %w", sub, err)
		}
	}
	depsCache, err := lru.New[string, []byte](lruSize)
	if err != nil {
		return nil, fmt.Errorf("store: building deps LRU: %w", err)
	}
	resultsCache, err := lru.New[string, []byte](lruSize)
	if err != nil {
		return nil, fmt.Errorf("store: building results LRU: %w", err)
	}
	return &Store{dir: dir, depsCache: depsCache, resultsCache: resultsCache}, nil
}

// Dir returns the store's root directory.
func (s *Store) Dir() string { return s.dir }

// BlobDir returns the content-addressed blob area, the directory Node.Store
// and Node.Restore implementations read and write.
func (s *Store) BlobDir() string { return filepath.Join(s.dir, blobDir) }

// GetDeps returns the serialized deps set recorded for tchash, or ErrNotFound
// on a miss.
func (s *Store) GetDeps(tchash string) ([]byte, error) {
	return get(s.depsCache, filepath.Join(s.dir, depsDir), tchash)
}

// PutDeps writes the serialized deps set for tchash.
func (s *Store) PutDeps(tchash string, data []byte) error {
	return put(s.depsCache, filepath.Join(s.dir, depsDir), tchash, data)
}

// GetResult returns the serialized result recorded for rhash, or ErrNotFound
// on a miss.
func (s *Store) GetResult(rhash string) ([]byte, error) {
	return get(s.resultsCache, filepath.Join(s.dir, resultsDir), rhash)
}

// PutResult writes the serialized result for rhash. SPEC_FULL.md §3's write
// ordering invariant (result before deps) is the caller's responsibility:
// this method does not sequence itself relative to PutDeps.
func (s *Store) PutResult(rhash string, data []byte) error {
	return put(s.resultsCache, filepath.Join(s.dir, resultsDir), rhash, data)
}

// HasResult reports whether rhash's result entry exists on disk, without
// decoding it.
func (s *Store) HasResult(rhash string) bool {
	_, err := os.Stat(shardedPath(filepath.Join(s.dir, resultsDir), rhash))
	return err == nil
}

// WalkDeps and WalkResults invoke fn with the key (reconstructed from the
// sharded path) of every entry in the respective namespace. Used by `mem gc`.
func (s *Store) WalkDeps(fn func(key string) error) error {
	return walkShards(filepath.Join(s.dir, depsDir), fn)
}

func (s *Store) WalkResults(fn func(key string) error) error {
	return walkShards(filepath.Join(s.dir, resultsDir), fn)
}

func walkShards(root string, fn func(key string) error) error {
	shards, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, shard := range shards {
		if !shard.IsDir() {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(root, shard.Name()))
		if err != nil {
			return err
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			key := shard.Name() + e.Name()
			if err := fn(key); err != nil {
				return err
			}
		}
	}
	return nil
}

func get(cache *lru.Cache[string, []byte], root, key string) ([]byte, error) {
	if v, ok := cache.Get(key); ok {
		return v, nil
	}
	data, err := os.ReadFile(shardedPath(root, key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	cache.Add(key, data)
	return data, nil
}

func put(cache *lru.Cache[string, []byte], root, key string, data []byte) error {
	if err := writeFileAtomicDurable(shardedPath(root, key), data, 0o644); err != nil {
		return err
	}
	cache.Add(key, data)
	return nil
}

func shardedPath(root, hexKey string) string {
	if len(hexKey) < 2 {
		return filepath.Join(root, "_", hexKey)
	}
	return filepath.Join(root, hexKey[:2], hexKey[2:])
}

func ensureDirDurable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := fsyncDir(dir); err != nil {
		return err
	}
	parent := filepath.Dir(dir)
	if parent != dir {
		return fsyncDir(parent)
	}
	return nil
}

func writeFileAtomicDurable(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return fsyncDir(dir)
}

func fsyncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
