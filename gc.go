package memo

import (
	"context"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// GCReport summarizes one `mem gc` pass (SPEC_FULL.md §4.8).
type GCReport struct {
	DepsScanned    int
	ResultsScanned int
	LiveBlobs      int
	OrphanedBlobs  []string // content-hash keys under blob/ no live result references
	RemovedBlobs   []string // populated only when apply was true
}

// GC implements the store-maintenance CLI's scan (`mem gc`): it recomputes
// each deps entry's current rhash exactly the way the memoizer's lookup path
// would, then treats any blob-area file whose content hash is not referenced
// by a FileNode inside a live (rhash-matched) result as orphaned. Per §4.8
// it never mutates deps/ or results/ (the append-only lifecycle of §3) —
// only, when apply is true, confirmed-orphaned blob files at least maxAge
// old (maxAge <= 0 means no age filter).
func GC(ctx context.Context, e *Engine, maxAge time.Duration, apply bool) (GCReport, error) {
	var report GCReport
	liveRhash := make(map[string]bool)

	err := e.store.WalkDeps(func(tchash string) error {
		report.DepsScanned++
		data, err := e.store.GetDeps(tchash)
		if err != nil {
			return fmt.Errorf("memo: gc reading deps %s: %w", tchash, err)
		}
		var depsVal Value
		if err := depsVal.UnmarshalJSON(data); err != nil {
			return fmt.Errorf("%w: gc decoding deps %s: %v", ErrCacheCorruption, tchash, err)
		}
		rhash, err := e.rhashFor(ctx, tchash, depsVal.Seq)
		if err != nil {
			if isMissingInput(err) {
				// The dependency this tchash recorded has since vanished;
				// it no longer points at any live result.
				return nil
			}
			return err
		}
		liveRhash[hex.EncodeToString(rhash)] = true
		return nil
	})
	if err != nil {
		return report, err
	}

	liveBlobs := make(map[string]bool)
	err = e.store.WalkResults(func(rhash string) error {
		report.ResultsScanned++
		if !liveRhash[rhash] {
			return nil
		}
		data, err := e.store.GetResult(rhash)
		if err != nil {
			return fmt.Errorf("memo: gc reading result %s: %w", rhash, err)
		}
		var resultVal Value
		if err := resultVal.UnmarshalJSON(data); err != nil {
			return fmt.Errorf("%w: gc decoding result %s: %v", ErrCacheCorruption, rhash, err)
		}
		return walkNodes(resultVal, func(n Node) error {
			if fileNode, ok := n.(*FileNode); ok && fileNode.ContentHash != "" {
				liveBlobs[fileNode.ContentHash] = true
			}
			return nil
		})
	})
	if err != nil {
		return report, err
	}
	report.LiveBlobs = len(liveBlobs)

	blobRoot := e.BlobDir()
	var cutoff time.Time
	if maxAge > 0 {
		cutoff = time.Now().Add(-maxAge)
	}

	walkErr := filepath.WalkDir(blobRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(blobRoot, path)
		if err != nil {
			return err
		}
		key := blobKeyFromRelPath(rel)

		if liveBlobs[key] {
			return nil
		}
		if maxAge > 0 {
			info, err := d.Info()
			if err != nil {
				return err
			}
			if info.ModTime().After(cutoff) {
				return nil
			}
		}

		report.OrphanedBlobs = append(report.OrphanedBlobs, key)
		if apply {
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("memo: gc removing blob %s: %w", key, err)
			}
			report.RemovedBlobs = append(report.RemovedBlobs, key)
		}
		return nil
	})
	if walkErr != nil {
		return report, fmt.Errorf("memo: gc walking blob area: %w", walkErr)
	}

	return report, nil
}

func blobKeyFromRelPath(rel string) string {
	return strings.ReplaceAll(filepath.ToSlash(rel), "/", "")
}
