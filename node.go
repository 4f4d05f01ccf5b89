package memo

import "context"

// Node is a semantic handle for a build artifact (SPEC_FULL.md §3, §4.1). The
// only built-in implementation is FileNode; callers may implement their own
// for non-filesystem artifacts, though such nodes cannot currently round-trip
// through the JSON on-disk format (see Value.MarshalJSON).
type Node interface {
	// Fingerprint returns a stable hash of the node's observable content. If
	// the underlying artifact is absent, implementations should return
	// ErrMissingInput so the memoizer can fold the failure into an ordinary
	// cache miss rather than aborting the build.
	Fingerprint(ctx context.Context) ([]byte, error)

	// Store is called once after the owning task produced this node,
	// migrating the artifact into the content-addressed blob area. It must
	// be idempotent.
	Store(ctx context.Context, blobDir string) error

	// Restore is called once when a cached result containing this node is
	// replayed, copying the blob back to the node's recorded location. It
	// must be idempotent. Absence of the blob is a fatal cache-corruption
	// condition (ErrCacheCorruption), never a silent no-op.
	Restore(ctx context.Context, blobDir string) error
}

// NodeFromPath constructs a FileNode for the given filesystem path, per the
// task-authoring contract's node_from_path (SPEC_FULL.md §6).
func NodeFromPath(path string) *FileNode {
	return &FileNode{Path: path}
}
