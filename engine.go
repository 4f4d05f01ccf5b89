package memo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"memo/internal/config"
	"memo/internal/digest"
	"memo/internal/govern"
	"memo/internal/history"
	"memo/internal/logging"
	"memo/internal/metrics"
	"memo/internal/store"
)

// Engine owns the store, concurrency governor, digest, and diagnostic
// subsystems that back every Memoize-wrapped task call (SPEC_FULL.md §2,
// §4.4-§4.6). An Engine is safe for concurrent use; it is the one object
// every memoized task call is routed through.
type Engine struct {
	store    *store.Store
	governor *govern.Governor
	digest   Digest
	logger   zerolog.Logger
	history  *history.DB // nil if history recording is disabled

	cwdMu sync.RWMutex
	cwd   string // logical working directory; see Subdir (§4.7, §5)
	// runID groups this process's invocations in the history table.
	runID string
}

// Option configures an Engine constructed by New.
type Option func(*engineConfig)

type engineConfig struct {
	concurrency int
	digestAlg   digest.Algorithm
	historyPath string
	logOut      *os.File
	logLevel    string
	runID       string
}

// WithConcurrency overrides the governor's permit capacity (default
// 2xNumCPU per §4.6).
func WithConcurrency(n int) Option {
	return func(c *engineConfig) { c.concurrency = n }
}

// WithDigestAlgorithm selects the fingerprint digest (§2.2, §4.2).
func WithDigestAlgorithm(alg digest.Algorithm) Option {
	return func(c *engineConfig) { c.digestAlg = alg }
}

// WithHistory enables the SQLite audit trail at path (§2.2, §3). An empty
// path (the default) disables history recording entirely.
func WithHistory(path string) Option {
	return func(c *engineConfig) { c.historyPath = path }
}

// WithLogOutput sets the destination and level for the engine's zerolog
// logger (§2.1). Defaults to os.Stderr at "info".
func WithLogOutput(w *os.File, level string) Option {
	return func(c *engineConfig) { c.logOut = w; c.logLevel = level }
}

// WithRunID overrides the run identifier grouping this process's history
// rows (§2.2); New generates one via uuid when unset.
func WithRunID(id string) Option {
	return func(c *engineConfig) { c.runID = id }
}

// New constructs an Engine rooted at storeDir (the on-disk layout of §3),
// applying opts over the package defaults.
func New(ctx context.Context, storeDir string, opts ...Option) (*Engine, error) {
	cfg := &engineConfig{
		concurrency: config.Get().Concurrency,
		digestAlg:   digest.Algorithm(config.Get().Digest),
		logOut:      os.Stderr,
		logLevel:    "info",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	st, err := store.Open(storeDir)
	if err != nil {
		return nil, fmt.Errorf("memo: opening store: %w", err)
	}

	if err := reconcileDigestMarker(storeDir, cfg.digestAlg); err != nil {
		return nil, err
	}
	h, err := digest.New(cfg.digestAlg)
	if err != nil {
		return nil, fmt.Errorf("memo: %w", err)
	}

	var hist *history.DB
	if cfg.historyPath != "" {
		hist, err = history.Open(ctx, cfg.historyPath)
		if err != nil {
			return nil, fmt.Errorf("memo: opening history: %w", err)
		}
	}

	runID := cfg.runID
	if runID == "" {
		runID = uuid.NewString()
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("memo: determining working directory: %w", err)
	}

	return &Engine{
		store:    st,
		governor: govern.New(cfg.concurrency),
		digest:   h,
		logger:   logging.New(cfg.logOut, cfg.logLevel, "engine"),
		history:  hist,
		cwd:      cwd,
		runID:    runID,
	}, nil
}

// Close releases resources held by the Engine (currently just the history
// database, if enabled).
func (e *Engine) Close() error {
	if e.history == nil {
		return nil
	}
	return e.history.Close()
}

// Context returns a context carrying e so that Memoize, AddDep, and
// Fingerprint calls made with it are routed through this Engine.
func (e *Engine) Context(parent context.Context) context.Context {
	if parent == nil {
		parent = context.Background()
	}
	return withEngine(withDigest(parent, e.digest), e)
}

// Failed reports whether the process-global failure latch has tripped.
func (e *Engine) Failed() bool { return e.governor.Failed() }

// RunID returns the identifier grouping this process's history rows
// (§2.2), surfaced by internal/server's /stats endpoint.
func (e *Engine) RunID() string { return e.runID }

// InFlight returns the governor's current permit count, surfaced by
// internal/server's /stats endpoint (§4.6).
func (e *Engine) InFlight() int64 { return e.governor.InFlight() }

// StoreDir returns the store's root directory, surfaced by internal/server's
// /stats endpoint.
func (e *Engine) StoreDir() string { return e.store.Dir() }

// Cwd returns the engine's current logical working directory (§4.7, §5).
func (e *Engine) Cwd() string {
	e.cwdMu.RLock()
	defer e.cwdMu.RUnlock()
	return e.cwd
}

// Subdir implements the task authoring contract's subdir(path) (§4.7):
// it temporarily switches the engine's logical working directory to path
// (resolved relative to the current one), runs fn, and restores the
// previous directory on every exit path, including a panic or an error
// returned by fn.
func (e *Engine) Subdir(path string, fn func() error) (err error) {
	e.cwdMu.Lock()
	prev := e.cwd
	next := path
	if !filepath.IsAbs(next) {
		next = filepath.Join(prev, path)
	}
	e.cwd = next
	e.cwdMu.Unlock()

	defer func() {
		e.cwdMu.Lock()
		e.cwd = prev
		e.cwdMu.Unlock()
	}()

	return fn()
}

// BlobDir returns the content-addressed blob area beneath the store root,
// the directory passed to every Node.Store/Node.Restore call.
func (e *Engine) BlobDir() string { return e.store.BlobDir() }

// acquire blocks for a governor permit and, on success, publishes the
// updated in-flight count to the Prometheus gauge (§4.6).
func (e *Engine) acquire(ctx context.Context) (release func(), err error) {
	release, err = e.governor.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	metrics.SetInFlight(e.governor.InFlight())
	return func() {
		release()
		metrics.SetInFlight(e.governor.InFlight())
	}, nil
}

// Fail trips the process-global failure latch (SPEC_FULL.md §4.6, §6's
// fail(msg?)). It is the engine-bound counterpart of the package-level Fail
// function, which looks the Engine up from ctx.
func (e *Engine) Fail(msg string) {
	first := !e.governor.Failed()
	e.governor.Fail(msg)
	if first {
		e.logger.Error().Str("reason", msg).Msg("failure latch tripped")
		metrics.IncFailureLatch()
	}
}

const digestMarkerFile = "DIGEST"

// reconcileDigestMarker enforces §4.2's rule that mixing digests within one
// store directory is undefined: on first use the chosen algorithm is
// recorded at storeDir/DIGEST; on subsequent opens a mismatch is rejected.
func reconcileDigestMarker(storeDir string, alg digest.Algorithm) error {
	if alg == "" {
		alg = digest.SHA256
	}
	path := storeDir + string(os.PathSeparator) + digestMarkerFile
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("memo: reading digest marker: %w", err)
		}
		return os.WriteFile(path, []byte(alg), 0o644)
	}
	if digest.Algorithm(data) != alg {
		return fmt.Errorf("%w: store at %s was created with digest %q, refusing to open with %q",
			ErrCacheCorruption, storeDir, data, alg)
	}
	return nil
}
