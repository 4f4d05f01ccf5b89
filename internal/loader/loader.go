// Package loader implements the build-description loader of SPEC_FULL.md
// §4.7: build descriptions are Go plugins exposing a fixed entry-point
// signature, loaded via the stdlib plugin package (plugin.Open/Lookup) —
// the idiomatic Go analogue of the dynamic module loading a scripting
// language would use here, since ahead-of-time-compiled Go has no runtime
// eval/import equivalent other than plugin.
//
// The optional --watch loop is grounded on allaspectsdev-tokenman's
// internal/config/watcher.go: an fsnotify.Watcher on the containing
// directory (to survive editors that write-tmp-then-rename), a debounce
// timer, and an OnReload-style callback fired after each successful
// re-open.
package loader

import (
	"fmt"
	"path/filepath"
	"plugin"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"memo"
)

// EntryPoint is the fixed signature every exported plugin symbol must match
// (§4.7, §6's "mem build --entry <name>").
type EntryPoint func(e *memo.Engine, args []string) error

// Description wraps one opened build-description plugin.
type Description struct {
	path string
	plug *plugin.Plugin
}

// Open loads the build-description plugin at path.
func Open(path string) (*Description, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening plugin %s: %v", memo.ErrBuildDescription, path, err)
	}
	return &Description{path: path, plug: p}, nil
}

// Path returns the filesystem path this description was opened from.
func (d *Description) Path() string { return d.path }

// Lookup resolves name to an EntryPoint. An absent symbol or one with the
// wrong signature is a build-description error (§7 kind 4), not a panic.
func (d *Description) Lookup(name string) (EntryPoint, error) {
	sym, err := d.plug.Lookup(name)
	if err != nil {
		return nil, fmt.Errorf("%w: entry point %q not found in %s: %v", memo.ErrBuildDescription, name, d.path, err)
	}
	switch fn := sym.(type) {
	case func(*memo.Engine, []string) error:
		return EntryPoint(fn), nil
	case *func(*memo.Engine, []string) error:
		return EntryPoint(*fn), nil
	default:
		return nil, fmt.Errorf("%w: entry point %q in %s does not match func(*memo.Engine, []string) error (got %T)",
			memo.ErrBuildDescription, name, d.path, sym)
	}
}

// Run opens path, resolves entry, and invokes it with args against e. This
// is the implementation behind `mem build --plugin <path.so> --entry
// <name>`.
func Run(e *memo.Engine, path, entry string, args []string) error {
	d, err := Open(path)
	if err != nil {
		return err
	}
	fn, err := d.Lookup(entry)
	if err != nil {
		return err
	}
	return fn(e, args)
}

// SubBuild is the task authoring contract's subdir(path) (§4.7): it loads a
// nested build-description plugin, and each entry point resolved from it
// runs with the engine's logical working directory switched to dir for the
// call's duration, guaranteed-restored on every exit path via
// Engine.Subdir.
type SubBuild struct {
	desc *Description
	dir  string
}

// Subdir loads the build-description plugin at pluginPath and binds it to
// dir: invoking one of its entry points switches e's logical cwd to dir
// first.
func Subdir(pluginPath, dir string) (*SubBuild, error) {
	d, err := Open(pluginPath)
	if err != nil {
		return nil, err
	}
	return &SubBuild{desc: d, dir: dir}, nil
}

// Invoke resolves entry within the nested build description and runs it
// against e with e's logical cwd switched to sb.dir for the call.
func (sb *SubBuild) Invoke(e *memo.Engine, entry string, args []string) error {
	fn, err := sb.desc.Lookup(entry)
	if err != nil {
		return err
	}
	return e.Subdir(sb.dir, func() error {
		return fn(e, args)
	})
}

// Watcher re-opens a build-description plugin whenever the .so file on disk
// changes. It only detects the artifact changing, not source edits — the
// caller's build pipeline is responsible for recompiling the plugin; this is
// documented as a best-effort developer convenience, not a hot-reload
// guarantee (§4.7).
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	path      string
	logger    zerolog.Logger

	mu       sync.Mutex
	current  *Description
	onReload []func(*Description)
	done     chan struct{}
}

// Watch opens path and begins watching its containing directory for
// changes, re-opening the plugin on each debounced write/create/rename.
func Watch(path string, logger zerolog.Logger) (*Watcher, error) {
	initial, err := Open(path)
	if err != nil {
		return nil, err
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: resolving %s: %v", memo.ErrBuildDescription, path, err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("loader: creating fsnotify watcher: %w", err)
	}
	dir := filepath.Dir(absPath)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("loader: watching directory %s: %w", dir, err)
	}

	w := &Watcher{
		fsWatcher: fsw,
		path:      absPath,
		logger:    logger,
		current:   initial,
		done:      make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Current returns the most recently (re-)loaded Description.
func (w *Watcher) Current() *Description {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// OnReload registers a callback invoked after each successful re-open.
func (w *Watcher) OnReload(fn func(*Description)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onReload = append(w.onReload, fn)
}

// Close stops the watch loop and releases the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsWatcher.Close()
}

func (w *Watcher) loop() {
	const debounce = 150 * time.Millisecond
	var timer *time.Timer

	for {
		select {
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			isWrite := event.Op&fsnotify.Write != 0
			isCreate := event.Op&fsnotify.Create != 0
			isRename := event.Op&fsnotify.Rename != 0
			if !isWrite && !isCreate && !isRename {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, w.reload)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("loader watch error")
		}
	}
}

func (w *Watcher) reload() {
	d, err := Open(w.path)
	if err != nil {
		w.logger.Warn().Err(err).Str("path", w.path).Msg("plugin reload failed, keeping previous description")
		return
	}
	w.mu.Lock()
	w.current = d
	callbacks := append([]func(*Description){}, w.onReload...)
	w.mu.Unlock()

	w.logger.Info().Str("path", w.path).Msg("build description reloaded")
	for _, cb := range callbacks {
		cb(d)
	}
}
