// Package watch feeds filesystem changes into the event bus. A Watcher
// observes one or more directory trees and publishes a FileChanged
// event per changed path, debounced so editor save bursts collapse into
// one event. The trigger evaluator decides which workers react.
package watch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/xraph/foreman/event"
)

// pendingChange accumulates the latest operation seen for a path during
// the debounce window.
type pendingChange struct {
	rel string
	op  fsnotify.Op
}

// Watcher publishes FileChanged events for changes under its roots.
// Hidden files, hidden directories, and excluded directories are
// ignored; when include globs are set, only matching paths publish.
type Watcher struct {
	events  *event.Bus
	roots   []string
	watcher *fsnotify.Watcher
	source  string

	globs    []string
	excludes map[string]bool
	debounce time.Duration

	logger *slog.Logger

	pendingMu sync.Mutex
	pending   map[string]pendingChange

	wg sync.WaitGroup
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets how long changes accumulate before publishing.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithGlobs restricts published paths to those matching at least one
// doublestar glob, e.g. "**/*.go". Globs match the root-relative path.
func WithGlobs(globs ...string) Option {
	return func(w *Watcher) { w.globs = globs }
}

// WithExcludes replaces the default set of excluded directory names.
func WithExcludes(dirs ...string) Option {
	return func(w *Watcher) {
		w.excludes = make(map[string]bool, len(dirs))
		for _, dir := range dirs {
			w.excludes[dir] = true
		}
	}
}

// WithSource sets the source recorded on published events.
func WithSource(source string) Option {
	return func(w *Watcher) { w.source = source }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) { w.logger = logger }
}

// New creates a watcher over the given roots. An empty root list watches
// the current directory.
func New(events *event.Bus, roots []string, opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if len(roots) == 0 {
		roots = []string{"."}
	}

	w := &Watcher{
		events:  events,
		roots:   roots,
		watcher: fsw,
		source:  "watch",
		excludes: map[string]bool{
			".git":         true,
			"node_modules": true,
			"vendor":       true,
		},
		debounce: 500 * time.Millisecond,
		logger:   slog.Default(),
		pending:  make(map[string]pendingChange),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start adds watches for every directory under the roots and begins
// publishing. It returns once the watches are registered.
func (w *Watcher) Start(ctx context.Context) error {
	for _, root := range w.roots {
		if err := w.addWatchesRecursive(root); err != nil {
			return err
		}
	}

	w.wg.Add(1)
	go w.processEvents(ctx)

	w.logger.Info("file watcher started",
		slog.Any("roots", w.roots),
		slog.Duration("debounce", w.debounce),
	)
	return nil
}

// Stop closes the underlying watcher and waits for the publish loop to
// drain.
func (w *Watcher) Stop() error {
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

// addWatchesRecursive adds watches to root and every non-excluded
// directory below it.
func (w *Watcher) addWatchesRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}

		base := filepath.Base(path)
		if w.excludes[base] || (strings.HasPrefix(base, ".") && base != "." && base != "..") {
			return filepath.SkipDir
		}

		if addErr := w.watcher.Add(path); addErr != nil {
			w.logger.Warn("watch directory",
				slog.String("path", path),
				slog.String("error", addErr.Error()),
			)
		}
		return nil
	})
}

// processEvents drains fsnotify and flushes the pending set on each
// debounce tick.
func (w *Watcher) processEvents(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case evt, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFSEvent(evt)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", slog.String("error", err.Error()))

		case <-ticker.C:
			w.flushPending(ctx)
		}
	}
}

// handleFSEvent filters one fsnotify event into the pending set.
func (w *Watcher) handleFSEvent(evt fsnotify.Event) {
	// Attribute-only changes are noise.
	if evt.Op&^fsnotify.Chmod == 0 {
		return
	}

	path := evt.Name

	if evt.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			// New directory: watch its tree. The walk skips it again
			// if it is excluded or hidden.
			if err := w.addWatchesRecursive(path); err != nil {
				w.logger.Warn("watch new directory",
					slog.String("path", path),
					slog.String("error", err.Error()),
				)
			}
			return
		}
	}

	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return
	}

	rel := w.relativize(path)
	if w.underExcluded(rel) {
		return
	}
	if len(w.globs) > 0 && !w.matchesGlobs(rel) {
		return
	}

	w.pendingMu.Lock()
	w.pending[path] = pendingChange{rel: rel, op: evt.Op}
	w.pendingMu.Unlock()

	w.logger.Debug("file change detected",
		slog.String("path", rel),
		slog.String("op", evt.Op.String()),
	)
}

// flushPending publishes one event per accumulated change.
func (w *Watcher) flushPending(ctx context.Context) {
	w.pendingMu.Lock()
	if len(w.pending) == 0 {
		w.pendingMu.Unlock()
		return
	}
	toPublish := w.pending
	w.pending = make(map[string]pendingChange)
	w.pendingMu.Unlock()

	for _, change := range toPublish {
		select {
		case <-ctx.Done():
			return
		default:
		}

		evt := event.NewFileChanged(change.rel, opName(change.op), w.source)
		if err := w.events.Publish(ctx, evt); err != nil {
			w.logger.Error("publish file event",
				slog.String("path", change.rel),
				slog.String("error", err.Error()),
			)
			continue
		}
		w.logger.Debug("published file event",
			slog.String("path", change.rel),
			slog.String("op", opName(change.op)),
		)
	}
}

// relativize maps an absolute path to the first root containing it,
// falling back to the path as observed.
func (w *Watcher) relativize(path string) string {
	for _, root := range w.roots {
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		return rel
	}
	return path
}

// underExcluded reports whether any component of the relative path is an
// excluded directory.
func (w *Watcher) underExcluded(rel string) bool {
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if w.excludes[part] {
			return true
		}
	}
	return false
}

// matchesGlobs reports whether the path matches any include glob.
func (w *Watcher) matchesGlobs(rel string) bool {
	name := filepath.ToSlash(rel)
	for _, glob := range w.globs {
		if ok, err := doublestar.Match(glob, name); err == nil && ok {
			return true
		}
	}
	return false
}

// opName maps the last fsnotify operation of a debounce window onto the
// payload op string.
func opName(op fsnotify.Op) string {
	switch {
	case op.Has(fsnotify.Create):
		return "create"
	case op.Has(fsnotify.Write):
		return "write"
	case op.Has(fsnotify.Remove):
		return "remove"
	case op.Has(fsnotify.Rename):
		return "rename"
	default:
		return strings.ToLower(op.String())
	}
}
