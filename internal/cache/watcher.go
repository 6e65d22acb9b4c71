package cache

import (
	"context"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/Iron-Ham/devcrew/internal/errors"
	"github.com/Iron-Ham/devcrew/internal/logging"
)

// Watcher invalidates a Cache's memoized project hash whenever a file under
// the project root changes. While a Watcher is attached, lookups reuse the
// last computed hash instead of rehashing the tree.
type Watcher struct {
	cache   *Cache
	fsw     *fsnotify.Watcher
	logger  *logging.Logger
	onEvent func(path string)

	closeOnce sync.Once
}

// NewWatcher attaches a watcher to c. fsnotify is not recursive, so every
// non-excluded directory is registered individually and directories created
// later are added as they appear.
func NewWatcher(c *Cache) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.NewCacheError("failed to create file watcher", err)
	}
	w := &Watcher{
		cache:  c,
		fsw:    fsw,
		logger: c.logger.WithComponent("cache-watcher"),
	}
	if err := w.addTree(c.root); err != nil {
		_ = fsw.Close()
		return nil, errors.NewCacheError("failed to watch project", err)
	}
	c.setMemoize(true)
	return w, nil
}

// OnChange registers a callback invoked with the path of every change that
// invalidated the hash. It must be set before Run.
func (w *Watcher) OnChange(fn func(path string)) {
	w.onEvent = fn
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.cache.root && slices.Contains(w.cache.exclude, d.Name()) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

// excluded reports whether path lies inside an excluded directory.
func (w *Watcher) excluded(path string) bool {
	rel, err := filepath.Rel(w.cache.root, path)
	if err != nil {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if slices.Contains(w.cache.exclude, part) {
			return true
		}
	}
	return false
}

// Run processes file events until ctx is canceled or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Op == fsnotify.Chmod || w.excluded(ev.Name) {
		return
	}
	if ev.Has(fsnotify.Create) {
		if err := w.addTree(ev.Name); err != nil {
			w.logger.Debug("could not watch new path", "path", ev.Name, "error", err)
		}
	}

	w.cache.Invalidate()
	w.logger.Debug("project changed", "path", ev.Name, "op", ev.Op.String())
	if w.onEvent != nil {
		w.onEvent(ev.Name)
	}
}

// Close stops watching and returns the cache to rehashing on every lookup.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		w.cache.setMemoize(false)
		err = w.fsw.Close()
	})
	return err
}
