package watcher

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/discoveryd/discoveryd/internal/registry"
	"github.com/discoveryd/discoveryd/pkg/logging"
)

// ErrSymlinkEscape is returned when a watched path resolves, via
// symlink, outside of every configured root.
var ErrSymlinkEscape = errors.New("watcher: path escapes configured roots via symlink")

// ReloadFunc re-registers a module's tools/resources/prompts against
// the registry. It is called after the module's prior registration has
// already been removed.
type ReloadFunc func(ctx context.Context, r *registry.Registry) error

type watchEntry struct {
	path     string
	reloader ReloadFunc
}

type debounceEntry struct {
	moduleName string
	timer      *time.Timer
}

// Watcher observes module files and re-registers a module when its
// file changes.
type Watcher struct {
	mu               sync.RWMutex
	registry         *registry.Registry
	roots            []string
	debounceInterval time.Duration

	fsWatcher *fsnotify.Watcher
	watched   map[string]*watchEntry // module name -> entry
	pending   map[string]*debounceEntry
	stopCh    chan struct{}
	running   bool
}

// New constructs a Watcher bound to a registry. roots restricts which
// directories a watched path may resolve into after following
// symlinks; debounceInterval defaults to 100ms if zero.
func New(r *registry.Registry, roots []string, debounceInterval time.Duration) *Watcher {
	if debounceInterval == 0 {
		debounceInterval = 100 * time.Millisecond
	}
	return &Watcher{
		registry:         r,
		roots:            roots,
		debounceInterval: debounceInterval,
		watched:          make(map[string]*watchEntry),
		pending:          make(map[string]*debounceEntry),
		stopCh:           make(chan struct{}),
	}
}

// Start begins the fsnotify event loop. Idempotent.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.fsWatcher = fsw
	w.running = true
	w.stopCh = make(chan struct{})
	w.mu.Unlock()

	go w.loop(ctx)
	logging.Info("Watcher", "hot-reload watcher started")
	return nil
}

// Watch registers (or updates) the watched path for a module. Calling
// Watch a second time for the same module name updates the path rather
// than erroring, per the idempotence requirement.
func (w *Watcher) Watch(moduleName, path string, reloader ReloadFunc) error {
	resolved, err := w.safeResolve(path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if prev, ok := w.watched[moduleName]; ok && w.fsWatcher != nil {
		_ = w.fsWatcher.Remove(prev.path)
	}
	w.watched[moduleName] = &watchEntry{path: resolved, reloader: reloader}

	if w.fsWatcher != nil {
		if err := w.fsWatcher.Add(resolved); err != nil {
			return err
		}
	}
	return nil
}

// safeResolve resolves symlinks in path and verifies the result falls
// under one of the watcher's configured roots. If no roots are
// configured, no restriction is applied.
func (w *Watcher) safeResolve(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		// Path may not exist yet; fall back to the absolute path
		// un-resolved rather than failing Watch outright.
		resolved = abs
	}

	if len(w.roots) == 0 {
		return resolved, nil
	}
	for _, root := range w.roots {
		rootAbs, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		if resolved == rootAbs || strings.HasPrefix(resolved, rootAbs+string(filepath.Separator)) {
			return resolved, nil
		}
	}
	return "", ErrSymlinkEscape
}

// Unwatch stops future events for a module. Current registrations are
// untouched.
func (w *Watcher) Unwatch(moduleName string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	entry, ok := w.watched[moduleName]
	if !ok {
		return nil
	}
	if w.fsWatcher != nil {
		_ = w.fsWatcher.Remove(entry.path)
	}
	delete(w.watched, moduleName)

	if pending, ok := w.pending[moduleName]; ok {
		pending.timer.Stop()
		delete(w.pending, moduleName)
	}
	return nil
}

// Restart disables then re-enables every currently watched path using
// the recorded path set, leaving the end state identical to a single
// Watch call per module.
func (w *Watcher) Restart() error {
	w.mu.Lock()
	snapshot := make(map[string]*watchEntry, len(w.watched))
	for name, entry := range w.watched {
		snapshot[name] = entry
		if w.fsWatcher != nil {
			_ = w.fsWatcher.Remove(entry.path)
		}
	}
	w.watched = make(map[string]*watchEntry)
	w.mu.Unlock()

	for name, entry := range snapshot {
		if err := w.Watch(name, entry.path, entry.reloader); err != nil {
			return err
		}
	}
	return nil
}

// Stop halts the event loop.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return nil
	}
	w.running = false
	close(w.stopCh)
	if w.fsWatcher != nil {
		err := w.fsWatcher.Close()
		w.fsWatcher = nil
		return err
	}
	return nil
}

func (w *Watcher) loop(ctx context.Context) {
	w.mu.RLock()
	fsw := w.fsWatcher
	stopCh := w.stopCh
	w.mu.RUnlock()
	if fsw == nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			logging.Error("Watcher", err, "fsnotify error")
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, ev fsnotify.Event) {
	w.mu.RLock()
	var moduleName string
	for name, entry := range w.watched {
		if entry.path == ev.Name {
			moduleName = name
			break
		}
	}
	w.mu.RUnlock()
	if moduleName == "" {
		return
	}

	if ev.Op&fsnotify.Remove == fsnotify.Remove || ev.Op&fsnotify.Rename == fsnotify.Rename {
		// Deletes are treated as unwatch + mark failed.
		_ = w.Unwatch(moduleName)
		_ = w.registry.UnloadModule(moduleName)
		if m, ok := w.registry.GetModule(moduleName); ok {
			w.registry.StartModule(moduleName, m.Category, m.FilePath)
			_ = w.registry.CompleteModule(moduleName, errors.New("module file removed"))
		}
		logging.Warn("Watcher", "module %s file removed, unwatched and marked failed", moduleName)
		return
	}
	if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}

	w.debounce(ctx, moduleName)
}

// debounce coalesces rapid successive events within debounceInterval
// into a single reload.
func (w *Watcher) debounce(ctx context.Context, moduleName string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if existing, ok := w.pending[moduleName]; ok {
		existing.timer.Stop()
	}

	timer := time.AfterFunc(w.debounceInterval, func() {
		w.mu.Lock()
		delete(w.pending, moduleName)
		entry := w.watched[moduleName]
		w.mu.Unlock()

		if entry == nil {
			return
		}
		w.reload(ctx, moduleName, entry.reloader)
	})

	w.pending[moduleName] = &debounceEntry{moduleName: moduleName, timer: timer}
}

// reload implements the unregister -> reload -> re-register ->
// notify sequence. If any step fails the module is left removed and
// marked Failed; a corrected file triggers the next debounced event
// to retry.
func (w *Watcher) reload(ctx context.Context, moduleName string, reloader ReloadFunc) {
	if reloader == nil {
		return
	}

	_ = w.registry.UnloadModule(moduleName)

	m, ok := w.registry.GetModule(moduleName)
	category, path := "", ""
	if ok {
		category, path = m.Category, m.FilePath
	}
	w.registry.StartModule(moduleName, category, path)

	err := reloader(ctx, w.registry)
	if cerr := w.registry.CompleteModule(moduleName, err); cerr != nil {
		logging.Error("Watcher", cerr, "completing reload batch for %s", moduleName)
	}
	if err != nil {
		logging.Error("Watcher", err, "reloading module %s", moduleName)
		return
	}
	logging.Info("Watcher", "reloaded module %s", moduleName)
}
