package sttpl

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ----------------------------- Reload manager --------------------------------

// ReloadEvent reports a recompiled template file. Err is set when the new
// contents failed to compile; Template is then the last good version.
type ReloadEvent struct {
	File     string
	Template *Template
	Err      error
}

// ReloadCallback is called after a watched file was recompiled.
type ReloadCallback func(ev ReloadEvent)

// ReloadManager keeps compiled template files current. It reacts to file
// system events and also polls, so changes are picked up on file systems
// without notification support.
type ReloadManager struct {
	mu        sync.RWMutex
	watched   map[string]*watchEntry
	callbacks []ReloadCallback
	watcher   *fsnotify.Watcher

	interval time.Duration
	debounce time.Duration
	opts     []Option
	cache    *FileCache
	logger   *slog.Logger

	stop     chan struct{}
	stopOnce sync.Once
}

type watchEntry struct {
	tmpl    *Template
	lastErr string
}

// ReloadOption configures a ReloadManager.
type ReloadOption func(*ReloadManager)

// WithReloadLogger logs reloads and failures to l.
func WithReloadLogger(l *slog.Logger) ReloadOption {
	return func(rm *ReloadManager) { rm.logger = l }
}

// WithCompileOptions sets the options templates are compiled with.
func WithCompileOptions(opts ...Option) ReloadOption {
	return func(rm *ReloadManager) { rm.opts = opts }
}

// WithDebounce sets how long a burst of file events must be quiet before the
// affected templates are recompiled. The default is 50ms.
func WithDebounce(d time.Duration) ReloadOption {
	return func(rm *ReloadManager) { rm.debounce = d }
}

// NewReloadManager returns a manager polling every interval (one second when
// zero) in addition to watching for file events.
func NewReloadManager(interval time.Duration, opts ...ReloadOption) *ReloadManager {
	if interval <= 0 {
		interval = time.Second
	}
	rm := &ReloadManager{
		watched:  make(map[string]*watchEntry),
		interval: interval,
		debounce: 50 * time.Millisecond,
		cache:    NewFileCache(0),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		stop:     make(chan struct{}),
	}
	for _, o := range opts {
		o(rm)
	}
	return rm
}

// WatchFile compiles filename and keeps it current.
func (rm *ReloadManager) WatchFile(filename string) (*Template, error) {
	filename = filepath.Clean(filename)
	if _, err := os.Stat(filename); err != nil {
		return nil, fmt.Errorf("watching file %q: %w", filename, err)
	}
	t, err := rm.cache.CompileFile(filename, rm.opts...)
	if err != nil {
		return nil, err
	}

	rm.mu.Lock()
	rm.watched[filename] = &watchEntry{tmpl: t}
	w := rm.watcher
	rm.mu.Unlock()

	if w != nil {
		rm.addDir(w, filepath.Dir(filename))
	}
	rm.logger.Debug("watching template", "file", filename)
	return t, nil
}

// WatchDirectory watches every file in dir ending in ext (".st" when empty).
// Files that fail to compile are logged and skipped.
func (rm *ReloadManager) WatchDirectory(dir, ext string) error {
	if ext == "" {
		ext = ".st"
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading directory %q: %w", dir, err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ext) {
			continue
		}
		path := filepath.Join(dir, name)
		if _, err := rm.WatchFile(path); err != nil {
			rm.logger.Warn("skipping template", "file", path, "err", err)
		}
	}
	return nil
}

// AddCallback registers cb for every reload.
func (rm *ReloadManager) AddCallback(cb ReloadCallback) {
	rm.mu.Lock()
	rm.callbacks = append(rm.callbacks, cb)
	rm.mu.Unlock()
}

// GetTemplate returns the current template for filename, recompiling it if
// one of its files changed. A file that is not watched is compiled through
// the manager's cache. A watched file whose new contents fail to compile
// yields its last good template; the failure goes to the callbacks.
func (rm *ReloadManager) GetTemplate(filename string) (*Template, error) {
	filename = filepath.Clean(filename)
	rm.mu.RLock()
	_, ok := rm.watched[filename]
	rm.mu.RUnlock()
	if !ok {
		return rm.cache.CompileFile(filename, rm.opts...)
	}

	rm.refresh(filename)
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.watched[filename].tmpl, nil
}

// Start watches until ctx is done or Stop is called. When file events are
// unavailable the manager falls back to polling alone.
func (rm *ReloadManager) Start(ctx context.Context) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		rm.logger.Warn("file events unavailable, polling only", "err", err)
	}

	rm.mu.Lock()
	rm.watcher = w
	dirs := rm.watchedDirs()
	rm.mu.Unlock()

	if w != nil {
		for _, dir := range dirs {
			rm.addDir(w, dir)
		}
	}
	go rm.loop(ctx, w)
}

// Stop ends the watch loop. It is safe to call more than once.
func (rm *ReloadManager) Stop() {
	rm.stopOnce.Do(func() { close(rm.stop) })
}

func (rm *ReloadManager) addDir(w *fsnotify.Watcher, dir string) {
	if err := w.Add(dir); err != nil {
		rm.logger.Warn("cannot watch directory", "dir", dir, "err", err)
	}
}

// watchedDirs returns the directories of the watched files. rm.mu must be held.
func (rm *ReloadManager) watchedDirs() []string {
	seen := make(map[string]bool)
	var dirs []string
	for filename := range rm.watched {
		dir := filepath.Dir(filename)
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}
	return dirs
}

// filesIn returns the watched files in dir, or all of them when dir is empty.
func (rm *ReloadManager) filesIn(dir string) []string {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	files := make([]string, 0, len(rm.watched))
	for filename := range rm.watched {
		if dir == "" || filepath.Dir(filename) == dir {
			files = append(files, filename)
		}
	}
	return files
}

func (rm *ReloadManager) loop(ctx context.Context, w *fsnotify.Watcher) {
	ticker := time.NewTicker(rm.interval)
	defer ticker.Stop()

	var (
		events <-chan fsnotify.Event
		errs   <-chan error
		settle <-chan time.Time
	)
	pending := make(map[string]bool)
	if w != nil {
		defer func() {
			rm.mu.Lock()
			rm.watcher = nil
			rm.mu.Unlock()
			w.Close()
		}()
		events, errs = w.Events, w.Errors
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-rm.stop:
			return
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			// Any change in a directory may touch a partial of its templates.
			pending[filepath.Dir(filepath.Clean(ev.Name))] = true
			settle = time.After(rm.debounce)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			rm.logger.Warn("file watcher error", "err", err)
		case <-settle:
			settle = nil
			for dir := range pending {
				for _, filename := range rm.filesIn(dir) {
					rm.refresh(filename)
				}
			}
			clear(pending)
		case <-ticker.C:
			for _, filename := range rm.filesIn("") {
				rm.refresh(filename)
			}
		}
	}
}

// refresh recompiles filename when one of its files changed and notifies the
// callbacks. A compile error is reported once until the error changes.
func (rm *ReloadManager) refresh(filename string) {
	t, err := rm.cache.CompileFile(filename, rm.opts...)

	rm.mu.Lock()
	e, ok := rm.watched[filename]
	if !ok || (err == nil && t == e.tmpl) {
		rm.mu.Unlock()
		return
	}
	if err != nil {
		err = fmt.Errorf("reloading template %q: %w", filename, err)
		if err.Error() == e.lastErr {
			rm.mu.Unlock()
			return
		}
		e.lastErr = err.Error()
	} else {
		e.tmpl = t
		e.lastErr = ""
	}
	ev := ReloadEvent{File: filename, Template: e.tmpl, Err: err}
	callbacks := append([]ReloadCallback(nil), rm.callbacks...)
	rm.mu.Unlock()

	if err != nil {
		rm.logger.Error("template reload failed", "file", filename, "err", err)
	} else {
		rm.logger.Info("template reloaded", "file", filename)
	}
	for _, cb := range callbacks {
		cb(ev)
	}
}
