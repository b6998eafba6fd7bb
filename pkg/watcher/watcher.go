// Package watcher reports debounced changes to documents in the input directory.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// EventKind tells whether a document was written or went away
type EventKind int

const (
	Changed EventKind = iota
	Removed
)

func (k EventKind) String() string {
	if k == Removed {
		return "removed"
	}
	return "changed"
}

// Event is a settled change to one document, named relative to its directory
type Event struct {
	Filename string
	Kind     EventKind
}

// Config holds watcher configuration
type Config struct {
	DebounceDelay time.Duration          // Quiet period before an event fires (default: 1s)
	Filter        func(path string) bool // Optional, receives the absolute path
	OnEvent       func(event Event)
}

// DirWatcher watches input directories for document changes
type DirWatcher struct {
	watcher  *fsnotify.Watcher
	onEvent  func(Event)
	filter   func(string) bool
	mu       sync.Mutex
	watched  map[string]bool
	debounce time.Duration
	pending  map[string]*time.Timer
	last     map[string]EventKind
}

// New creates a directory watcher
func New(cfg *Config) (*DirWatcher, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.DebounceDelay == 0 {
		cfg.DebounceDelay = time.Second
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &DirWatcher{
		watcher:  watcher,
		onEvent:  cfg.OnEvent,
		filter:   cfg.Filter,
		watched:  make(map[string]bool),
		debounce: cfg.DebounceDelay,
		pending:  make(map[string]*time.Timer),
		last:     make(map[string]EventKind),
	}, nil
}

// Watch adds a directory to the watch list. Subdirectories are not watched.
func (w *DirWatcher) Watch(dir string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	if w.watched[abs] {
		return nil
	}

	if err := w.watcher.Add(abs); err != nil {
		return fmt.Errorf("failed to watch %s: %w", abs, err)
	}

	w.watched[abs] = true
	slog.Debug("Watching directory", "dir", abs)
	return nil
}

// Unwatch removes a directory from the watch list
func (w *DirWatcher) Unwatch(dir string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	if !w.watched[abs] {
		return nil
	}

	if err := w.watcher.Remove(abs); err != nil {
		return fmt.Errorf("failed to unwatch %s: %w", abs, err)
	}

	delete(w.watched, abs)
	return nil
}

// Start delivers events until ctx is cancelled
func (w *DirWatcher) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}

			var kind EventKind
			switch {
			case event.Op&(fsnotify.Write|fsnotify.Create) != 0:
				kind = Changed
			case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				kind = Removed
			default:
				continue
			}

			if w.filter != nil && !w.filter(event.Name) {
				continue
			}
			w.handleEvent(event.Name, kind)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			slog.Warn("Watcher error", "error", err)
		}
	}
}

// handleEvent debounces events per path; the last kind seen wins
func (w *DirWatcher) handleEvent(path string, kind EventKind) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, exists := w.pending[path]; exists {
		timer.Stop()
	}
	w.last[path] = kind

	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		settled := w.last[path]
		delete(w.pending, path)
		delete(w.last, path)
		w.mu.Unlock()

		if w.onEvent != nil {
			w.onEvent(Event{Filename: filepath.Base(path), Kind: settled})
		}
	})
}

// Close stops the watcher and drops pending events
func (w *DirWatcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, timer := range w.pending {
		timer.Stop()
	}
	w.pending = make(map[string]*time.Timer)
	w.last = make(map[string]EventKind)

	return w.watcher.Close()
}

// Watched returns the watched directories
func (w *DirWatcher) Watched() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	paths := make([]string, 0, len(w.watched))
	for path := range w.watched {
		paths = append(paths, path)
	}
	return paths
}
