// Package watcher monitors the local cache database for changes made by
// other processes. A second wishdo instance starring a task writes to the
// shared cache file; watching it is how this process learns to re-render,
// since there is no push channel between instances.
package watcher

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce batches the burst of write events a single cache
// transaction produces into one change notification.
const DefaultDebounce = 500 * time.Millisecond

// Config holds cache watcher settings.
type Config struct {
	Path     string        // cache database file to watch
	Debounce time.Duration // window for batching rapid writes
	OnChange func()        // invoked after the debounce window closes
}

// Watcher delivers debounced change notifications for one file.
type Watcher struct {
	cfg Config
	fsw *fsnotify.Watcher

	mu      sync.Mutex
	stopped bool
	stopCh  chan struct{}
}

// New creates a watcher for the configured cache file.
func New(cfg Config) (*Watcher, error) {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		cfg:    cfg,
		fsw:    fsw,
		stopCh: make(chan struct{}),
	}, nil
}

// Start begins watching. A missing cache file is not an error: the watcher
// observes the parent directory instead, so it catches the file's creation.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return fmt.Errorf("watcher already stopped")
	}
	w.mu.Unlock()

	path := w.cfg.Path
	if _, err := os.Stat(path); os.IsNotExist(err) {
		path = parentDir(path)
	}
	if err := w.fsw.Add(path); err != nil {
		return fmt.Errorf("failed to watch %q: %w", path, err)
	}

	go w.loop()
	return nil
}

// Stop ends watching and releases resources. Safe to call more than once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	w.stopped = true
	close(w.stopCh)
	_ = w.fsw.Close()
}

func parentDir(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if os.IsPathSeparator(path[i]) {
			if i == 0 {
				return string(path[0])
			}
			return path[:i]
		}
	}
	return "."
}

// loop collapses raw filesystem events into debounced change callbacks.
func (w *Watcher) loop() {
	var timer *time.Timer
	fire := make(chan struct{}, 1)

	reset := func() {
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(w.cfg.Debounce, func() {
			select {
			case fire <- struct{}{}:
			default:
			}
		})
	}

	for {
		select {
		case <-w.stopCh:
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if !w.matches(event.Name) {
				continue
			}
			reset()

		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}

		case <-fire:
			if w.cfg.OnChange != nil {
				w.cfg.OnChange()
			}
		}
	}
}

// matches reports whether an event concerns the watched cache file. When
// the parent directory is being watched, sibling files are ignored.
func (w *Watcher) matches(name string) bool {
	if name == w.cfg.Path {
		return true
	}
	// SQLite writes through journal/WAL side files next to the database.
	return len(name) > len(w.cfg.Path) && name[:len(w.cfg.Path)] == w.cfg.Path
}
