// Package shutdown coordinates cleanup when the process exits: closing the
// cache store, stopping the cache watcher and releasing HTTP connections in
// a defined order, on signal or on normal termination.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"wishdo/internal/utils"
)

// CleanupFunc releases one resource. The context is cancelled when the
// overall cleanup deadline passes.
type CleanupFunc func(ctx context.Context) error

type cleanup struct {
	name string
	fn   CleanupFunc
}

// Manager runs registered cleanups exactly once, in LIFO order.
type Manager struct {
	mu       sync.Mutex
	cleanups []cleanup

	once   sync.Once
	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager creates a shutdown manager.
func NewManager() *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{ctx: ctx, cancel: cancel}
}

// Register adds a cleanup. Later registrations run first.
func (m *Manager) Register(name string, fn CleanupFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanups = append(m.cleanups, cleanup{name: name, fn: fn})
}

// Context is cancelled when shutdown begins; long-running operations should
// derive from it.
func (m *Manager) Context() context.Context {
	return m.ctx
}

// HandleSignals triggers shutdown on SIGINT or SIGTERM. Returns a function
// that stops listening.
func (m *Manager) HandleSignals() func() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)

	go func() {
		if _, ok := <-ch; ok {
			m.Shutdown(context.Background())
		}
	}()

	return func() {
		signal.Stop(ch)
		close(ch)
	}
}

// Shutdown cancels the manager context and runs all cleanups in LIFO
// order. Only the first call acts; later calls return immediately. Cleanup
// failures are logged and do not stop the remaining cleanups.
func (m *Manager) Shutdown(ctx context.Context) {
	m.once.Do(func() {
		m.cancel()

		m.mu.Lock()
		cleanups := make([]cleanup, len(m.cleanups))
		copy(cleanups, m.cleanups)
		m.mu.Unlock()

		for i := len(cleanups) - 1; i >= 0; i-- {
			if err := cleanups[i].fn(ctx); err != nil {
				utils.Warnf("cleanup %s failed: %v", cleanups[i].name, err)
			}
		}
	})
}
