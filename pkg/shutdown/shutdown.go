// Package shutdown coordinates cleanup when a run exits or the
// operator interrupts it. Functions run in reverse registration order
// so late-created resources release first.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/perfx-labs/perfx/pkg/logging"
)

// Manager handles graceful shutdown
type Manager struct {
	mu            sync.Mutex
	shutdownFuncs []func(context.Context) error
	timeout       time.Duration
	log           *logging.Logger
	interrupted   chan os.Signal
	once          sync.Once
	runOnce       sync.Once
}

// New creates a shutdown manager listening for SIGINT/SIGTERM
func New(timeout time.Duration, log *logging.Logger) *Manager {
	m := &Manager{
		timeout:     timeout,
		log:         log,
		interrupted: make(chan os.Signal, 1),
	}
	signal.Notify(m.interrupted, syscall.SIGINT, syscall.SIGTERM)
	return m
}

// Register adds a shutdown function. Functions run LIFO.
func (m *Manager) Register(fn func(context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdownFuncs = append(m.shutdownFuncs, fn)
}

// Interrupted returns a channel receiving the first operator signal
func (m *Manager) Interrupted() <-chan os.Signal {
	return m.interrupted
}

// Shutdown executes all registered shutdown functions exactly once
func (m *Manager) Shutdown() {
	m.runOnce.Do(func() {
		m.mu.Lock()
		funcs := make([]func(context.Context) error, len(m.shutdownFuncs))
		copy(funcs, m.shutdownFuncs)
		m.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()

		for i := len(funcs) - 1; i >= 0; i-- {
			if err := funcs[i](ctx); err != nil {
				m.log.Warn("shutdown step failed", map[string]interface{}{
					"step":  i,
					"error": err.Error(),
				})
			}
		}
	})
}

// Stop releases the signal handler
func (m *Manager) Stop() {
	m.once.Do(func() {
		signal.Stop(m.interrupted)
	})
}
