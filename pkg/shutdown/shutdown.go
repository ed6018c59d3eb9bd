package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/psantana5/procwatch/pkg/logging"
)

// Manager handles graceful shutdown of the supervisor. Registered hooks
// run in reverse order so child watchdogs are stopped before the
// surfaces that report on them.
type Manager struct {
	hooks    []func(context.Context) error
	mu       sync.Mutex
	timeout  time.Duration
	doneChan chan struct{}
	once     sync.Once
	log      *logging.Logger
}

// New creates a shutdown manager with the given overall timeout
func New(timeout time.Duration, log *logging.Logger) *Manager {
	return &Manager{
		timeout:  timeout,
		doneChan: make(chan struct{}),
		log:      log,
	}
}

// Register adds a shutdown hook. Hooks are called in reverse order (LIFO).
func (m *Manager) Register(fn func(context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, fn)
}

// Done returns a channel that is closed when shutdown is initiated
func (m *Manager) Done() <-chan struct{} {
	return m.doneChan
}

// Trigger initiates shutdown without a signal (e.g. fatal watchdog state)
func (m *Manager) Trigger() {
	m.once.Do(func() { close(m.doneChan) })
}

// Shutdown executes all registered hooks in reverse order
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	for i := len(m.hooks) - 1; i >= 0; i-- {
		if err := m.hooks[i](ctx); err != nil {
			m.log.Error("Shutdown hook failed", map[string]interface{}{"hook": i, "error": err.Error()})
		}
	}

	m.log.Info("Graceful shutdown complete")
}

// WaitWithContext blocks until a termination signal arrives or the
// context is cancelled, then runs the shutdown hooks. This is the
// supervisor's termination hook: children are never orphaned on the
// supervisor's own exit path.
func (m *Manager) WaitWithContext(ctx context.Context) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		m.log.Info("Received signal, shutting down", map[string]interface{}{"signal": sig.String()})
		m.Trigger()
		m.Shutdown()
		return nil
	case <-m.doneChan:
		m.Shutdown()
		return nil
	case <-ctx.Done():
		m.Trigger()
		m.Shutdown()
		return ctx.Err()
	}
}

// StopHTTPServer creates a shutdown hook for an http.Server
func StopHTTPServer(server interface{ Shutdown(context.Context) error }, name string) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to stop %s server: %w", name, err)
		}
		return nil
	}
}

// CloseResource creates a shutdown hook for an io.Closer
func CloseResource(closer interface{ Close() error }, name string) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := closer.Close(); err != nil {
			return fmt.Errorf("failed to close %s: %w", name, err)
		}
		return nil
	}
}
