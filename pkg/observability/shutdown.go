package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// ShutdownFunc is a function to call during shutdown
type ShutdownFunc func(context.Context) error

// ShutdownManager runs registered shutdown hooks concurrently under one deadline
type ShutdownManager struct {
	logger  *Logger
	timeout time.Duration

	mu    sync.Mutex
	names []string
	funcs []ShutdownFunc
}

// NewShutdownManager creates a new shutdown manager
func NewShutdownManager(logger *Logger, timeout time.Duration) *ShutdownManager {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &ShutdownManager{
		logger:  logger,
		timeout: timeout,
	}
}

// Register adds a named hook
func (sm *ShutdownManager) Register(name string, fn ShutdownFunc) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.names = append(sm.names, name)
	sm.funcs = append(sm.funcs, fn)
}

// Shutdown executes every hook and returns the first error
func (sm *ShutdownManager) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), sm.timeout)
	defer cancel()

	sm.mu.Lock()
	names := append([]string(nil), sm.names...)
	funcs := append([]ShutdownFunc(nil), sm.funcs...)
	sm.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for i := range funcs {
		name, fn := names[i], funcs[i]
		g.Go(func() error {
			if err := fn(gctx); err != nil {
				sm.logger.WithError(err).WithField("hook", name).Error("Shutdown hook failed")
				return fmt.Errorf("%s: %w", name, err)
			}
			sm.logger.WithField("hook", name).Info("Shutdown hook complete")
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	sm.logger.Info("Graceful shutdown complete")
	return nil
}
