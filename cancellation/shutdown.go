package cancellation

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Result reports how a shutdown ended.
type Result struct {
	// Graceful is true when every job drained within the timeout.
	Graceful bool `json:"graceful"`
	// JobsRemaining counts jobs still registered after a forced shutdown.
	JobsRemaining int `json:"jobs_remaining"`
}

// IsGraceful reports whether all jobs drained.
func (r Result) IsGraceful() bool { return r.Graceful }

// String implements fmt.Stringer.
func (r Result) String() string {
	if r.Graceful {
		return "graceful"
	}
	return fmt.Sprintf("forced (%d jobs remaining)", r.JobsRemaining)
}

// ShutdownCoordinator owns the global shutdown token and drives the
// shutdown sequence against a Manager.
type ShutdownCoordinator struct {
	global  *Token
	manager *Manager
	logger  *slog.Logger
}

// NewShutdownCoordinator creates a coordinator for manager.
func NewShutdownCoordinator(manager *Manager, logger *slog.Logger) *ShutdownCoordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &ShutdownCoordinator{
		global:  NewToken(),
		manager: manager,
		logger:  logger,
	}
}

// Token returns the global shutdown token. Components stop accepting work
// once it fires.
func (c *ShutdownCoordinator) Token() *Token { return c.global }

// IsShuttingDown reports whether Shutdown was called.
func (c *ShutdownCoordinator) IsShuttingDown() bool { return c.global.IsCancelled() }

// Shutdown signals global shutdown, cancels every registered job and waits
// up to gracefulTimeout for the registry to drain.
func (c *ShutdownCoordinator) Shutdown(ctx context.Context, gracefulTimeout time.Duration) Result {
	c.global.Cancel()
	n := c.manager.CancelAll()

	c.logger.Info("shutdown started",
		slog.Int("jobs_cancelled", n),
		slog.Duration("graceful_timeout", gracefulTimeout),
	)

	if c.manager.WaitForCompletion(ctx, gracefulTimeout) {
		c.logger.Info("shutdown completed gracefully")
		return Result{Graceful: true}
	}

	remaining := c.manager.ActiveCount()
	c.logger.Warn("shutdown forced", slog.Int("jobs_remaining", remaining))
	return Result{JobsRemaining: remaining}
}
