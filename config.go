package jobs

import (
	"fmt"
	"time"
)

// Config holds configuration for the job engine and its agents.
type Config struct {
	// Concurrency is the maximum number of jobs executed at the same time.
	Concurrency int

	// MaxQueueSize bounds the pending set. Enqueue fails with ErrQueueFull
	// once it is reached.
	MaxQueueSize int

	// HistoryCapacity is the number of terminal records kept in memory.
	HistoryCapacity int

	// SchedulerTick is how often the scheduler looks for due entries.
	SchedulerTick time.Duration

	// ShutdownTimeout is the default graceful drain window.
	ShutdownTimeout time.Duration

	// CancelPollInterval is how often a draining shutdown checks the
	// cancellation registry.
	CancelPollInterval time.Duration

	// PersistenceBuffer is the capacity of the persistence agent mailbox.
	// Messages sent while it is full are dropped and logged.
	PersistenceBuffer int

	// PersistenceWriteTimeout bounds every single durable store write.
	PersistenceWriteTimeout time.Duration

	// RetentionTTL is how long live job records are kept by the store.
	// Dead letter records never expire.
	RetentionTTL time.Duration

	// DefaultMaxRetries and DefaultTimeout apply to jobs enqueued without
	// explicit options.
	DefaultMaxRetries int
	DefaultTimeout    time.Duration

	// Backoff selects the retry delay strategy.
	Backoff BackoffConfig

	// RateLimits caps the start rate of individual job types.
	RateLimits map[string]RateLimit
}

// BackoffConfig describes the retry delay strategy.
type BackoffConfig struct {
	// Kind is "exponential" (default) or "fixed".
	Kind   string
	Base   time.Duration
	Max    time.Duration
	Jitter float64
}

// RateLimit is a token bucket for one job type.
type RateLimit struct {
	// PerSecond is the sustained number of job starts per second.
	PerSecond float64
	Burst     int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:             10,
		MaxQueueSize:            10_000,
		HistoryCapacity:         1_000,
		SchedulerTick:           60 * time.Second,
		ShutdownTimeout:         30 * time.Second,
		CancelPollInterval:      100 * time.Millisecond,
		PersistenceBuffer:       1_024,
		PersistenceWriteTimeout: 5 * time.Second,
		RetentionTTL:            7 * 24 * time.Hour,
		DefaultMaxRetries:       3,
		DefaultTimeout:          5 * time.Minute,
		Backoff: BackoffConfig{
			Kind:   "exponential",
			Base:   time.Second,
			Max:    5 * time.Minute,
			Jitter: 0.5,
		},
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	switch {
	case c.Concurrency < 1:
		return fmt.Errorf("%w: concurrency must be positive", ErrInvalidConfig)
	case c.MaxQueueSize < 1:
		return fmt.Errorf("%w: max queue size must be positive", ErrInvalidConfig)
	case c.HistoryCapacity < 1:
		return fmt.Errorf("%w: history capacity must be positive", ErrInvalidConfig)
	case c.SchedulerTick <= 0:
		return fmt.Errorf("%w: scheduler tick must be positive", ErrInvalidConfig)
	case c.PersistenceBuffer < 1:
		return fmt.Errorf("%w: persistence buffer must be positive", ErrInvalidConfig)
	case c.DefaultMaxRetries < 0:
		return fmt.Errorf("%w: default max retries must not be negative", ErrInvalidConfig)
	case c.Backoff.Jitter < 0 || c.Backoff.Jitter > 1:
		return fmt.Errorf("%w: backoff jitter must be within [0, 1]", ErrInvalidConfig)
	}
	switch c.Backoff.Kind {
	case "", "exponential", "fixed":
	default:
		return fmt.Errorf("%w: unknown backoff kind %q", ErrInvalidConfig, c.Backoff.Kind)
	}
	for name, rl := range c.RateLimits {
		if rl.PerSecond <= 0 {
			return fmt.Errorf("%w: rate limit for %q must be positive", ErrInvalidConfig, name)
		}
	}
	return nil
}
