package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/jobs/persistence"
)

var _ persistence.Store = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithPrefix sets the key prefix. It should end with a separator.
func WithPrefix(p string) Option {
	return func(s *Store) { s.keys = keys{prefix: p} }
}

// WithRetention sets the expiry of live job records. Zero disables it.
func WithRetention(d time.Duration) Option {
	return func(s *Store) { s.retention = d }
}

// WithCompletedLimit caps the completed list. Zero keeps every id.
func WithCompletedLimit(n int64) Option {
	return func(s *Store) { s.completedLimit = n }
}

// Store implements persistence.Store backed by Redis.
type Store struct {
	client         redis.Cmdable
	logger         *slog.Logger
	keys           keys
	retention      time.Duration
	completedLimit int64
}

// New creates a Redis-backed store. The caller owns the client lifecycle.
func New(client redis.Cmdable, opts ...Option) *Store {
	s := &Store{
		client:         client,
		logger:         slog.Default(),
		keys:           keys{prefix: defaultPrefix},
		retention:      7 * 24 * time.Hour,
		completedLimit: 10_000,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() redis.Cmdable { return s.client }

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("jobs/redis: ping: %w", err)
	}
	return nil
}

// Close is a no-op; the caller owns the Redis client lifecycle.
func (s *Store) Close() error { return nil }
