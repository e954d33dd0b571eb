package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/jobs"
	"github.com/xraph/jobs/persistence"
	"github.com/xraph/jobs/store/memory"
	"github.com/xraph/jobs/store/redis"
)

// Driver names a backend.
type Driver string

const (
	DriverMemory Driver = "memory"
	DriverRedis  Driver = "redis"
)

// Config selects and configures a backend.
type Config struct {
	Driver Driver `mapstructure:"driver" json:"driver"`

	// RedisURL is a redis:// or rediss:// URL, used by DriverRedis.
	RedisURL string `mapstructure:"redis_url" json:"redis_url"`

	// Prefix namespaces every Redis key.
	Prefix string `mapstructure:"prefix" json:"prefix"`

	// CompletedLimit caps the completed id list. Zero keeps every id.
	CompletedLimit int64 `mapstructure:"completed_limit" json:"completed_limit"`

	// Retention is how long live job records are kept.
	Retention time.Duration `mapstructure:"retention" json:"retention"`
}

// Open builds the configured store and verifies it is reachable. The
// returned store owns its Redis client; Close releases it.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (persistence.Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Driver {
	case "", DriverMemory:
		return memory.New(memory.WithRetention(cfg.Retention)), nil

	case DriverRedis:
		opts, err := goredis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("%w: redis url: %w", jobs.ErrInvalidConfig, err)
		}
		client := goredis.NewClient(opts)

		ropts := []redis.Option{
			redis.WithLogger(logger),
			redis.WithRetention(cfg.Retention),
		}
		if cfg.Prefix != "" {
			ropts = append(ropts, redis.WithPrefix(cfg.Prefix))
		}
		if cfg.CompletedLimit > 0 {
			ropts = append(ropts, redis.WithCompletedLimit(cfg.CompletedLimit))
		}
		s := &ownedRedis{Store: redis.New(client, ropts...), client: client}

		if err := s.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, err
		}
		logger.Info("redis store connected", slog.String("addr", opts.Addr))
		return s, nil

	default:
		return nil, fmt.Errorf("%w: unknown store driver %q", jobs.ErrInvalidConfig, cfg.Driver)
	}
}

// ownedRedis closes the client it was opened with.
type ownedRedis struct {
	*redis.Store
	client *goredis.Client
}

func (s *ownedRedis) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("jobs/redis: close: %w", err)
	}
	return nil
}
