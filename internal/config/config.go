// Package config loads process settings from defaults, an optional YAML
// file and JOBS_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/xraph/jobs"
	"github.com/xraph/jobs/internal/logging"
	"github.com/xraph/jobs/store"
)

// EnvPrefix prefixes every environment override, e.g. JOBS_SERVER_ADDR.
const EnvPrefix = "JOBS"

// Settings is the full process configuration.
type Settings struct {
	Engine EngineSettings `mapstructure:"engine"`
	Store  store.Config   `mapstructure:"store"`
	Server ServerSettings `mapstructure:"server"`
	Log    logging.Config `mapstructure:"log"`
}

// ServerSettings configures the admin HTTP listener.
type ServerSettings struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// EngineSettings mirrors jobs.Config.
type EngineSettings struct {
	Concurrency             int                          `mapstructure:"concurrency"`
	MaxQueueSize            int                          `mapstructure:"max_queue_size"`
	HistoryCapacity         int                          `mapstructure:"history_capacity"`
	SchedulerTick           time.Duration                `mapstructure:"scheduler_tick"`
	ShutdownTimeout         time.Duration                `mapstructure:"shutdown_timeout"`
	CancelPollInterval      time.Duration                `mapstructure:"cancel_poll_interval"`
	PersistenceBuffer       int                          `mapstructure:"persistence_buffer"`
	PersistenceWriteTimeout time.Duration                `mapstructure:"persistence_write_timeout"`
	RetentionTTL            time.Duration                `mapstructure:"retention_ttl"`
	DefaultMaxRetries       int                          `mapstructure:"default_max_retries"`
	DefaultTimeout          time.Duration                `mapstructure:"default_timeout"`
	Backoff                 BackoffSettings              `mapstructure:"backoff"`
	RateLimits              map[string]RateLimitSettings `mapstructure:"rate_limits"`
}

// BackoffSettings mirrors jobs.BackoffConfig.
type BackoffSettings struct {
	Kind   string        `mapstructure:"kind"`
	Base   time.Duration `mapstructure:"base"`
	Max    time.Duration `mapstructure:"max"`
	Jitter float64       `mapstructure:"jitter"`
}

// RateLimitSettings mirrors jobs.RateLimit.
type RateLimitSettings struct {
	PerSecond float64 `mapstructure:"per_second"`
	Burst     int     `mapstructure:"burst"`
}

// SetDefaults registers every default on v. Keys without a default are
// invisible to environment overrides.
func SetDefaults(v *viper.Viper) {
	d := jobs.DefaultConfig()

	v.SetDefault("engine.concurrency", d.Concurrency)
	v.SetDefault("engine.max_queue_size", d.MaxQueueSize)
	v.SetDefault("engine.history_capacity", d.HistoryCapacity)
	v.SetDefault("engine.scheduler_tick", d.SchedulerTick)
	v.SetDefault("engine.shutdown_timeout", d.ShutdownTimeout)
	v.SetDefault("engine.cancel_poll_interval", d.CancelPollInterval)
	v.SetDefault("engine.persistence_buffer", d.PersistenceBuffer)
	v.SetDefault("engine.persistence_write_timeout", d.PersistenceWriteTimeout)
	v.SetDefault("engine.retention_ttl", d.RetentionTTL)
	v.SetDefault("engine.default_max_retries", d.DefaultMaxRetries)
	v.SetDefault("engine.default_timeout", d.DefaultTimeout)
	v.SetDefault("engine.backoff.kind", d.Backoff.Kind)
	v.SetDefault("engine.backoff.base", d.Backoff.Base)
	v.SetDefault("engine.backoff.max", d.Backoff.Max)
	v.SetDefault("engine.backoff.jitter", d.Backoff.Jitter)

	v.SetDefault("store.driver", string(store.DriverMemory))
	v.SetDefault("store.redis_url", "redis://localhost:6379/0")
	v.SetDefault("store.prefix", "")
	v.SetDefault("store.completed_limit", 0)
	v.SetDefault("store.retention", d.RetentionTTL)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", d.ShutdownTimeout)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.source", false)
	v.SetDefault("log.no_color", false)
}

// Load reads settings into a fresh viper instance. path may be empty, in
// which case ./jobs.yaml is used when present.
func Load(path string) (*Settings, error) {
	return LoadWith(viper.New(), path)
}

// LoadWith reads settings through v, which may already carry bound flags.
func LoadWith(v *viper.Viper, path string) (*Settings, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("jobs")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the engine and store sections.
func (s *Settings) Validate() error {
	if err := s.JobsConfig().Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch s.Store.Driver {
	case "", store.DriverMemory, store.DriverRedis:
	default:
		return fmt.Errorf("config: %w: unknown store driver %q", jobs.ErrInvalidConfig, s.Store.Driver)
	}
	if s.Server.Addr == "" {
		return fmt.Errorf("config: %w: server address is required", jobs.ErrInvalidConfig)
	}
	return nil
}

// JobsConfig converts the engine section.
func (s *Settings) JobsConfig() jobs.Config {
	e := s.Engine
	cfg := jobs.Config{
		Concurrency:             e.Concurrency,
		MaxQueueSize:            e.MaxQueueSize,
		HistoryCapacity:         e.HistoryCapacity,
		SchedulerTick:           e.SchedulerTick,
		ShutdownTimeout:         e.ShutdownTimeout,
		CancelPollInterval:      e.CancelPollInterval,
		PersistenceBuffer:       e.PersistenceBuffer,
		PersistenceWriteTimeout: e.PersistenceWriteTimeout,
		RetentionTTL:            e.RetentionTTL,
		DefaultMaxRetries:       e.DefaultMaxRetries,
		DefaultTimeout:          e.DefaultTimeout,
		Backoff: jobs.BackoffConfig{
			Kind:   e.Backoff.Kind,
			Base:   e.Backoff.Base,
			Max:    e.Backoff.Max,
			Jitter: e.Backoff.Jitter,
		},
	}
	if len(e.RateLimits) > 0 {
		cfg.RateLimits = make(map[string]jobs.RateLimit, len(e.RateLimits))
		for name, rl := range e.RateLimits {
			cfg.RateLimits[name] = jobs.RateLimit{PerSecond: rl.PerSecond, Burst: rl.Burst}
		}
	}
	return cfg
}
