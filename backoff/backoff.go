// Package backoff provides retry delay strategies for failed jobs.
// Strategies are stateless and safe for concurrent use.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/xraph/jobs"
)

// Strategy computes the delay before a retry.
type Strategy interface {
	// Delay returns how long to wait before retry n (1-indexed): retry 1 is
	// the first retry after the initial failure.
	Delay(retry int) time.Duration
}

// ──────────────────────────────────────────────────
// Fixed
// ──────────────────────────────────────────────────

// Fixed waits the same interval before every retry.
type Fixed struct {
	Interval time.Duration
}

// NewFixed creates a fixed backoff strategy.
func NewFixed(interval time.Duration) *Fixed {
	return &Fixed{Interval: interval}
}

// Delay returns the fixed interval.
func (f *Fixed) Delay(_ int) time.Duration {
	return f.Interval
}

// ──────────────────────────────────────────────────
// Exponential
// ──────────────────────────────────────────────────

// Exponential doubles the delay on every retry up to Max, then subtracts a
// random share of at most Jitter (0..1) of it. The result always lies in
// [d*(1-Jitter), d] where d = min(Base * 2^(retry-1), Max).
type Exponential struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64
}

// NewExponential creates an exponential backoff strategy. jitter is
// clamped to [0, 1].
func NewExponential(base, maxDelay time.Duration, jitter float64) *Exponential {
	return &Exponential{Base: base, Max: maxDelay, Jitter: min(max(jitter, 0), 1)}
}

// Ceiling returns the un-jittered delay for retry.
func (e *Exponential) Ceiling(retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}
	d := float64(e.Base) * math.Pow(2, float64(retry-1))
	if e.Max > 0 && d > float64(e.Max) {
		d = float64(e.Max)
	}
	if d >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// Delay returns the jittered delay for retry.
func (e *Exponential) Delay(retry int) time.Duration {
	d := e.Ceiling(retry)
	if e.Jitter <= 0 {
		return d
	}
	cut := rand.Float64() * e.Jitter * float64(d) //nolint:gosec // jitter does not need crypto rand
	return d - time.Duration(cut)
}

// ──────────────────────────────────────────────────
// Config
// ──────────────────────────────────────────────────

// DefaultStrategy returns exponential backoff from 1s to 5m with 50% jitter.
func DefaultStrategy() Strategy {
	return NewExponential(time.Second, 5*time.Minute, 0.5)
}

// FromConfig builds the strategy described by cfg. Zero fields fall back
// to the defaults.
func FromConfig(cfg jobs.BackoffConfig) Strategy {
	def := jobs.DefaultConfig().Backoff
	if cfg.Base <= 0 {
		cfg.Base = def.Base
	}
	if cfg.Kind == "fixed" {
		return NewFixed(cfg.Base)
	}
	if cfg.Max <= 0 {
		cfg.Max = def.Max
	}
	return NewExponential(cfg.Base, cfg.Max, cfg.Jitter)
}
