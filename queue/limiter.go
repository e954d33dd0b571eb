package queue

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/xraph/jobs"
)

// Limiter applies per-job-type token buckets. It is safe for concurrent use.
type Limiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
}

// NewLimiter creates a Limiter from per-type limits. Types not listed are
// unlimited.
func NewLimiter(limits map[string]jobs.RateLimit) *Limiter {
	l := &Limiter{limiters: make(map[string]*rate.Limiter, len(limits))}
	for jobType, rl := range limits {
		l.Set(jobType, rl)
	}
	return l
}

// Set installs or replaces the limit for jobType. A non-positive rate
// removes it.
func (l *Limiter) Set(jobType string, rl jobs.RateLimit) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rl.PerSecond <= 0 {
		delete(l.limiters, jobType)
		return
	}
	burst := rl.Burst
	if burst <= 0 {
		burst = 1
	}
	l.limiters[jobType] = rate.NewLimiter(rate.Limit(rl.PerSecond), burst)
}

// Allow reports whether a job of jobType may start now, consuming a token
// if so.
func (l *Limiter) Allow(jobType string) bool {
	lim := l.get(jobType)
	return lim == nil || lim.Allow()
}

// Wait blocks until a job of jobType may start or ctx ends.
func (l *Limiter) Wait(ctx context.Context, jobType string) error {
	lim := l.get(jobType)
	if lim == nil {
		return nil
	}
	return lim.Wait(ctx)
}

// Limited reports whether jobType has a limit.
func (l *Limiter) Limited(jobType string) bool {
	return l.get(jobType) != nil
}

func (l *Limiter) get(jobType string) *rate.Limiter {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.limiters[jobType]
}
