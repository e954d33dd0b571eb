package backoff_test

import (
	"testing"
	"time"

	"github.com/xraph/jobs"
	"github.com/xraph/jobs/backoff"
)

func TestFixed_ReturnsSameDelay(t *testing.T) {
	f := backoff.NewFixed(5 * time.Second)
	for retry := 1; retry <= 10; retry++ {
		if got := f.Delay(retry); got != 5*time.Second {
			t.Errorf("Delay(%d) = %v, want 5s", retry, got)
		}
	}
}

func TestExponential_DoublesWithoutJitter(t *testing.T) {
	e := backoff.NewExponential(time.Second, time.Hour, 0)

	tests := []struct {
		retry int
		want  time.Duration
	}{
		{0, 1 * time.Second},
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{5, 16 * time.Second},
	}
	for _, tt := range tests {
		if got := e.Delay(tt.retry); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.retry, got, tt.want)
		}
	}
}

func TestExponential_CapsAtMax(t *testing.T) {
	e := backoff.NewExponential(time.Second, 10*time.Second, 0)
	for _, retry := range []int{5, 20, 200, 5000} {
		if got := e.Delay(retry); got != 10*time.Second {
			t.Errorf("Delay(%d) = %v, want 10s", retry, got)
		}
	}
}

func TestExponential_JitterStaysInBounds(t *testing.T) {
	e := backoff.NewExponential(100*time.Millisecond, 5*time.Second, 0.5)

	for retry := 1; retry <= 10; retry++ {
		ceiling := e.Ceiling(retry)
		floor := ceiling / 2
		for range 200 {
			d := e.Delay(retry)
			if d < floor || d > ceiling {
				t.Fatalf("Delay(%d) = %v, want within [%v, %v]", retry, d, floor, ceiling)
			}
		}
	}
}

func TestNewExponential_ClampsJitter(t *testing.T) {
	if e := backoff.NewExponential(time.Second, time.Minute, 7); e.Jitter != 1 {
		t.Errorf("Jitter = %v, want 1", e.Jitter)
	}
	if e := backoff.NewExponential(time.Second, time.Minute, -1); e.Jitter != 0 {
		t.Errorf("Jitter = %v, want 0", e.Jitter)
	}
}

func TestFromConfig(t *testing.T) {
	fixed := backoff.FromConfig(jobs.BackoffConfig{Kind: "fixed", Base: 3 * time.Second})
	if _, ok := fixed.(*backoff.Fixed); !ok {
		t.Fatalf("expected *Fixed, got %T", fixed)
	}
	if got := fixed.Delay(4); got != 3*time.Second {
		t.Errorf("fixed Delay = %v, want 3s", got)
	}

	exp, ok := backoff.FromConfig(jobs.BackoffConfig{}).(*backoff.Exponential)
	if !ok {
		t.Fatal("expected *Exponential for empty config")
	}
	if exp.Base != time.Second || exp.Max != 5*time.Minute {
		t.Errorf("defaults not applied: %+v", exp)
	}
}

func TestDefaultStrategy_BoundedAbove(t *testing.T) {
	s := backoff.DefaultStrategy()
	for retry := 1; retry <= 64; retry++ {
		if d := s.Delay(retry); d > 5*time.Minute || d < 0 {
			t.Fatalf("Delay(%d) = %v out of bounds", retry, d)
		}
	}
}
