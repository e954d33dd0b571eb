// Package schedule computes fire times for scheduled jobs.
//
// A [Spec] is one of three variants:
//
//   - Cron: a 6-field expression (second minute hour day-of-month month
//     day-of-week) or a descriptor such as "@daily" or "@every 90s". Cron
//     schedules never run out of executions.
//   - Delayed: fire once, a fixed delay after registration.
//   - Recurring: fire every interval, optionally at most N times.
//
// Specs are validated at construction. Evaluation never fails.
package schedule

import (
	"encoding/json"
	"fmt"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/xraph/jobs"
)

// Kind names the variant of a Spec.
type Kind string

const (
	KindCron      Kind = "cron"
	KindDelayed   Kind = "delayed"
	KindRecurring Kind = "recurring"
)

// cronParser accepts the 6-field layout with a mandatory seconds field and
// descriptors like "@hourly" or "@every 30s".
var cronParser = cronlib.NewParser(
	cronlib.Second | cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// Spec is an immutable schedule specification. The zero value is not valid;
// use NewCron, NewDelayed or NewRecurring.
type Spec struct {
	kind     Kind
	expr     string
	cron     cronlib.Schedule
	delay    time.Duration
	interval time.Duration
	max      int
}

// NewCron parses expr. A malformed expression fails with
// jobs.ErrInvalidSchedule.
func NewCron(expr string) (Spec, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return Spec{}, fmt.Errorf("%w: cron %q: %w", jobs.ErrInvalidSchedule, expr, err)
	}
	return Spec{kind: KindCron, expr: expr, cron: sched}, nil
}

// NewDelayed returns a one-shot schedule firing delay after registration.
// The delay must be positive.
func NewDelayed(delay time.Duration) (Spec, error) {
	if delay <= 0 {
		return Spec{}, fmt.Errorf("%w: delay must be positive, got %s", jobs.ErrInvalidSchedule, delay)
	}
	return Spec{kind: KindDelayed, delay: delay}, nil
}

// NewRecurring returns a schedule firing every interval. maxExecutions
// caps the number of firings; zero or less means unlimited.
func NewRecurring(interval time.Duration, maxExecutions int) (Spec, error) {
	if interval <= 0 {
		return Spec{}, fmt.Errorf("%w: interval must be positive, got %s", jobs.ErrInvalidSchedule, interval)
	}
	if maxExecutions < 0 {
		maxExecutions = 0
	}
	return Spec{kind: KindRecurring, interval: interval, max: maxExecutions}, nil
}

// Kind returns the variant.
func (s Spec) Kind() Kind { return s.kind }

// Expression returns the cron expression, or "" for other kinds.
func (s Spec) Expression() string { return s.expr }

// Delay returns the one-shot delay, or 0 for other kinds.
func (s Spec) Delay() time.Duration { return s.delay }

// Interval returns the recurring interval, or 0 for other kinds.
func (s Spec) Interval() time.Duration { return s.interval }

// MaxExecutions returns the firing cap of a recurring schedule and whether
// one is set.
func (s Spec) MaxExecutions() (int, bool) { return s.max, s.max > 0 }

// NextExecution returns the first fire time after from. Cron resolves the
// next match strictly after from; delayed and recurring add their duration.
// It reports false only for a cron expression that never matches again.
func (s Spec) NextExecution(from time.Time) (time.Time, bool) {
	switch s.kind {
	case KindCron:
		next := s.cron.Next(from)
		if next.IsZero() {
			return time.Time{}, false
		}
		return next, true
	case KindDelayed:
		return from.Add(s.delay), true
	case KindRecurring:
		return from.Add(s.interval), true
	default:
		return time.Time{}, false
	}
}

// HasMoreExecutions reports whether a schedule that already fired count
// times may fire again.
func (s Spec) HasMoreExecutions(count int) bool {
	switch s.kind {
	case KindCron:
		return true
	case KindDelayed:
		return count == 0
	case KindRecurring:
		return s.max == 0 || count < s.max
	default:
		return false
	}
}

// Description renders the schedule for humans.
func (s Spec) Description() string {
	switch s.kind {
	case KindCron:
		return "cron: " + s.expr
	case KindDelayed:
		return "delayed: " + s.delay.String()
	case KindRecurring:
		if s.max > 0 {
			return fmt.Sprintf("every %s (max %d times)", s.interval, s.max)
		}
		return "every " + s.interval.String()
	default:
		return "invalid"
	}
}

// String implements fmt.Stringer.
func (s Spec) String() string { return s.Description() }

// ──────────────────────────────────────────────────
// JSON
// ──────────────────────────────────────────────────

type specJSON struct {
	Kind          Kind   `json:"kind"`
	Expression    string `json:"expression,omitempty"`
	Delay         string `json:"delay,omitempty"`
	Interval      string `json:"interval,omitempty"`
	MaxExecutions int    `json:"max_executions,omitempty"`
}

// MarshalJSON implements json.Marshaler. Durations use time.Duration
// string syntax ("90s").
func (s Spec) MarshalJSON() ([]byte, error) {
	out := specJSON{Kind: s.kind}
	switch s.kind {
	case KindCron:
		out.Expression = s.expr
	case KindDelayed:
		out.Delay = s.delay.String()
	case KindRecurring:
		out.Interval = s.interval.String()
		out.MaxExecutions = s.max
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler and validates like the
// constructors do.
func (s *Spec) UnmarshalJSON(data []byte) error {
	var in specJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	parsed, err := Parse(in.Kind, in.Expression, in.Delay, in.Interval, in.MaxExecutions)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Parse builds a Spec from loosely typed input such as CLI flags or JSON.
func Parse(kind Kind, expression, delay, interval string, maxExecutions int) (Spec, error) {
	switch kind {
	case KindCron:
		return NewCron(expression)
	case KindDelayed:
		d, err := time.ParseDuration(delay)
		if err != nil {
			return Spec{}, fmt.Errorf("%w: delay %q: %w", jobs.ErrInvalidSchedule, delay, err)
		}
		return NewDelayed(d)
	case KindRecurring:
		d, err := time.ParseDuration(interval)
		if err != nil {
			return Spec{}, fmt.Errorf("%w: interval %q: %w", jobs.ErrInvalidSchedule, interval, err)
		}
		return NewRecurring(d, maxExecutions)
	default:
		return Spec{}, fmt.Errorf("%w: unknown kind %q", jobs.ErrInvalidSchedule, kind)
	}
}
