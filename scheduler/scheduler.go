package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/xraph/jobs"
	"github.com/xraph/jobs/id"
	"github.com/xraph/jobs/job"
	"github.com/xraph/jobs/schedule"
)

// EnqueueFunc forwards a materialized job to the dispatcher. The
// dispatcher assigns the job id.
type EnqueueFunc func(ctx context.Context, def job.Definition) (id.JobID, error)

// Emitter is notified after every successful firing.
// ext.Registry satisfies this interface via EmitScheduleFired.
type Emitter interface {
	EmitScheduleFired(ctx context.Context, scheduleID id.ScheduleID, jobType string, jobID id.JobID)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTickInterval sets how often the scheduler checks for due entries.
func WithTickInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.tickInterval = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithEmitter sets the hook target for firings.
func WithEmitter(e Emitter) Option {
	return func(s *Scheduler) { s.emitter = e }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// firing is one due entry taken on a tick.
type firing struct {
	scheduleID id.ScheduleID
	def        job.Definition
}

// Scheduler owns the registered entries and fires them on a tick.
type Scheduler struct {
	enqueue      EnqueueFunc
	emitter      Emitter
	logger       *slog.Logger
	now          func() time.Time
	tickInterval time.Duration

	// Owned by the actor goroutine.
	entries map[id.ScheduleID]*Entry
	ticker  *time.Ticker

	cmds     chan func()
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a scheduler and starts its actor. Entries can be registered
// right away; they fire only after Start.
func New(enqueue EnqueueFunc, opts ...Option) *Scheduler {
	s := &Scheduler{
		enqueue:      enqueue,
		logger:       slog.Default(),
		now:          time.Now,
		tickInterval: 60 * time.Second,
		entries:      make(map[id.ScheduleID]*Entry),
		cmds:         make(chan func()),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.loop()
	return s
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Start begins ticking.
func (s *Scheduler) Start(ctx context.Context) error {
	err := s.do(ctx, func() {
		if s.ticker == nil {
			s.ticker = time.NewTicker(s.tickInterval)
		}
	})
	if err != nil {
		return err
	}
	s.logger.Info("scheduler started", slog.Duration("tick_interval", s.tickInterval))
	return nil
}

// Stop ends the actor and waits for in-flight dispatches or ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stop) })

	finished := make(chan struct{})
	go func() {
		<-s.done
		s.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) loop() {
	defer close(s.done)
	for {
		var tick <-chan time.Time
		if s.ticker != nil {
			tick = s.ticker.C
		}

		select {
		case <-s.stop:
			if s.ticker != nil {
				s.ticker.Stop()
			}
			return
		case cmd := <-s.cmds:
			cmd()
		case <-tick:
			if due := s.collectDue(s.now()); len(due) > 0 {
				s.wg.Add(1)
				go func() {
					defer s.wg.Done()
					s.dispatch(context.Background(), due)
				}()
			}
		}
	}
}

// do runs fn on the actor goroutine and waits for it.
func (s *Scheduler) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	select {
	case s.cmds <- func() { fn(); close(finished) }:
	case <-s.stop:
		return jobs.ErrShuttingDown
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ──────────────────────────────────────────────────
// Commands
// ──────────────────────────────────────────────────

// Register adds an enabled entry firing def on spec. The first execution
// is spec's next execution after now.
func (s *Scheduler) Register(ctx context.Context, def job.Definition, spec schedule.Spec) (id.ScheduleID, error) {
	if spec.Kind() == "" {
		return id.ScheduleID{}, fmt.Errorf("%w: empty schedule", jobs.ErrInvalidSchedule)
	}

	scheduleID := id.NewScheduleID()
	err := s.do(ctx, func() {
		now := s.now().UTC()
		next, ok := spec.NextExecution(now)
		if !ok {
			next = now
		}
		s.entries[scheduleID] = &Entry{
			ID:            scheduleID,
			Definition:    def,
			Schedule:      spec,
			NextExecution: next,
			Enabled:       true,
			CreatedAt:     now,
		}
	})
	if err != nil {
		return id.ScheduleID{}, err
	}

	s.logger.Info("schedule registered",
		slog.String("schedule_id", scheduleID.String()),
		slog.String("job_type", def.Type),
		slog.String("schedule", spec.Description()),
	)
	return scheduleID, nil
}

// Unregister removes an entry.
func (s *Scheduler) Unregister(ctx context.Context, scheduleID id.ScheduleID) error {
	var found bool
	err := s.do(ctx, func() {
		_, found = s.entries[scheduleID]
		delete(s.entries, scheduleID)
	})
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", jobs.ErrScheduleNotFound, scheduleID)
	}
	return nil
}

// SetEnabled enables or disables an entry.
func (s *Scheduler) SetEnabled(ctx context.Context, scheduleID id.ScheduleID, enabled bool) error {
	var found bool
	err := s.do(ctx, func() {
		var e *Entry
		e, found = s.entries[scheduleID]
		if found {
			e.Enabled = enabled
		}
	})
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", jobs.ErrScheduleNotFound, scheduleID)
	}
	return nil
}

// Get returns a copy of one entry.
func (s *Scheduler) Get(ctx context.Context, scheduleID id.ScheduleID) (Entry, error) {
	var (
		out   Entry
		found bool
	)
	err := s.do(ctx, func() {
		var e *Entry
		if e, found = s.entries[scheduleID]; found {
			out = e.clone()
		}
	})
	if err != nil {
		return Entry{}, err
	}
	if !found {
		return Entry{}, fmt.Errorf("%w: %s", jobs.ErrScheduleNotFound, scheduleID)
	}
	return out, nil
}

// List returns copies of every entry ordered by next execution, then id.
func (s *Scheduler) List(ctx context.Context) ([]Entry, error) {
	var out []Entry
	err := s.do(ctx, func() {
		out = make([]Entry, 0, len(s.entries))
		for _, e := range s.sorted() {
			out = append(out, e.clone())
		}
	})
	return out, err
}

// Trigger processes due entries now and dispatches them before returning.
// It reports how many jobs were enqueued.
func (s *Scheduler) Trigger(ctx context.Context) (int, error) {
	var due []firing
	if err := s.do(ctx, func() { due = s.collectDue(s.now()) }); err != nil {
		return 0, err
	}
	return s.dispatch(ctx, due), nil
}

// ──────────────────────────────────────────────────
// Tick processing
// ──────────────────────────────────────────────────

func (s *Scheduler) sorted() []*Entry {
	out := make([]*Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b *Entry) int {
		if c := a.NextExecution.Compare(b.NextExecution); c != 0 {
			return c
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})
	return out
}

// collectDue advances every due entry and returns the jobs to dispatch.
// Runs on the actor goroutine.
func (s *Scheduler) collectDue(now time.Time) []firing {
	now = now.UTC()
	var due []firing
	for _, e := range s.sorted() {
		if !e.due(now) {
			continue
		}
		if !e.Schedule.HasMoreExecutions(e.ExecutionCount) {
			e.Enabled = false
			s.logger.Info("schedule exhausted",
				slog.String("schedule_id", e.ID.String()),
				slog.Int("executions", e.ExecutionCount),
			)
			continue
		}

		e.ExecutionCount++
		fired := now
		e.LastExecution = &fired
		next, ok := e.Schedule.NextExecution(now)
		if ok {
			e.NextExecution = next
		}
		if !ok || !e.Schedule.HasMoreExecutions(e.ExecutionCount) {
			e.Enabled = false
		}

		def := e.Definition
		if def.Payload != nil {
			def.Payload = append([]byte(nil), def.Payload...)
		}
		due = append(due, firing{scheduleID: e.ID, def: def})
	}
	return due
}

// dispatch enqueues every firing. Failures are logged and skipped.
func (s *Scheduler) dispatch(ctx context.Context, due []firing) int {
	enqueued := 0
	for _, f := range due {
		jobID, err := s.enqueue(ctx, f.def)
		if err != nil {
			s.logger.Error("scheduled job dispatch failed",
				slog.String("schedule_id", f.scheduleID.String()),
				slog.String("job_type", f.def.Type),
				slog.String("error", err.Error()),
			)
			continue
		}
		enqueued++

		if s.emitter != nil {
			s.emitter.EmitScheduleFired(ctx, f.scheduleID, f.def.Type, jobID)
		}
		s.logger.Info("schedule fired",
			slog.String("schedule_id", f.scheduleID.String()),
			slog.String("job_type", f.def.Type),
			slog.String("job_id", jobID.String()),
		)
	}
	return enqueued
}
