package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xraph/jobs"
	"github.com/xraph/jobs/backoff"
	"github.com/xraph/jobs/cancellation"
	"github.com/xraph/jobs/ext"
	"github.com/xraph/jobs/history"
	"github.com/xraph/jobs/id"
	"github.com/xraph/jobs/job"
	"github.com/xraph/jobs/middleware"
	"github.com/xraph/jobs/persistence"
	"github.com/xraph/jobs/queue"
)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithConcurrency sets the number of worker goroutines.
func WithConcurrency(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// WithMaxQueueSize bounds the pending set.
func WithMaxQueueSize(n int) Option {
	return func(d *Dispatcher) { d.maxQueueSize = n }
}

// WithBackoff sets the retry delay strategy.
func WithBackoff(s backoff.Strategy) Option {
	return func(d *Dispatcher) { d.backoff = s }
}

// WithLimiter applies per-type start rate limits.
func WithLimiter(l *queue.Limiter) Option {
	return func(d *Dispatcher) { d.limiter = l }
}

// WithMiddleware sets the middleware chain wrapped around every attempt.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(d *Dispatcher) { d.mw = middleware.Chain(mws...) }
}

// WithExtensions sets the extension registry notified of transitions.
func WithExtensions(r *ext.Registry) Option {
	return func(d *Dispatcher) { d.extensions = r }
}

// WithPersistence sets the agent durable writes are sent to.
func WithPersistence(a *persistence.Agent) Option {
	return func(d *Dispatcher) { d.persistence = a }
}

// WithHistory sets the index terminal records are added to.
func WithHistory(h *history.Index) Option {
	return func(d *Dispatcher) { d.history = h }
}

// WithShutdownToken sets the global token whose cancellation stops the
// dispatcher.
func WithShutdownToken(t *cancellation.Token) Option {
	return func(d *Dispatcher) { d.shutdown = t }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// Dispatcher admits, runs, retries and finalizes jobs.
type Dispatcher struct {
	registry     *job.Registry
	cancels      *cancellation.Manager
	concurrency  int
	maxQueueSize int
	backoff      backoff.Strategy
	limiter      *queue.Limiter
	mw           middleware.Middleware
	extensions   *ext.Registry
	persistence  *persistence.Agent
	history      *history.Index
	shutdown     *cancellation.Token
	logger       *slog.Logger

	queue *queue.Queue

	// mu guards live, closed and every mutation of a live job.
	mu     sync.RWMutex
	live   map[id.JobID]*job.QueuedJob
	closed bool

	running   atomic.Int64
	wg        sync.WaitGroup
	startOnce sync.Once
	drainOnce sync.Once
}

// New creates a dispatcher running handlers from registry. Tokens are
// registered with cancels for the lifetime of every job.
func New(registry *job.Registry, cancels *cancellation.Manager, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry:     registry,
		cancels:      cancels,
		concurrency:  10,
		maxQueueSize: 10_000,
		backoff:      backoff.DefaultStrategy(),
		mw:           middleware.Chain(),
		logger:       slog.Default(),
		live:         make(map[id.JobID]*job.QueuedJob),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.extensions == nil {
		d.extensions = ext.NewRegistry(d.logger)
	}
	if d.shutdown == nil {
		d.shutdown = cancellation.NewToken()
	}
	d.queue = queue.New(d.maxQueueSize)
	return d
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Start launches the workers. Jobs enqueued before Start wait in the
// queue. It returns immediately.
func (d *Dispatcher) Start(_ context.Context) error {
	d.startOnce.Do(func() {
		for range d.concurrency {
			d.wg.Add(1)
			go d.workerLoop()
		}
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			<-d.shutdown.Done()
			d.Drain()
		}()
		d.logger.Info("dispatcher started",
			slog.Int("concurrency", d.concurrency),
			slog.Int("max_queue_size", d.maxQueueSize),
		)
	})
	return nil
}

// Stop fires the shutdown token, cancels the pending set and waits for
// the workers to finish their current jobs or ctx to end. Jobs whose
// handler ignores cancellation may outlive Stop.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.shutdown.Cancel()
	d.startOnce.Do(func() {})
	d.Drain()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("dispatcher stopped")
		return nil
	case <-ctx.Done():
		d.logger.Warn("dispatcher stop timed out", slog.Int64("running", d.running.Load()))
		return ctx.Err()
	}
}

// Drain stops admission and cancels every pending job. It runs on its own
// once the shutdown token fires; calling it again has no effect.
func (d *Dispatcher) Drain() {
	d.drainOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()

		d.queue.Close()
		pending := d.queue.Drain()
		for _, j := range pending {
			d.finishCancelled(j)
		}
		d.logger.Info("dispatcher drained", slog.Int("jobs_cancelled", len(pending)))
	})
}

// ──────────────────────────────────────────────────
// Admission
// ──────────────────────────────────────────────────

// Enqueue admits def and returns the new job's id. It fails with
// jobs.ErrUnknownJobType, jobs.ErrShuttingDown or jobs.ErrQueueFull.
func (d *Dispatcher) Enqueue(ctx context.Context, def job.Definition) (id.JobID, error) {
	if _, ok := d.registry.Get(def.Type); !ok {
		return id.NilJob, d.reject(ctx, def, fmt.Errorf("%w: %q", jobs.ErrUnknownJobType, def.Type))
	}

	j := job.New(id.NewJobID(), def, time.Now().UTC())

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return id.NilJob, d.reject(ctx, def, jobs.ErrShuttingDown)
	}
	d.live[j.ID] = j
	d.cancels.Register(j.ID)
	if err := d.queue.Push(j); err != nil {
		delete(d.live, j.ID)
		d.cancels.Unregister(j.ID)
		d.mu.Unlock()
		if errors.Is(err, queue.ErrClosed) {
			err = jobs.ErrShuttingDown
		}
		return id.NilJob, d.reject(ctx, def, err)
	}
	snap := j.Snapshot()
	d.mu.Unlock()

	d.extensions.EmitJobEnqueued(ctx, snap)
	d.extensions.EmitStatusChanged(ctx, snap, "")
	d.persist(persistence.PersistJob{Job: snap})

	d.logger.Debug("job enqueued",
		slog.String("job_id", j.ID.String()),
		slog.String("job_type", def.Type),
		slog.Int("priority", def.Priority),
	)
	return j.ID, nil
}

func (d *Dispatcher) reject(ctx context.Context, def job.Definition, err error) error {
	d.extensions.EmitJobRejected(ctx, def, err)
	d.logger.Warn("job rejected",
		slog.String("job_type", def.Type),
		slog.String("error", err.Error()),
	)
	return err
}

// Cancel cancels a live job. Pending jobs are finalized immediately;
// running and retry-waiting jobs are signalled and finalized by their
// owner. It reports false for unknown or finished jobs.
func (d *Dispatcher) Cancel(jobID id.JobID) bool {
	d.mu.Lock()
	j, ok := d.live[jobID]
	if !ok {
		d.mu.Unlock()
		return false
	}
	_, removed := d.queue.Remove(jobID)
	d.mu.Unlock()

	if removed {
		d.finishCancelled(j)
		return true
	}
	return d.cancels.CancelJob(jobID)
}

// ──────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────

// Lookup returns a snapshot of a live (not yet finished) job.
func (d *Dispatcher) Lookup(jobID id.JobID) (*job.QueuedJob, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	j, ok := d.live[jobID]
	if !ok {
		return nil, false
	}
	return j.Snapshot(), true
}

// Snapshot returns every live job, oldest first.
func (d *Dispatcher) Snapshot() []*job.QueuedJob {
	d.mu.RLock()
	out := make([]*job.QueuedJob, 0, len(d.live))
	for _, j := range d.live {
		out = append(out, j.Snapshot())
	}
	d.mu.RUnlock()

	slices.SortFunc(out, func(a, b *job.QueuedJob) int {
		return a.EnqueuedAt.Compare(b.EnqueuedAt)
	})
	return out
}

// Depth returns the number of pending jobs.
func (d *Dispatcher) Depth() int { return d.queue.Len() }

// Running returns the number of attempts in progress.
func (d *Dispatcher) Running() int { return int(d.running.Load()) }

// Accepting reports whether Enqueue still admits jobs.
func (d *Dispatcher) Accepting() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return !d.closed
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// transition applies next to j under the lock and returns a snapshot and
// the previous state.
func (d *Dispatcher) transition(j *job.QueuedJob, next job.Status) (*job.QueuedJob, job.State, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	from := j.Status.State
	if err := j.Transition(next); err != nil {
		return nil, from, err
	}
	return j.Snapshot(), from, nil
}

func (d *Dispatcher) persist(msg persistence.Message) {
	if d.persistence != nil {
		d.persistence.Send(msg)
	}
}

func (d *Dispatcher) record(snap *job.QueuedJob, status history.Status) {
	if d.history == nil {
		return
	}
	rec := history.Record{
		JobID:      snap.ID,
		JobType:    snap.Type,
		Status:     status,
		EnqueuedAt: snap.EnqueuedAt,
		StartedAt:  snap.StartedAt,
		FinishedAt: snap.Status.At,
		Attempts:   snap.Attempt,
		Error:      snap.Status.Error,
	}
	if !snap.StartedAt.IsZero() {
		rec.DurationMS = snap.Status.At.Sub(snap.StartedAt).Milliseconds()
	}
	d.history.Add(rec)
}

// release forgets a finished job.
func (d *Dispatcher) release(jobID id.JobID) {
	d.mu.Lock()
	delete(d.live, jobID)
	d.mu.Unlock()
	d.cancels.Unregister(jobID)
}
