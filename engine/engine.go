package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/jobs"
	"github.com/xraph/jobs/backoff"
	"github.com/xraph/jobs/cancellation"
	"github.com/xraph/jobs/dispatcher"
	"github.com/xraph/jobs/ext"
	"github.com/xraph/jobs/history"
	"github.com/xraph/jobs/id"
	"github.com/xraph/jobs/job"
	mw "github.com/xraph/jobs/middleware"
	"github.com/xraph/jobs/observability"
	"github.com/xraph/jobs/persistence"
	"github.com/xraph/jobs/queue"
	"github.com/xraph/jobs/schedule"
	"github.com/xraph/jobs/scheduler"
	"github.com/xraph/jobs/store/memory"
)

const instrumentationName = "github.com/xraph/jobs"

// Engine owns every agent of the job subsystem.
type Engine struct {
	cfg         jobs.Config
	logger      *slog.Logger
	store       persistence.Store
	registry    *job.Registry
	extensions  *ext.Registry
	cancels     *cancellation.Manager
	coordinator *cancellation.ShutdownCoordinator
	dispatcher  *dispatcher.Dispatcher
	scheduler   *scheduler.Scheduler
	agent       *persistence.Agent
	history     *history.Index
	stats       *observability.Stats

	pendingExts    []ext.Extension
	mws            []mw.Middleware
	bo             backoff.Strategy
	schedulerOpts  []scheduler.Option
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	shutdownOnce sync.Once
	result       cancellation.Result
}

// Option configures an Engine.
type Option func(*Engine)

// WithStore sets the durable store behind the persistence agent.
func WithStore(s persistence.Store) Option {
	return func(eng *Engine) { eng.store = s }
}

// WithLogger sets the logger shared by every agent.
func WithLogger(l *slog.Logger) Option {
	return func(eng *Engine) { eng.logger = l }
}

// WithExtension registers an extension after the built-in ones.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) { eng.pendingExts = append(eng.pendingExts, e) }
}

// WithMiddleware appends a middleware after the default chain.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) { eng.mws = append(eng.mws, m) }
}

// WithBackoff overrides the backoff strategy built from the config.
func WithBackoff(b backoff.Strategy) Option {
	return func(eng *Engine) { eng.bo = b }
}

// WithSchedulerOptions passes options through to the scheduler.
func WithSchedulerOptions(opts ...scheduler.Option) Option {
	return func(eng *Engine) { eng.schedulerOpts = append(eng.schedulerOpts, opts...) }
}

// WithTracerProvider sets a custom OTel TracerProvider for the tracing
// middleware. The global provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) { eng.tracerProvider = tp }
}

// WithMeterProvider sets a custom OTel MeterProvider for the metrics
// middleware and extension. The global provider is used otherwise.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) { eng.meterProvider = mp }
}

// New validates cfg and builds an engine. Nothing runs until Start.
func New(cfg jobs.Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	eng := &Engine{
		cfg:      cfg,
		logger:   slog.Default(),
		registry: job.NewRegistry(),
	}
	for _, opt := range opts {
		opt(eng)
	}
	if eng.store == nil {
		eng.store = memory.New(memory.WithRetention(cfg.RetentionTTL))
	}
	if eng.bo == nil {
		eng.bo = backoff.FromConfig(cfg.Backoff)
	}

	logger := eng.logger

	// Built-in extensions first so user extensions observe the same order.
	eng.extensions = ext.NewRegistry(logger)
	if eng.meterProvider != nil {
		eng.extensions.Register(observability.NewMetricsWithMeter(eng.meterProvider.Meter(instrumentationName + "/observability")))
	} else {
		eng.extensions.Register(observability.NewMetrics())
	}
	eng.extensions.Register(observability.NewEvents(logger))
	eng.stats = observability.NewStats(cfg.HistoryCapacity)
	eng.extensions.Register(eng.stats)
	for _, e := range eng.pendingExts {
		eng.extensions.Register(e)
	}

	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(eng.tracerProvider.Tracer(instrumentationName))
	} else {
		tracingMw = mw.Tracing()
	}
	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(eng.meterProvider.Meter(instrumentationName))
	} else {
		metricsMw = mw.Metrics()
	}
	allMws := append([]mw.Middleware{
		mw.Recover(logger),
		tracingMw,
		metricsMw,
		mw.Logging(logger),
	}, eng.mws...)

	eng.cancels = cancellation.NewManager(cancellation.WithPollInterval(cfg.CancelPollInterval))
	eng.coordinator = cancellation.NewShutdownCoordinator(eng.cancels, logger)
	eng.history = history.New(cfg.HistoryCapacity)
	eng.agent = persistence.NewAgent(eng.store, logger,
		persistence.WithBuffer(cfg.PersistenceBuffer),
		persistence.WithWriteTimeout(cfg.PersistenceWriteTimeout),
	)

	dispatcherOpts := []dispatcher.Option{
		dispatcher.WithConcurrency(cfg.Concurrency),
		dispatcher.WithMaxQueueSize(cfg.MaxQueueSize),
		dispatcher.WithBackoff(eng.bo),
		dispatcher.WithMiddleware(allMws...),
		dispatcher.WithExtensions(eng.extensions),
		dispatcher.WithPersistence(eng.agent),
		dispatcher.WithHistory(eng.history),
		dispatcher.WithShutdownToken(eng.coordinator.Token()),
		dispatcher.WithLogger(logger),
	}
	if len(cfg.RateLimits) > 0 {
		dispatcherOpts = append(dispatcherOpts, dispatcher.WithLimiter(queue.NewLimiter(cfg.RateLimits)))
	}
	eng.dispatcher = dispatcher.New(eng.registry, eng.cancels, dispatcherOpts...)

	schedulerOpts := append([]scheduler.Option{
		scheduler.WithTickInterval(cfg.SchedulerTick),
		scheduler.WithEmitter(eng.extensions),
		scheduler.WithLogger(logger),
	}, eng.schedulerOpts...)
	eng.scheduler = scheduler.New(eng.dispatcher.Enqueue, schedulerOpts...)

	return eng, nil
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Start runs the persistence agent, the dispatcher and the scheduler.
func (eng *Engine) Start(ctx context.Context) error {
	if err := eng.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping store: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return eng.agent.Start(gctx) })
	g.Go(func() error { return eng.dispatcher.Start(gctx) })
	g.Go(func() error { return eng.scheduler.Start(gctx) })
	if err := g.Wait(); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	eng.logger.Info("job engine started",
		slog.Int("concurrency", eng.cfg.Concurrency),
		slog.Int("max_queue_size", eng.cfg.MaxQueueSize),
	)
	return nil
}

// Shutdown stops admission, cancels every live job and waits up to
// gracefulTimeout for them to finish. Later calls return the first
// result.
func (eng *Engine) Shutdown(ctx context.Context, gracefulTimeout time.Duration) cancellation.Result {
	eng.shutdownOnce.Do(func() {
		eng.extensions.EmitShutdown(ctx)
		eng.dispatcher.Drain()
		eng.result = eng.coordinator.Shutdown(ctx, gracefulTimeout)

		// Workers stuck in a handler that ignores cancellation are not
		// waited for again after a forced shutdown.
		stopCtx := ctx
		if !eng.result.Graceful {
			var cancel context.CancelFunc
			stopCtx, cancel = context.WithCancel(ctx)
			cancel()
		}

		g, gctx := errgroup.WithContext(stopCtx)
		g.Go(func() error { return eng.dispatcher.Stop(gctx) })
		g.Go(func() error { return eng.scheduler.Stop(gctx) })
		if err := g.Wait(); err != nil {
			eng.logger.Warn("agents did not stop cleanly", slog.String("error", err.Error()))
		}

		if err := eng.agent.Stop(ctx); err != nil {
			eng.logger.Warn("persistence agent stop error", slog.String("error", err.Error()))
		}
		if err := eng.store.Close(); err != nil {
			eng.logger.Warn("store close error", slog.String("error", err.Error()))
		}
		eng.logger.Info("job engine stopped", slog.String("result", eng.result.String()))
	})
	return eng.result
}

// ──────────────────────────────────────────────────
// Handlers and jobs
// ──────────────────────────────────────────────────

// Register binds a raw handler to jobType.
func (eng *Engine) Register(jobType string, h job.HandlerFunc) {
	eng.registry.Register(jobType, h)
}

// RegisterTyped binds a handler whose payload is JSON-decoded into T.
func RegisterTyped[T any](eng *Engine, jobType string, fn func(ctx context.Context, payload T) error) {
	job.RegisterTyped(eng.registry, jobType, fn)
}

// Enqueue admits a job with a raw payload. Options override the
// configured defaults.
func (eng *Engine) Enqueue(ctx context.Context, jobType string, payload []byte, opts ...job.Option) (id.JobID, error) {
	return eng.dispatcher.Enqueue(ctx, eng.definition(jobType, payload, opts))
}

// EnqueueTyped JSON-encodes payload and enqueues it.
func EnqueueTyped[T any](ctx context.Context, eng *Engine, jobType string, payload T, opts ...job.Option) (id.JobID, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return id.NilJob, fmt.Errorf("marshal payload for job %q: %w", jobType, err)
	}
	return eng.Enqueue(ctx, jobType, data, opts...)
}

func (eng *Engine) definition(jobType string, payload []byte, opts []job.Option) job.Definition {
	base := job.Options{
		MaxRetries: eng.cfg.DefaultMaxRetries,
		Timeout:    eng.cfg.DefaultTimeout,
	}
	return job.NewDefinition(jobType, payload, base, opts...)
}

// Cancel cancels a live job. It reports false for unknown or finished
// jobs.
func (eng *Engine) Cancel(jobID id.JobID) bool {
	return eng.dispatcher.Cancel(jobID)
}

// ──────────────────────────────────────────────────
// Schedules
// ──────────────────────────────────────────────────

// RegisterScheduled fires a job of jobType on spec. The type must already
// have a handler.
func (eng *Engine) RegisterScheduled(ctx context.Context, jobType string, payload []byte, spec schedule.Spec, opts ...job.Option) (id.ScheduleID, error) {
	if _, ok := eng.registry.Get(jobType); !ok {
		return id.ScheduleID{}, fmt.Errorf("%w: %q", jobs.ErrUnknownJobType, jobType)
	}
	return eng.scheduler.Register(ctx, eng.definition(jobType, payload, opts), spec)
}

// UnregisterScheduled removes a schedule.
func (eng *Engine) UnregisterScheduled(ctx context.Context, scheduleID id.ScheduleID) error {
	return eng.scheduler.Unregister(ctx, scheduleID)
}

// SetScheduledEnabled enables or disables a schedule.
func (eng *Engine) SetScheduledEnabled(ctx context.Context, scheduleID id.ScheduleID, enabled bool) error {
	return eng.scheduler.SetEnabled(ctx, scheduleID, enabled)
}

// ListScheduled returns every schedule ordered by next execution.
func (eng *Engine) ListScheduled(ctx context.Context) ([]scheduler.Entry, error) {
	return eng.scheduler.List(ctx)
}

// ──────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────

// JobInfo is the read model of a job returned by status queries.
type JobInfo struct {
	ID         id.JobID  `json:"id" yaml:"id"`
	Type       string    `json:"type" yaml:"type"`
	State      job.State `json:"state" yaml:"state"`
	Priority   int       `json:"priority" yaml:"priority"`
	Attempts   int       `json:"attempts" yaml:"attempts"`
	MaxRetries int       `json:"max_retries" yaml:"max_retries"`
	Error      string    `json:"error,omitempty" yaml:"error,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at" yaml:"enqueued_at"`
	StartedAt  time.Time `json:"started_at,omitzero" yaml:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitzero" yaml:"finished_at,omitempty"`
	DurationMS int64     `json:"duration_ms,omitempty" yaml:"duration_ms,omitempty"`
}

func liveInfo(j *job.QueuedJob) JobInfo {
	return JobInfo{
		ID:         j.ID,
		Type:       j.Type,
		State:      j.Status.State,
		Priority:   j.Priority,
		Attempts:   j.Attempt,
		MaxRetries: j.MaxRetries,
		Error:      j.Status.Error,
		EnqueuedAt: j.EnqueuedAt,
		StartedAt:  j.StartedAt,
	}
}

func historyInfo(r history.Record) JobInfo {
	return JobInfo{
		ID:         r.JobID,
		Type:       r.JobType,
		State:      job.State(r.Status),
		Attempts:   r.Attempts,
		Error:      r.Error,
		EnqueuedAt: r.EnqueuedAt,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		DurationMS: r.DurationMS,
	}
}

func recordInfo(r *persistence.Record) JobInfo {
	return JobInfo{
		ID:         r.ID,
		Type:       r.Type,
		State:      r.Status,
		Priority:   r.Priority,
		Attempts:   r.Attempts,
		MaxRetries: r.MaxRetries,
		Error:      r.Error,
		EnqueuedAt: r.EnqueuedAt,
		DurationMS: r.ExecutionTimeMS,
	}
}

// Status looks a job up among live jobs, then history, then the store.
// Unknown ids fail with jobs.ErrUnknownJob.
func (eng *Engine) Status(ctx context.Context, jobID id.JobID) (JobInfo, error) {
	if j, ok := eng.dispatcher.Lookup(jobID); ok {
		return liveInfo(j), nil
	}
	if r, ok := eng.history.Find(jobID); ok {
		return historyInfo(r), nil
	}
	r, err := eng.store.GetJob(ctx, jobID)
	if err != nil {
		return JobInfo{}, err
	}
	return recordInfo(r), nil
}

// ListJobs returns live and recently finished jobs in state (any state
// when empty), newest first. A non-positive limit returns all of them.
func (eng *Engine) ListJobs(state job.State, limit int) []JobInfo {
	var out []JobInfo
	if !state.Terminal() {
		for _, j := range eng.dispatcher.Snapshot() {
			if state == "" || j.Status.State == state {
				out = append(out, liveInfo(j))
			}
		}
	}
	if state == "" || state.Terminal() {
		for _, r := range eng.history.Recent(history.Status(state), 0) {
			out = append(out, historyInfo(r))
		}
	}

	slices.SortStableFunc(out, func(a, b JobInfo) int {
		return b.EnqueuedAt.Compare(a.EnqueuedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// HistoryPage returns one page of finished jobs, most recent first.
func (eng *Engine) HistoryPage(page, pageSize int, query string) history.Page {
	return eng.history.GetPage(page, pageSize, query)
}

// Stats returns the aggregate counters and execution times.
func (eng *Engine) Stats() observability.Snapshot {
	return eng.stats.Snapshot()
}

// ──────────────────────────────────────────────────
// Dead letters
// ──────────────────────────────────────────────────

// DeadLetters returns up to limit dead letters, newest first.
func (eng *Engine) DeadLetters(ctx context.Context, limit int) ([]*persistence.DeadLetter, error) {
	return eng.store.ListDeadLetters(ctx, limit)
}

// RetryDeadLetter enqueues a fresh job with the dead letter's definition
// and removes the dead letter. The new job starts with zero attempts.
func (eng *Engine) RetryDeadLetter(ctx context.Context, jobID id.JobID) (id.JobID, error) {
	dl, err := eng.store.GetDeadLetter(ctx, jobID)
	if err != nil {
		return id.NilJob, err
	}
	newID, err := eng.dispatcher.Enqueue(ctx, dl.Job.Definition)
	if err != nil {
		return id.NilJob, err
	}
	if err := eng.store.RemoveDeadLetter(ctx, jobID); err != nil {
		return newID, fmt.Errorf("remove dead letter %s: %w", jobID, err)
	}

	eng.logger.Info("dead letter retried",
		slog.String("job_id", jobID.String()),
		slog.String("new_job_id", newID.String()),
		slog.String("job_type", dl.Job.Type),
	)
	return newID, nil
}

// RetryAllDeadLetters retries every dead letter and reports how many were
// re-enqueued. It stops at the first admission error.
func (eng *Engine) RetryAllDeadLetters(ctx context.Context) (int, error) {
	dls, err := eng.store.ListDeadLetters(ctx, 0)
	if err != nil {
		return 0, err
	}
	retried := 0
	for _, dl := range dls {
		if _, err := eng.RetryDeadLetter(ctx, dl.Job.ID); err != nil {
			if errors.Is(err, jobs.ErrDeadLetterNotFound) {
				continue
			}
			return retried, err
		}
		retried++
	}
	return retried, nil
}

// ClearDeadLetters deletes every dead letter and reports how many there
// were.
func (eng *Engine) ClearDeadLetters(ctx context.Context) (int, error) {
	n, err := eng.store.ClearDeadLetters(ctx)
	if err != nil {
		return 0, err
	}
	eng.logger.Info("dead letters cleared", slog.Int("count", n))
	return n, nil
}

// ──────────────────────────────────────────────────
// Accessors
// ──────────────────────────────────────────────────

// Config returns the configuration the engine was built with.
func (eng *Engine) Config() jobs.Config { return eng.cfg }

// Registry returns the handler registry.
func (eng *Engine) Registry() *job.Registry { return eng.registry }

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Dispatcher returns the dispatcher.
func (eng *Engine) Dispatcher() *dispatcher.Dispatcher { return eng.dispatcher }

// Scheduler returns the scheduler.
func (eng *Engine) Scheduler() *scheduler.Scheduler { return eng.scheduler }

// Store returns the durable store.
func (eng *Engine) Store() persistence.Store { return eng.store }

// Persistence returns the persistence agent statistics.
func (eng *Engine) Persistence() persistence.Stats { return eng.agent.Stats() }
