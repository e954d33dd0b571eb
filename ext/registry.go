package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/jobs/id"
	"github.com/xraph/jobs/job"
)

// entry pairs a hook with the extension name captured at registration.
type entry[H any] struct {
	name string
	hook H
}

// Registry holds registered extensions and fans lifecycle events out to
// them. Hooks are cached by interface at registration time. Register all
// extensions before the engine starts; emits may then run concurrently.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	jobEnqueued     []entry[JobEnqueued]
	jobRejected     []entry[JobRejected]
	jobStarted      []entry[JobStarted]
	jobRetrying     []entry[JobRetrying]
	jobCompleted    []entry[JobCompleted]
	jobFailed       []entry[JobFailed]
	jobDeadLettered []entry[JobDeadLettered]
	jobCancelled    []entry[JobCancelled]
	statusChanged   []entry[StatusChanged]
	scheduleFired   []entry[ScheduleFired]
	shutdown        []entry[Shutdown]
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

func cache[H any](list *[]entry[H], name string, e Extension) {
	if h, ok := e.(H); ok {
		*list = append(*list, entry[H]{name: name, hook: h})
	}
}

// Register adds an extension. Extensions are notified in registration
// order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	cache(&r.jobEnqueued, name, e)
	cache(&r.jobRejected, name, e)
	cache(&r.jobStarted, name, e)
	cache(&r.jobRetrying, name, e)
	cache(&r.jobCompleted, name, e)
	cache(&r.jobFailed, name, e)
	cache(&r.jobDeadLettered, name, e)
	cache(&r.jobCancelled, name, e)
	cache(&r.statusChanged, name, e)
	cache(&r.scheduleFired, name, e)
	cache(&r.shutdown, name, e)
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// ──────────────────────────────────────────────────
// Emitters
// ──────────────────────────────────────────────────

// EmitJobEnqueued notifies all extensions that implement JobEnqueued.
func (r *Registry) EmitJobEnqueued(ctx context.Context, j *job.QueuedJob) {
	for _, e := range r.jobEnqueued {
		r.check("OnJobEnqueued", e.name, e.hook.OnJobEnqueued(ctx, j))
	}
}

// EmitJobRejected notifies all extensions that implement JobRejected.
func (r *Registry) EmitJobRejected(ctx context.Context, def job.Definition, reason error) {
	for _, e := range r.jobRejected {
		r.check("OnJobRejected", e.name, e.hook.OnJobRejected(ctx, def, reason))
	}
}

// EmitJobStarted notifies all extensions that implement JobStarted.
func (r *Registry) EmitJobStarted(ctx context.Context, j *job.QueuedJob) {
	for _, e := range r.jobStarted {
		r.check("OnJobStarted", e.name, e.hook.OnJobStarted(ctx, j))
	}
}

// EmitJobRetrying notifies all extensions that implement JobRetrying.
func (r *Registry) EmitJobRetrying(ctx context.Context, j *job.QueuedJob, retryAt time.Time, jobErr error) {
	for _, e := range r.jobRetrying {
		r.check("OnJobRetrying", e.name, e.hook.OnJobRetrying(ctx, j, retryAt, jobErr))
	}
}

// EmitJobCompleted notifies all extensions that implement JobCompleted.
func (r *Registry) EmitJobCompleted(ctx context.Context, j *job.QueuedJob, elapsed time.Duration) {
	for _, e := range r.jobCompleted {
		r.check("OnJobCompleted", e.name, e.hook.OnJobCompleted(ctx, j, elapsed))
	}
}

// EmitJobFailed notifies all extensions that implement JobFailed.
func (r *Registry) EmitJobFailed(ctx context.Context, j *job.QueuedJob, jobErr error) {
	for _, e := range r.jobFailed {
		r.check("OnJobFailed", e.name, e.hook.OnJobFailed(ctx, j, jobErr))
	}
}

// EmitJobDeadLettered notifies all extensions that implement JobDeadLettered.
func (r *Registry) EmitJobDeadLettered(ctx context.Context, j *job.QueuedJob, jobErr error) {
	for _, e := range r.jobDeadLettered {
		r.check("OnJobDeadLettered", e.name, e.hook.OnJobDeadLettered(ctx, j, jobErr))
	}
}

// EmitJobCancelled notifies all extensions that implement JobCancelled.
func (r *Registry) EmitJobCancelled(ctx context.Context, j *job.QueuedJob) {
	for _, e := range r.jobCancelled {
		r.check("OnJobCancelled", e.name, e.hook.OnJobCancelled(ctx, j))
	}
}

// EmitStatusChanged notifies all extensions that implement StatusChanged.
func (r *Registry) EmitStatusChanged(ctx context.Context, j *job.QueuedJob, from job.State) {
	for _, e := range r.statusChanged {
		r.check("OnStatusChanged", e.name, e.hook.OnStatusChanged(ctx, j, from))
	}
}

// EmitScheduleFired notifies all extensions that implement ScheduleFired.
func (r *Registry) EmitScheduleFired(ctx context.Context, scheduleID id.ScheduleID, jobType string, jobID id.JobID) {
	for _, e := range r.scheduleFired {
		r.check("OnScheduleFired", e.name, e.hook.OnScheduleFired(ctx, scheduleID, jobType, jobID))
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		r.check("OnShutdown", e.name, e.hook.OnShutdown(ctx))
	}
}

// check logs a warning when a hook returned an error. Hook errors never
// reach the job pipeline.
func (r *Registry) check(hook, extName string, err error) {
	if err == nil {
		return
	}
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
