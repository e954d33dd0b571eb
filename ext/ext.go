package ext

import (
	"context"
	"time"

	"github.com/xraph/jobs/id"
	"github.com/xraph/jobs/job"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// Hooks receive snapshots; mutating the job has no effect on the engine.

// ──────────────────────────────────────────────────
// Admission hooks
// ──────────────────────────────────────────────────

// JobEnqueued is called after a job is admitted to the queue.
type JobEnqueued interface {
	OnJobEnqueued(ctx context.Context, j *job.QueuedJob) error
}

// JobRejected is called when an enqueue is refused.
type JobRejected interface {
	OnJobRejected(ctx context.Context, def job.Definition, reason error) error
}

// ──────────────────────────────────────────────────
// Execution hooks
// ──────────────────────────────────────────────────

// JobStarted is called when a worker begins an attempt.
type JobStarted interface {
	OnJobStarted(ctx context.Context, j *job.QueuedJob) error
}

// JobRetrying is called when an attempt fails and another is scheduled.
type JobRetrying interface {
	OnJobRetrying(ctx context.Context, j *job.QueuedJob, retryAt time.Time, err error) error
}

// JobCompleted is called after a job finishes successfully.
type JobCompleted interface {
	OnJobCompleted(ctx context.Context, j *job.QueuedJob, elapsed time.Duration) error
}

// JobFailed is called when a job fails terminally.
type JobFailed interface {
	OnJobFailed(ctx context.Context, j *job.QueuedJob, err error) error
}

// JobDeadLettered is called when a failed job is moved to the dead
// letter list.
type JobDeadLettered interface {
	OnJobDeadLettered(ctx context.Context, j *job.QueuedJob, err error) error
}

// JobCancelled is called when a pending, running or retry-waiting job is
// cancelled.
type JobCancelled interface {
	OnJobCancelled(ctx context.Context, j *job.QueuedJob) error
}

// StatusChanged is called on every transition. from is empty when the job
// was just admitted.
type StatusChanged interface {
	OnStatusChanged(ctx context.Context, j *job.QueuedJob, from job.State) error
}

// ──────────────────────────────────────────────────
// Other hooks
// ──────────────────────────────────────────────────

// ScheduleFired is called when a scheduler entry materializes a job.
type ScheduleFired interface {
	OnScheduleFired(ctx context.Context, scheduleID id.ScheduleID, jobType string, jobID id.JobID) error
}

// Shutdown is called when the engine begins shutting down.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
