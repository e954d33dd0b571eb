package observability

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/jobs/ext"
	"github.com/xraph/jobs/id"
	"github.com/xraph/jobs/job"
)

var (
	_ ext.Extension       = (*Events)(nil)
	_ ext.JobEnqueued     = (*Events)(nil)
	_ ext.JobRejected     = (*Events)(nil)
	_ ext.JobStarted      = (*Events)(nil)
	_ ext.JobRetrying     = (*Events)(nil)
	_ ext.JobCompleted    = (*Events)(nil)
	_ ext.JobFailed       = (*Events)(nil)
	_ ext.JobDeadLettered = (*Events)(nil)
	_ ext.JobCancelled    = (*Events)(nil)
	_ ext.ScheduleFired   = (*Events)(nil)
	_ ext.Shutdown        = (*Events)(nil)
)

// Events writes one structured log record per lifecycle event. Every
// record carries an event attribute such as "job.enqueued".
type Events struct {
	logger *slog.Logger
}

// NewEvents creates an Events extension.
func NewEvents(logger *slog.Logger) *Events {
	if logger == nil {
		logger = slog.Default()
	}
	return &Events{logger: logger}
}

// Name implements ext.Extension.
func (e *Events) Name() string { return "observability-events" }

func (e *Events) log(ctx context.Context, level slog.Level, event string, j *job.QueuedJob, attrs ...slog.Attr) {
	base := []slog.Attr{
		slog.String("event", event),
		slog.String("job_id", j.ID.String()),
		slog.String("job_type", j.Type),
	}
	e.logger.LogAttrs(ctx, level, "job event", append(base, attrs...)...)
}

func (e *Events) OnJobEnqueued(ctx context.Context, j *job.QueuedJob) error {
	e.log(ctx, slog.LevelInfo, "job.enqueued", j, slog.Int("priority", j.Priority))
	return nil
}

func (e *Events) OnJobRejected(ctx context.Context, def job.Definition, reason error) error {
	e.logger.LogAttrs(ctx, slog.LevelWarn, "job event",
		slog.String("event", "job.rejected"),
		slog.String("job_type", def.Type),
		slog.String("error", reason.Error()),
	)
	return nil
}

func (e *Events) OnJobStarted(ctx context.Context, j *job.QueuedJob) error {
	e.log(ctx, slog.LevelDebug, "job.started", j, slog.Int("attempt", j.Attempt))
	return nil
}

func (e *Events) OnJobRetrying(ctx context.Context, j *job.QueuedJob, retryAt time.Time, err error) error {
	e.log(ctx, slog.LevelWarn, "job.retrying", j,
		slog.Int("attempt", j.Attempt),
		slog.Time("retry_at", retryAt),
		slog.String("error", err.Error()),
	)
	return nil
}

func (e *Events) OnJobCompleted(ctx context.Context, j *job.QueuedJob, elapsed time.Duration) error {
	e.log(ctx, slog.LevelInfo, "job.completed", j,
		slog.Int("attempt", j.Attempt),
		slog.Duration("elapsed", elapsed),
	)
	return nil
}

func (e *Events) OnJobFailed(ctx context.Context, j *job.QueuedJob, err error) error {
	e.log(ctx, slog.LevelError, "job.failed", j,
		slog.Int("attempts", j.Attempt),
		slog.String("error", err.Error()),
	)
	return nil
}

func (e *Events) OnJobDeadLettered(ctx context.Context, j *job.QueuedJob, err error) error {
	e.log(ctx, slog.LevelWarn, "job.dead_lettered", j, slog.String("error", err.Error()))
	return nil
}

func (e *Events) OnJobCancelled(ctx context.Context, j *job.QueuedJob) error {
	e.log(ctx, slog.LevelInfo, "job.cancelled", j)
	return nil
}

func (e *Events) OnScheduleFired(ctx context.Context, scheduleID id.ScheduleID, jobType string, jobID id.JobID) error {
	e.logger.LogAttrs(ctx, slog.LevelInfo, "job event",
		slog.String("event", "schedule.fired"),
		slog.String("schedule_id", scheduleID.String()),
		slog.String("job_type", jobType),
		slog.String("job_id", jobID.String()),
	)
	return nil
}

func (e *Events) OnShutdown(ctx context.Context) error {
	e.logger.LogAttrs(ctx, slog.LevelInfo, "job event", slog.String("event", "engine.shutdown"))
	return nil
}
