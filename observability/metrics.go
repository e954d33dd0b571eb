package observability

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/jobs"
	"github.com/xraph/jobs/ext"
	"github.com/xraph/jobs/id"
	"github.com/xraph/jobs/job"
)

const meterName = "github.com/xraph/jobs"

// Compile-time interface checks.
var (
	_ ext.Extension       = (*Metrics)(nil)
	_ ext.JobEnqueued     = (*Metrics)(nil)
	_ ext.JobRejected     = (*Metrics)(nil)
	_ ext.JobStarted      = (*Metrics)(nil)
	_ ext.JobRetrying     = (*Metrics)(nil)
	_ ext.JobCompleted    = (*Metrics)(nil)
	_ ext.JobFailed       = (*Metrics)(nil)
	_ ext.JobDeadLettered = (*Metrics)(nil)
	_ ext.JobCancelled    = (*Metrics)(nil)
	_ ext.StatusChanged   = (*Metrics)(nil)
	_ ext.ScheduleFired   = (*Metrics)(nil)
)

// Metrics records lifecycle metrics through an OpenTelemetry meter. All
// job instruments carry a job_type attribute; jobs.rejected also carries
// reason.
type Metrics struct {
	enqueued      metric.Int64Counter
	rejected      metric.Int64Counter
	started       metric.Int64Counter
	completed     metric.Int64Counter
	failed        metric.Int64Counter
	retried       metric.Int64Counter
	deadLettered  metric.Int64Counter
	cancelled     metric.Int64Counter
	scheduleFired metric.Int64Counter

	duration  metric.Float64Histogram
	queueWait metric.Float64Histogram
	depth     metric.Int64UpDownCounter
}

// NewMetrics creates a Metrics extension on the global MeterProvider.
func NewMetrics() *Metrics {
	return NewMetricsWithMeter(otel.Meter(meterName))
}

// NewMetricsWithMeter creates a Metrics extension on meter. Instrument
// creation errors fall back to noop instruments.
func NewMetricsWithMeter(meter metric.Meter) *Metrics {
	counter := func(name, desc string) metric.Int64Counter {
		c, _ := meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit("{job}")) //nolint:errcheck // noop fallback
		return c
	}
	seconds := func(name, desc string) metric.Float64Histogram {
		h, _ := meter.Float64Histogram(name, metric.WithDescription(desc), metric.WithUnit("s")) //nolint:errcheck // noop fallback
		return h
	}
	depth, _ := meter.Int64UpDownCounter("jobs.queue.depth", //nolint:errcheck // noop fallback
		metric.WithDescription("Jobs waiting in the pending queue"),
		metric.WithUnit("{job}"),
	)

	return &Metrics{
		enqueued:      counter("jobs.enqueued", "Jobs admitted to the queue"),
		rejected:      counter("jobs.rejected", "Enqueue calls refused"),
		started:       counter("jobs.started", "Attempts started by workers"),
		completed:     counter("jobs.completed", "Jobs completed successfully"),
		failed:        counter("jobs.failed", "Jobs that exhausted their retries"),
		retried:       counter("jobs.retried", "Failed attempts scheduled for retry"),
		deadLettered:  counter("jobs.dead_lettered", "Jobs moved to the dead letter list"),
		cancelled:     counter("jobs.cancelled", "Jobs cancelled"),
		scheduleFired: counter("jobs.schedule.fired", "Jobs materialized by the scheduler"),
		duration:      seconds("jobs.execution.duration", "Execution time of successful jobs"),
		queueWait:     seconds("jobs.queue.wait", "Time between enqueue and first start"),
		depth:         depth,
	}
}

// Name implements ext.Extension.
func (m *Metrics) Name() string { return "observability-metrics" }

func typeAttr(jobType string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("job_type", jobType))
}

// OnJobEnqueued implements ext.JobEnqueued.
func (m *Metrics) OnJobEnqueued(ctx context.Context, j *job.QueuedJob) error {
	m.enqueued.Add(ctx, 1, typeAttr(j.Type))
	return nil
}

// OnJobRejected implements ext.JobRejected.
func (m *Metrics) OnJobRejected(ctx context.Context, def job.Definition, reason error) error {
	m.rejected.Add(ctx, 1, metric.WithAttributes(
		attribute.String("job_type", def.Type),
		attribute.String("reason", rejectReason(reason)),
	))
	return nil
}

// OnJobStarted implements ext.JobStarted.
func (m *Metrics) OnJobStarted(ctx context.Context, j *job.QueuedJob) error {
	m.started.Add(ctx, 1, typeAttr(j.Type))
	if j.Attempt == 1 && !j.StartedAt.IsZero() {
		m.queueWait.Record(ctx, j.StartedAt.Sub(j.EnqueuedAt).Seconds(), typeAttr(j.Type))
	}
	return nil
}

// OnJobRetrying implements ext.JobRetrying.
func (m *Metrics) OnJobRetrying(ctx context.Context, j *job.QueuedJob, _ time.Time, _ error) error {
	m.retried.Add(ctx, 1, typeAttr(j.Type))
	return nil
}

// OnJobCompleted implements ext.JobCompleted.
func (m *Metrics) OnJobCompleted(ctx context.Context, j *job.QueuedJob, elapsed time.Duration) error {
	m.completed.Add(ctx, 1, typeAttr(j.Type))
	m.duration.Record(ctx, elapsed.Seconds(), typeAttr(j.Type))
	return nil
}

// OnJobFailed implements ext.JobFailed.
func (m *Metrics) OnJobFailed(ctx context.Context, j *job.QueuedJob, _ error) error {
	m.failed.Add(ctx, 1, typeAttr(j.Type))
	return nil
}

// OnJobDeadLettered implements ext.JobDeadLettered.
func (m *Metrics) OnJobDeadLettered(ctx context.Context, j *job.QueuedJob, _ error) error {
	m.deadLettered.Add(ctx, 1, typeAttr(j.Type))
	return nil
}

// OnJobCancelled implements ext.JobCancelled.
func (m *Metrics) OnJobCancelled(ctx context.Context, j *job.QueuedJob) error {
	m.cancelled.Add(ctx, 1, typeAttr(j.Type))
	return nil
}

// OnStatusChanged implements ext.StatusChanged. It maintains the queue
// depth gauge: entering pending adds one, leaving it removes one.
func (m *Metrics) OnStatusChanged(ctx context.Context, j *job.QueuedJob, from job.State) error {
	if j.Status.State == job.StatePending {
		m.depth.Add(ctx, 1, typeAttr(j.Type))
	}
	if from == job.StatePending {
		m.depth.Add(ctx, -1, typeAttr(j.Type))
	}
	return nil
}

// OnScheduleFired implements ext.ScheduleFired.
func (m *Metrics) OnScheduleFired(ctx context.Context, _ id.ScheduleID, jobType string, _ id.JobID) error {
	m.scheduleFired.Add(ctx, 1, typeAttr(jobType))
	return nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, jobs.ErrQueueFull):
		return "queue_full"
	case errors.Is(err, jobs.ErrShuttingDown):
		return "shutting_down"
	case errors.Is(err, jobs.ErrUnknownJobType):
		return "unknown_type"
	default:
		return "other"
	}
}
