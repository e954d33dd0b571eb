package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/jobs/job"
)

// instrumentationName is the scope name for spans and meters.
const instrumentationName = "github.com/xraph/jobs"

// Tracing returns middleware that wraps each attempt in a span using the
// global TracerProvider. Without one configured it is a pass-through.
//
// Span attributes: jobs.job.id, jobs.job.type, jobs.job.priority,
// jobs.job.attempt, jobs.job.max_retries.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(instrumentationName))
}

// TracingWithTracer returns tracing middleware using the provided tracer.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, j *job.QueuedJob, next Handler) error {
		ctx, span := tracer.Start(ctx, "jobs.execute",
			trace.WithAttributes(
				attribute.String("jobs.job.id", j.ID.String()),
				attribute.String("jobs.job.type", j.Type),
				attribute.Int("jobs.job.priority", j.Priority),
				attribute.Int("jobs.job.attempt", j.Attempt),
				attribute.Int("jobs.job.max_retries", j.MaxRetries),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		return err
	}
}
