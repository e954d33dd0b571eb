package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/jobs/job"
)

// Logging returns middleware that logs the start and outcome of every
// attempt.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.QueuedJob, next Handler) error {
		attrs := []any{
			slog.String("job_type", j.Type),
			slog.String("job_id", j.ID.String()),
			slog.Int("attempt", j.Attempt),
		}
		logger.Debug("job attempt started", attrs...)

		start := time.Now()
		err := next(ctx)
		attrs = append(attrs, slog.Duration("elapsed", time.Since(start)))

		if err != nil {
			logger.Warn("job attempt failed", append(attrs, slog.String("error", err.Error()))...)
		} else {
			logger.Info("job attempt succeeded", attrs...)
		}
		return err
	}
}
