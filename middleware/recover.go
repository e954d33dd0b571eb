package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/xraph/jobs/job"
)

// Recover returns middleware that turns a handler panic into an error and
// logs it with a stack trace. The attempt then fails like any other error
// and is subject to the job's retry policy.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.QueuedJob, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("job handler panicked",
					slog.String("job_type", j.Type),
					slog.String("job_id", j.ID.String()),
					slog.Int("attempt", j.Attempt),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				)
				retErr = fmt.Errorf("panic in job %s: %v", j.Type, r)
			}
		}()
		return next(ctx)
	}
}
