package middleware

import (
	"context"

	"github.com/xraph/jobs/job"
)

// Handler is the terminal function that runs the job's handler.
type Handler func(ctx context.Context) error

// Middleware wraps a Handler with cross-cutting logic. It MUST call next
// to continue the chain unless it is deliberately short-circuiting.
type Middleware func(ctx context.Context, j *job.QueuedJob, next Handler) error

// Chain composes middleware into one. Chain(a, b) executes as
// a → b → handler.
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, j *job.QueuedJob, next Handler) error {
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw, inner := mws[i], h
			h = func(ctx context.Context) error {
				return mw(ctx, j, inner)
			}
		}
		return h(ctx)
	}
}
