package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/jobs"
	"github.com/xraph/jobs/cancellation"
	"github.com/xraph/jobs/history"
	"github.com/xraph/jobs/job"
	"github.com/xraph/jobs/persistence"
)

// execute runs snap through the middleware chain and its handler. The
// handler's context is cancelled with cause jobs.ErrCancelled when token
// fires. The worker waits at most snap.Timeout; a handler still running
// then is abandoned and the attempt fails with jobs.ErrTimeout.
func (d *Dispatcher) execute(snap *job.QueuedJob, token *cancellation.Token) error {
	handler, ok := d.registry.Get(snap.Type)
	if !ok {
		return fmt.Errorf("%w: %q", jobs.ErrUnknownJobType, snap.Type)
	}

	ctx, release := token.Context(context.Background())
	defer release()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in job %s: %v", snap.Type, r)
			}
		}()
		done <- d.mw(ctx, snap, func(ctx context.Context) error {
			return handler(ctx, snap.Payload)
		})
	}()

	var deadline <-chan time.Time
	if snap.Timeout > 0 {
		timer := time.NewTimer(snap.Timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case err := <-done:
		if err == nil || errors.Is(err, jobs.ErrCancelled) {
			return err
		}
		return fmt.Errorf("%w: %w", jobs.ErrExecutionFailed, err)
	case <-deadline:
		return fmt.Errorf("%w after %s", jobs.ErrTimeout, snap.Timeout)
	}
}

// handleSuccess marks j completed.
func (d *Dispatcher) handleSuccess(j *job.QueuedJob, elapsed time.Duration) {
	now := time.Now().UTC()
	snap, from, err := d.transition(j, job.Completed(now))
	if err != nil {
		d.logger.Error("cannot complete job",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
		return
	}

	ctx := context.Background()
	d.record(snap, history.StatusCompleted)
	d.persist(persistence.MarkCompleted{ID: snap.ID, At: now, ExecutionTime: elapsed})
	d.extensions.EmitStatusChanged(ctx, snap, from)
	d.extensions.EmitJobCompleted(ctx, snap, elapsed)
	d.release(snap.ID)
}

// handleFailure either schedules a retry or dead letters j.
func (d *Dispatcher) handleFailure(j *job.QueuedJob, jobErr error, token *cancellation.Token) {
	d.mu.RLock()
	canRetry, attempt := j.CanRetry(), j.Attempt
	d.mu.RUnlock()

	if canRetry && !d.shutdown.IsCancelled() {
		d.scheduleRetry(j, attempt, jobErr, token)
		return
	}
	d.sendToDeadLetter(j, attempt, jobErr)
}

// scheduleRetry moves j to retrying and starts the backoff wait.
func (d *Dispatcher) scheduleRetry(j *job.QueuedJob, attempt int, jobErr error, token *cancellation.Token) {
	now := time.Now().UTC()
	delay := d.backoff.Delay(attempt)
	retryAt := now.Add(delay)

	snap, from, err := d.transition(j, job.Retrying(attempt, now, retryAt, jobErr.Error()))
	if err != nil {
		d.logger.Error("cannot retry job",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
		return
	}

	ctx := context.Background()
	d.persist(persistence.PersistJob{Job: snap})
	d.extensions.EmitStatusChanged(ctx, snap, from)
	d.extensions.EmitJobRetrying(ctx, snap, retryAt, jobErr)

	d.logger.Info("job scheduled for retry",
		slog.String("job_id", snap.ID.String()),
		slog.String("job_type", snap.Type),
		slog.Int("attempt", attempt),
		slog.Int("max_retries", snap.MaxRetries),
		slog.Duration("delay", delay),
	)

	d.wg.Add(1)
	go d.retryAfter(j, delay, token)
}

// sendToDeadLetter marks j failed and moves it to the dead letter list
// with its final error.
func (d *Dispatcher) sendToDeadLetter(j *job.QueuedJob, attempts int, jobErr error) {
	now := time.Now().UTC()
	snap, from, err := d.transition(j, job.Failed(now, attempts, jobErr.Error()))
	if err != nil {
		d.logger.Error("cannot fail job",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
		return
	}

	ctx := context.Background()
	d.record(snap, history.StatusFailed)
	d.persist(persistence.MarkFailed{ID: snap.ID, At: now, Attempts: attempts, Error: jobErr.Error()})
	d.persist(persistence.MoveToDeadLetter{Job: snap, Error: jobErr.Error(), At: now})
	d.extensions.EmitStatusChanged(ctx, snap, from)
	d.extensions.EmitJobFailed(ctx, snap, jobErr)
	d.extensions.EmitJobDeadLettered(ctx, snap, jobErr)

	d.logger.Warn("job moved to dead letter list after exhausting retries",
		slog.String("job_id", snap.ID.String()),
		slog.String("job_type", snap.Type),
		slog.Int("attempts", attempts),
		slog.String("error", jobErr.Error()),
	)
	d.release(snap.ID)
}

// finishCancelled marks j cancelled. Jobs that already finished are left
// alone.
func (d *Dispatcher) finishCancelled(j *job.QueuedJob) {
	now := time.Now().UTC()
	snap, from, err := d.transition(j, job.Cancelled(now))
	if err != nil {
		d.logger.Debug("job already finished, ignoring cancellation",
			slog.String("job_id", j.ID.String()),
		)
		return
	}

	ctx := context.Background()
	d.record(snap, history.StatusCancelled)
	d.persist(persistence.MarkCancelled{ID: snap.ID, At: now})
	d.extensions.EmitStatusChanged(ctx, snap, from)
	d.extensions.EmitJobCancelled(ctx, snap)

	d.logger.Info("job cancelled",
		slog.String("job_id", snap.ID.String()),
		slog.String("job_type", snap.Type),
		slog.String("from", string(from)),
	)
	d.release(snap.ID)
}
