package dispatcher

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/jobs/cancellation"
	"github.com/xraph/jobs/job"
	"github.com/xraph/jobs/persistence"
)

// workerLoop is run by each worker goroutine until the queue closes.
func (d *Dispatcher) workerLoop() {
	defer d.wg.Done()
	for {
		j, err := d.queue.Pop(context.Background())
		if err != nil {
			return
		}
		d.process(j)
	}
}

// process runs one attempt of j and settles its outcome.
func (d *Dispatcher) process(j *job.QueuedJob) {
	token := d.cancels.Register(j.ID)
	if token.IsCancelled() || d.shutdown.IsCancelled() {
		d.finishCancelled(j)
		return
	}

	if d.limiter != nil && d.limiter.Limited(j.Type) {
		ctx, release := token.Context(context.Background())
		err := d.limiter.Wait(ctx, j.Type)
		release()
		if err != nil {
			d.finishCancelled(j)
			return
		}
	}

	start := time.Now().UTC()
	snap, from, err := d.transition(j, job.Running(start))
	if err != nil {
		d.logger.Error("cannot start job",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
		return
	}

	ctx := context.Background()
	d.running.Add(1)
	d.extensions.EmitStatusChanged(ctx, snap, from)
	d.extensions.EmitJobStarted(ctx, snap)
	d.persist(persistence.PersistJob{Job: snap})

	execErr := d.execute(snap, token)
	elapsed := time.Since(start)
	d.running.Add(-1)

	switch {
	case execErr == nil:
		d.handleSuccess(j, elapsed)
	case token.IsCancelled():
		d.finishCancelled(j)
	default:
		d.handleFailure(j, execErr, token)
	}
}

// retryAfter waits out the backoff delay and puts j back in the queue,
// unless it is cancelled first.
func (d *Dispatcher) retryAfter(j *job.QueuedJob, delay time.Duration, token *cancellation.Token) {
	defer d.wg.Done()

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-token.Done():
		d.finishCancelled(j)
		return
	case <-d.shutdown.Done():
		d.finishCancelled(j)
		return
	}

	snap, from, err := d.transition(j, job.Pending())
	if err != nil {
		d.logger.Error("cannot requeue job",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := d.queue.PushForce(j); err != nil {
		d.finishCancelled(j)
		return
	}

	ctx := context.Background()
	d.extensions.EmitStatusChanged(ctx, snap, from)
	d.persist(persistence.PersistJob{Job: snap})
}
