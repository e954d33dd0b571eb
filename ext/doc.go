// Package ext defines the extension system for the job engine.
//
// Extensions are notified of job lifecycle events and can react to them,
// for example by recording metrics or writing structured events. Each
// hook is a separate interface so extensions opt in only to the events
// they care about.
//
// # Implementing an Extension
//
//	type MyExtension struct{}
//
//	func (e *MyExtension) Name() string { return "my-extension" }
//
//	func (e *MyExtension) OnJobCompleted(ctx context.Context, j *job.QueuedJob, elapsed time.Duration) error {
//	    log.Printf("job %s completed in %s", j.ID, elapsed)
//	    return nil
//	}
//
// # Hooks
//
//   - [JobEnqueued]: job was admitted to the queue
//   - [JobRejected]: enqueue was refused (queue full, shutting down, ...)
//   - [JobStarted]: a worker picked the job up
//   - [JobRetrying]: an attempt failed and the job will run again
//   - [JobCompleted]: the handler succeeded
//   - [JobFailed]: the job exhausted its retries
//   - [JobDeadLettered]: the failed job was handed to the dead letter list
//   - [JobCancelled]: the job was cancelled
//   - [StatusChanged]: any status transition, including admission
//   - [ScheduleFired]: a scheduler entry materialized a job
//   - [Shutdown]: the engine is shutting down
//
// Hook errors are logged by the [Registry] and never propagated.
package ext
