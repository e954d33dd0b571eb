// Package job defines the job definition, its runtime wrapper, the status
// state machine and the handler registry.
//
// # State machine
//
//	pending → running → completed
//	pending → running → retrying → pending → running → ...
//	pending → running → failed (retries exhausted, moved to dead letter)
//	pending → cancelled
//	running → cancelled
//	retrying → cancelled
//
// Completed, failed and cancelled are terminal. [QueuedJob.Transition]
// rejects every other move with jobs.ErrInvalidTransition.
//
// # Handlers
//
// Handlers receive the payload as bytes. [RegisterTyped] wraps a typed
// handler in a JSON decoding closure:
//
//	job.RegisterTyped(registry, "send-email",
//	    func(ctx context.Context, in EmailInput) error {
//	        return mailer.Send(in.To, in.Subject, in.Body)
//	    },
//	)
package job
