package jobs

import "errors"

var (
	// Admission errors, returned synchronously to the caller.
	ErrQueueFull       = errors.New("jobs: queue full")
	ErrShuttingDown    = errors.New("jobs: shutting down")
	ErrUnknownJobType  = errors.New("jobs: no handler registered for job type")
	ErrInvalidSchedule = errors.New("jobs: invalid schedule")

	// Execution errors. They only ever reach history and status queries.
	ErrExecutionFailed = errors.New("jobs: execution failed")
	ErrTimeout         = errors.New("jobs: execution timed out")
	ErrCancelled       = errors.New("jobs: cancelled")

	// Store errors. Logged by the persistence agent, never propagated.
	ErrPersistence = errors.New("jobs: persistence error")

	// Not found errors.
	ErrUnknownJob         = errors.New("jobs: unknown job")
	ErrScheduleNotFound   = errors.New("jobs: scheduled entry not found")
	ErrDeadLetterNotFound = errors.New("jobs: dead letter entry not found")

	// State errors.
	ErrInvalidTransition = errors.New("jobs: invalid status transition")
	ErrInvalidConfig     = errors.New("jobs: invalid config")
)
