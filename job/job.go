package job

import (
	"fmt"
	"time"

	"github.com/xraph/jobs"
	"github.com/xraph/jobs/id"
)

// State names the variant of a Status.
type State string

const (
	// StatePending means the job is waiting in the queue for a worker.
	StatePending State = "pending"
	// StateRunning means a worker is executing the job.
	StateRunning State = "running"
	// StateRetrying means an attempt failed and the job is waiting out its
	// backoff before returning to pending.
	StateRetrying State = "retrying"
	// StateCompleted means the job finished successfully.
	StateCompleted State = "completed"
	// StateFailed means the job exhausted its retries.
	StateFailed State = "failed"
	// StateCancelled means the job was cancelled before it could finish.
	StateCancelled State = "cancelled"
)

// ParseState converts a user supplied state name. The empty string is
// accepted and returned as-is to mean "any state".
func ParseState(s string) (State, error) {
	switch st := State(s); st {
	case "", StatePending, StateRunning, StateRetrying, StateCompleted, StateFailed, StateCancelled:
		return st, nil
	default:
		return "", fmt.Errorf("job: unknown state %q", s)
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

var transitions = map[State][]State{
	StatePending:  {StateRunning, StateCancelled},
	StateRunning:  {StateCompleted, StateFailed, StateRetrying, StateCancelled},
	StateRetrying: {StatePending, StateCancelled},
}

// CanTransition reports whether a job may move from one state to another.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Status is the tagged lifecycle variant of a job. At holds the variant's
// timestamp: started_at for running, completed_at, failed_at (also for
// retrying) and cancelled_at. Pending carries no timestamp.
type Status struct {
	State    State      `json:"state"`
	At       time.Time  `json:"at,omitzero"`
	Attempts int        `json:"attempts,omitempty"`
	Error    string     `json:"error,omitempty"`
	RetryAt  *time.Time `json:"retry_at,omitempty"`
}

// Pending returns the initial status.
func Pending() Status { return Status{State: StatePending} }

// Running returns the status of a job a worker picked up at startedAt.
func Running(startedAt time.Time) Status {
	return Status{State: StateRunning, At: startedAt}
}

// Completed returns the terminal success status.
func Completed(completedAt time.Time) Status {
	return Status{State: StateCompleted, At: completedAt}
}

// Failed returns the terminal failure status.
func Failed(failedAt time.Time, attempts int, errMsg string) Status {
	return Status{State: StateFailed, At: failedAt, Attempts: attempts, Error: errMsg}
}

// Retrying returns the status of a job that failed attempt and will be
// retried at retryAt.
func Retrying(attempt int, failedAt, retryAt time.Time, errMsg string) Status {
	return Status{State: StateRetrying, At: failedAt, Attempts: attempt, Error: errMsg, RetryAt: &retryAt}
}

// Cancelled returns the terminal cancellation status.
func Cancelled(cancelledAt time.Time) Status {
	return Status{State: StateCancelled, At: cancelledAt}
}

// String renders the status for logs and the CLI.
func (s Status) String() string {
	switch s.State {
	case StateFailed:
		return fmt.Sprintf("failed after %d attempts: %s", s.Attempts, s.Error)
	case StateRetrying:
		if s.RetryAt != nil {
			return fmt.Sprintf("retrying (attempt %d) at %s: %s", s.Attempts, s.RetryAt.Format(time.RFC3339), s.Error)
		}
		return fmt.Sprintf("retrying (attempt %d): %s", s.Attempts, s.Error)
	default:
		return string(s.State)
	}
}

// QueuedJob is a Definition plus the runtime state the dispatcher tracks.
type QueuedJob struct {
	ID id.JobID `json:"id"`
	Definition

	// Attempt counts the executions started so far.
	Attempt    int       `json:"attempt"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	Status     Status    `json:"status"`
}

// New creates a pending job for def.
func New(jobID id.JobID, def Definition, now time.Time) *QueuedJob {
	return &QueuedJob{
		ID:         jobID,
		Definition: def,
		EnqueuedAt: now,
		Status:     Pending(),
	}
}

// Transition moves the job to next, rejecting moves the state machine
// does not allow.
func (j *QueuedJob) Transition(next Status) error {
	if !CanTransition(j.Status.State, next.State) {
		return fmt.Errorf("%w: %s -> %s", jobs.ErrInvalidTransition, j.Status.State, next.State)
	}
	if next.State == StateRunning {
		j.Attempt++
		j.StartedAt = next.At
	}
	j.Status = next
	return nil
}

// CanRetry reports whether another execution is allowed after a failed
// attempt. A job with MaxRetries n runs at most n+1 times.
func (j *QueuedJob) CanRetry() bool {
	return j.Attempt <= j.MaxRetries
}

// Snapshot returns a deep copy safe to hand to another goroutine.
func (j *QueuedJob) Snapshot() *QueuedJob {
	cp := *j
	if j.Payload != nil {
		cp.Payload = append([]byte(nil), j.Payload...)
	}
	if j.Status.RetryAt != nil {
		at := *j.Status.RetryAt
		cp.Status.RetryAt = &at
	}
	return &cp
}
