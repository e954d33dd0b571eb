package persistence

import (
	"context"
	"time"

	"github.com/xraph/jobs/id"
	"github.com/xraph/jobs/job"
)

// Record is the durable view of a job.
type Record struct {
	ID              id.JobID      `json:"id"`
	Type            string        `json:"type"`
	Priority        int           `json:"priority"`
	MaxRetries      int           `json:"max_retries"`
	Timeout         time.Duration `json:"timeout"`
	Status          job.State     `json:"status"`
	Attempts        int           `json:"attempts"`
	Error           string        `json:"error,omitempty"`
	ExecutionTimeMS int64         `json:"execution_time_ms"`
	EnqueuedAt      time.Time     `json:"enqueued_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// DeadLetter is a job that exhausted its retries, kept with its full
// payload and final error until it is retried or cleared.
type DeadLetter struct {
	Job     *job.QueuedJob `json:"job"`
	Error   string         `json:"error"`
	MovedAt time.Time      `json:"moved_at"`
}

// List names one of the job id lists a store keeps.
type List string

const (
	ListPending    List = "pending"
	ListCompleted  List = "completed"
	ListDeadLetter List = "dlq"
)

// Store is the durable backend behind the persistence agent. Every write
// must be idempotent: applying the same call twice leaves the same state.
type Store interface {
	// SaveJob upserts the job record. Non-terminal jobs are kept on the
	// pending list.
	SaveJob(ctx context.Context, j *job.QueuedJob) error

	// MarkCompleted records success and moves the id from the pending list
	// to the completed list.
	MarkCompleted(ctx context.Context, jobID id.JobID, at time.Time, executionTime time.Duration) error

	// MarkFailed records the terminal failure of a job.
	MarkFailed(ctx context.Context, jobID id.JobID, at time.Time, attempts int, errMsg string) error

	// MarkCancelled records cancellation and drops the id from the pending
	// list.
	MarkCancelled(ctx context.Context, jobID id.JobID, at time.Time) error

	// MoveToDeadLetter stores the dead letter without expiry and moves the
	// id from the pending list to the dead letter list.
	MoveToDeadLetter(ctx context.Context, dl *DeadLetter) error

	// GetJob returns the job record or jobs.ErrUnknownJob.
	GetJob(ctx context.Context, jobID id.JobID) (*Record, error)

	// ListIDs returns up to limit ids from list, newest first. A
	// non-positive limit returns all of them.
	ListIDs(ctx context.Context, list List, limit int) ([]id.JobID, error)

	// ListDeadLetters returns up to limit dead letters, newest first.
	ListDeadLetters(ctx context.Context, limit int) ([]*DeadLetter, error)

	// GetDeadLetter returns one dead letter or jobs.ErrDeadLetterNotFound.
	GetDeadLetter(ctx context.Context, jobID id.JobID) (*DeadLetter, error)

	// RemoveDeadLetter deletes one dead letter. Unknown ids are ignored.
	RemoveDeadLetter(ctx context.Context, jobID id.JobID) error

	// ClearDeadLetters deletes every dead letter and returns how many
	// there were.
	ClearDeadLetters(ctx context.Context) (int, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases resources owned by the store.
	Close() error
}
