package persistence

import (
	"context"
	"time"

	"github.com/xraph/jobs/id"
	"github.com/xraph/jobs/job"
)

// Message is a fire-and-forget write request for the agent. The set of
// messages is closed; use the types in this file.
type Message interface {
	// Kind names the message in logs and metrics.
	Kind() string
	// JobID is the job the message is about.
	JobID() id.JobID

	apply(ctx context.Context, s Store) error
}

// PersistJob upserts a job snapshot. Send one on every status change.
type PersistJob struct {
	Job *job.QueuedJob
}

func (m PersistJob) Kind() string    { return "persist_job" }
func (m PersistJob) JobID() id.JobID { return m.Job.ID }
func (m PersistJob) apply(ctx context.Context, s Store) error {
	return s.SaveJob(ctx, m.Job)
}

// MarkCompleted records a successful run.
type MarkCompleted struct {
	ID            id.JobID
	At            time.Time
	ExecutionTime time.Duration
}

func (m MarkCompleted) Kind() string    { return "mark_completed" }
func (m MarkCompleted) JobID() id.JobID { return m.ID }
func (m MarkCompleted) apply(ctx context.Context, s Store) error {
	return s.MarkCompleted(ctx, m.ID, m.At, m.ExecutionTime)
}

// MarkFailed records a terminal failure.
type MarkFailed struct {
	ID       id.JobID
	At       time.Time
	Attempts int
	Error    string
}

func (m MarkFailed) Kind() string    { return "mark_failed" }
func (m MarkFailed) JobID() id.JobID { return m.ID }
func (m MarkFailed) apply(ctx context.Context, s Store) error {
	return s.MarkFailed(ctx, m.ID, m.At, m.Attempts, m.Error)
}

// MarkCancelled records a cancellation.
type MarkCancelled struct {
	ID id.JobID
	At time.Time
}

func (m MarkCancelled) Kind() string    { return "mark_cancelled" }
func (m MarkCancelled) JobID() id.JobID { return m.ID }
func (m MarkCancelled) apply(ctx context.Context, s Store) error {
	return s.MarkCancelled(ctx, m.ID, m.At)
}

// MoveToDeadLetter stores an exhausted job with its final error.
type MoveToDeadLetter struct {
	Job   *job.QueuedJob
	Error string
	At    time.Time
}

func (m MoveToDeadLetter) Kind() string    { return "move_to_dead_letter" }
func (m MoveToDeadLetter) JobID() id.JobID { return m.Job.ID }
func (m MoveToDeadLetter) apply(ctx context.Context, s Store) error {
	return s.MoveToDeadLetter(ctx, &DeadLetter{Job: m.Job, Error: m.Error, MovedAt: m.At})
}
