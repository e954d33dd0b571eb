package api

import (
	"encoding/json"

	"github.com/xraph/jobs/engine"
	"github.com/xraph/jobs/id"
	"github.com/xraph/jobs/observability"
	"github.com/xraph/jobs/persistence"
	"github.com/xraph/jobs/schedule"
)

// EnqueueRequest is the body of POST /enqueue. Omitted options fall back
// to the engine defaults. Timeout uses time.Duration syntax.
type EnqueueRequest struct {
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Priority   *int            `json:"priority,omitempty"`
	MaxRetries *int            `json:"max_retries,omitempty"`
	Timeout    string          `json:"timeout,omitempty"`
}

// EnqueueResponse carries the id of an admitted job.
type EnqueueResponse struct {
	ID id.JobID `json:"id"`
}

// ListJobsResponse is the body of GET /list.
type ListJobsResponse struct {
	Jobs  []engine.JobInfo `json:"jobs"`
	Count int              `json:"count"`
}

// CancelResponse reports whether a live job was signalled.
type CancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

// RetryResponse carries the id of the re-enqueued job.
type RetryResponse struct {
	ID       id.JobID `json:"id"`
	Original id.JobID `json:"original"`
}

// RetryAllResponse reports how many dead letters were re-enqueued.
type RetryAllResponse struct {
	Retried int `json:"retried"`
}

// DeadLettersResponse is the body of GET /dead-letter.
type DeadLettersResponse struct {
	DeadLetters []*persistence.DeadLetter `json:"dead_letters"`
	Count       int                       `json:"count"`
}

// ClearResponse reports how many dead letters were deleted.
type ClearResponse struct {
	Cleared int `json:"cleared"`
}

// StatsResponse is the body of GET /stats.
type StatsResponse struct {
	observability.Snapshot `yaml:",inline"`
	QueueDepth             int               `json:"queue_depth" yaml:"queue_depth"`
	Accepting              bool              `json:"accepting" yaml:"accepting"`
	Persistence            persistence.Stats `json:"persistence" yaml:"persistence"`
}

// RegisterScheduleRequest is the body of POST /scheduled.
type RegisterScheduleRequest struct {
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Schedule   schedule.Spec   `json:"schedule"`
	Priority   *int            `json:"priority,omitempty"`
	MaxRetries *int            `json:"max_retries,omitempty"`
	Timeout    string          `json:"timeout,omitempty"`
}

// RegisterScheduleResponse carries the id of a new schedule.
type RegisterScheduleResponse struct {
	ID id.ScheduleID `json:"id"`
}

// TriggerResponse reports how many scheduled jobs were enqueued.
type TriggerResponse struct {
	Enqueued int `json:"enqueued"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody describes one error.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
