package scheduler

import (
	"time"

	"github.com/xraph/jobs/id"
	"github.com/xraph/jobs/job"
	"github.com/xraph/jobs/schedule"
)

// Entry is a registered schedule and the job it materializes.
type Entry struct {
	ID             id.ScheduleID  `json:"id"`
	Definition     job.Definition `json:"definition"`
	Schedule       schedule.Spec  `json:"schedule"`
	ExecutionCount int            `json:"execution_count"`
	NextExecution  time.Time      `json:"next_execution"`
	LastExecution  *time.Time     `json:"last_execution,omitempty"`
	Enabled        bool           `json:"enabled"`
	CreatedAt      time.Time      `json:"created_at"`
}

// clone returns a copy that shares nothing mutable with e.
func (e *Entry) clone() Entry {
	cp := *e
	if e.Definition.Payload != nil {
		cp.Definition.Payload = append([]byte(nil), e.Definition.Payload...)
	}
	if e.LastExecution != nil {
		at := *e.LastExecution
		cp.LastExecution = &at
	}
	return cp
}

// due reports whether e should be considered on a tick at now.
func (e *Entry) due(now time.Time) bool {
	return e.Enabled && !e.NextExecution.After(now)
}
