package jobs

import "github.com/xraph/jobs/id"

// JobID identifies a single job across queue, history, persistence and the
// cancellation registry.
type JobID = id.JobID

// ScheduleID identifies a scheduler entry.
type ScheduleID = id.ScheduleID
