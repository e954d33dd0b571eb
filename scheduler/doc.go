// Package scheduler fires jobs from registered schedules.
//
// A [Scheduler] is an actor: one goroutine owns every [Entry] and callers
// talk to it over a command channel, so registration never waits on tick
// processing. On each tick the actor collects the enabled entries whose
// next execution is due, advances their execution count and next
// execution, and hands the resulting job definitions to an [EnqueueFunc]
// on a separate goroutine.
//
// # Firing semantics
//
// The next execution is advanced before the job is dispatched. When the
// dispatch fails the error is logged and that firing is skipped; it is
// never retried within the period. An entry with no executions left is
// disabled as soon as its last firing is taken.
//
// # Registering
//
//	spec, _ := schedule.NewRecurring(time.Minute, 3)
//	scheduleID, err := s.Register(ctx, job.Definition{Type: "report"}, spec)
package scheduler
