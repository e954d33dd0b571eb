// Package jobs is an in-process background job subsystem. It accepts units
// of deferred work, schedules them (immediately, after a delay, on a fixed
// interval or on a cron expression), executes them under priority and retry
// policy, records their lifecycle durably and supports cooperative
// cancellation with a bounded graceful shutdown.
//
// # Quick Start
//
//	eng, err := engine.New(jobs.DefaultConfig(),
//	    engine.WithStore(redisstore.New(client)),
//	    engine.WithLogger(logger),
//	)
//	engine.RegisterTyped(eng, "send-email", func(ctx context.Context, in Email) error { ... })
//	_ = eng.Start(ctx)
//	jobID, err := eng.Enqueue(ctx, "send-email", payload, job.WithPriority(5))
//
// # Architecture
//
// Three agents run as independent goroutines and talk over channels:
//
//   - the scheduler owns recurring, delayed and cron entries and fires them
//     on a periodic tick;
//   - the dispatcher owns the bounded priority queue and the worker pool,
//     applies retry with backoff and moves exhausted jobs to the dead letter
//     queue;
//   - the persistence agent owns all durable store I/O behind fire-and-forget
//     messages.
//
// The cancellation coordinator, the history index and the extension hooks
// are shared by those agents. Each guards its own state with a single lock
// and never holds it across I/O.
package jobs
