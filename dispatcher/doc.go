// Package dispatcher owns the lifecycle of queued jobs.
//
// A [Dispatcher] admits jobs into a bounded priority queue, runs them on a
// fixed pool of workers through the middleware chain, retries failures
// with backoff and hands exhausted jobs to the dead letter list. It also
// finalizes cancellations and drains the queue at shutdown.
//
// Each job moves through the state machine in package job:
//
//	Pending → Running → Completed
//	                  → Retrying → Pending ...
//	                  → Failed (dead lettered)
//	Pending | Running | Retrying → Cancelled
//
// Every transition is reported to the extension registry, terminal ones
// are recorded in the history index, and durable writes are handed to the
// persistence agent without waiting.
package dispatcher
