// Package queue holds the dispatcher's pending set and its per-type rate
// limits.
//
// # Pending set
//
// [Queue] is a bounded priority queue. Higher priorities are served first;
// jobs with equal priority are served in enqueue order. Push fails with
// jobs.ErrQueueFull once the configured size is reached. Retries are
// re-admitted with PushForce, which ignores the bound because the job was
// already accepted once.
//
//	q := queue.New(10_000)
//	if err := q.Push(j); errors.Is(err, jobs.ErrQueueFull) { ... }
//	next, err := q.Pop(ctx) // blocks until a job is available
//
// # Rate limits
//
// [Limiter] applies a token-bucket limit (golang.org/x/time/rate) to the
// start rate of individual job types. Types without a limit pass through.
//
//	l := queue.NewLimiter(map[string]jobs.RateLimit{
//	    "send-email": {PerSecond: 10, Burst: 20},
//	})
//	if err := l.Wait(ctx, j.Type); err != nil { ... }
package queue
