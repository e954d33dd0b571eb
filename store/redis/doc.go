// Package redis implements persistence.Store on Redis with go-redis v9.
//
// Layout, with every key under a configurable prefix (default "jobs:"):
//
//	job:{id}         hash   status, attempts, execution_time_ms, job_type,
//	                        priority, max_retries, timeout_ms, error,
//	                        enqueued_at, updated_at (expires after the
//	                        retention window, 7 days by default)
//	dlq:{id}         hash   job (JSON snapshot with payload), error,
//	                        moved_at (never expires)
//	queue:pending    list   ids of jobs not yet finished
//	queue:completed  list   ids of completed jobs, newest first, trimmed
//	queue:dlq        list   ids of dead letters, newest first
//
// Every write runs in a MULTI/EXEC pipeline and removes an id from a list
// before pushing it, so replaying a message leaves the same state.
//
// The caller owns the client lifecycle:
//
//	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
//	s := redis.New(client, redis.WithPrefix("myapp:jobs:"))
//	if err := s.Ping(ctx); err != nil { ... }
package redis
