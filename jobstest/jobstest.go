// Package jobstest runs job handlers synchronously in tests.
//
// A [Queue] executes registered handlers one at a time in FIFO order, with
// no workers, retries or persistence, and remembers which jobs completed
// and which failed:
//
//	q := jobstest.NewQueue(registry)
//	q.Enqueue("send-email", EmailInput{To: "a@example.com"})
//	if err := q.ExecuteAll(ctx); err != nil {
//	    t.Fatal(err)
//	}
//
// The Assert helpers exercise a single handler directly.
package jobstest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/xraph/jobs"
	"github.com/xraph/jobs/id"
	"github.com/xraph/jobs/job"
	"github.com/xraph/jobs/middleware"
)

// Failure is a job whose handler returned an error.
type Failure struct {
	Job *job.QueuedJob
	Err error
}

// Option configures a Queue.
type Option func(*Queue)

// WithMiddleware wraps every execution in mws.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(q *Queue) { q.mw = middleware.Chain(mws...) }
}

// Queue is a synchronous, in-order job runner. It is safe for concurrent
// use, but executes one job at a time.
type Queue struct {
	registry *job.Registry
	mw       middleware.Middleware

	mu        sync.Mutex
	pending   []*job.QueuedJob
	completed []*job.QueuedJob
	failed    []Failure
}

// NewQueue creates a queue running handlers from registry.
func NewQueue(registry *job.Registry, opts ...Option) *Queue {
	q := &Queue{registry: registry, mw: middleware.Chain()}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue appends a job. payload is JSON-encoded unless it is already a
// []byte.
func (q *Queue) Enqueue(jobType string, payload any, opts ...job.Option) (id.JobID, error) {
	if _, ok := q.registry.Get(jobType); !ok {
		return id.NilJob, fmt.Errorf("%w: %q", jobs.ErrUnknownJobType, jobType)
	}
	raw, err := encode(payload)
	if err != nil {
		return id.NilJob, err
	}

	j := job.New(id.NewJobID(), job.NewDefinition(jobType, raw, job.DefaultOptions(), opts...), time.Now().UTC())
	q.mu.Lock()
	q.pending = append(q.pending, j)
	q.mu.Unlock()
	return j.ID, nil
}

// ExecuteNext runs the oldest pending job. It reports false when the queue
// is empty; otherwise err is the handler's error.
func (q *Queue) ExecuteNext(ctx context.Context) (ran bool, err error) {
	q.mu.Lock()
	if len(q.pending) == 0 {
		q.mu.Unlock()
		return false, nil
	}
	j := q.pending[0]
	q.pending = q.pending[1:]
	q.mu.Unlock()

	handler, _ := q.registry.Get(j.Type)
	_ = j.Transition(job.Running(time.Now().UTC()))

	runCtx := ctx
	if j.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}
	err = q.mw(runCtx, j.Snapshot(), func(ctx context.Context) error {
		return handler(ctx, j.Payload)
	})

	now := time.Now().UTC()
	q.mu.Lock()
	defer q.mu.Unlock()
	if err != nil {
		_ = j.Transition(job.Failed(now, j.Attempt, err.Error()))
		q.failed = append(q.failed, Failure{Job: j, Err: err})
		return true, err
	}
	_ = j.Transition(job.Completed(now))
	q.completed = append(q.completed, j)
	return true, nil
}

// ExecuteAll runs pending jobs until the queue is empty or a handler fails.
// Jobs after the failing one stay pending.
func (q *Queue) ExecuteAll(ctx context.Context) error {
	for {
		ran, err := q.ExecuteNext(ctx)
		if err != nil {
			return err
		}
		if !ran {
			return nil
		}
	}
}

// Len returns the number of pending jobs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Completed returns the jobs that succeeded, in execution order.
func (q *Queue) Completed() []*job.QueuedJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*job.QueuedJob(nil), q.completed...)
}

// Failed returns the jobs that failed, in execution order.
func (q *Queue) Failed() []Failure {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Failure(nil), q.failed...)
}

// ClearHistory forgets completed and failed jobs. Pending jobs are kept.
func (q *Queue) ClearHistory() {
	q.mu.Lock()
	q.completed, q.failed = nil, nil
	q.mu.Unlock()
}

// ──────────────────────────────────────────────────
// Assertions
// ──────────────────────────────────────────────────

// AssertSucceeds fails t unless h returns nil for payload.
func AssertSucceeds(t testing.TB, h job.HandlerFunc, payload any) {
	t.Helper()
	if err := run(t, context.Background(), h, payload); err != nil {
		t.Fatalf("job should succeed but failed with: %v", err)
	}
}

// AssertFails fails t unless h returns an error for payload, and returns
// that error.
func AssertFails(t testing.TB, h job.HandlerFunc, payload any) error {
	t.Helper()
	err := run(t, context.Background(), h, payload)
	if err == nil {
		t.Fatal("job should fail but succeeded")
	}
	return err
}

// AssertCompletesWithin fails t unless h returns within d. The handler's
// context ends at d; the handler's own error is not checked.
func AssertCompletesWithin(t testing.TB, h job.HandlerFunc, payload any, d time.Duration) {
	t.Helper()
	raw, err := encode(payload)
	if err != nil {
		t.Fatalf("encode payload: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h(ctx, raw)
	}()

	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("job should complete within %s but timed out", d)
	}
}

func run(t testing.TB, ctx context.Context, h job.HandlerFunc, payload any) error {
	raw, err := encode(payload)
	if err != nil {
		t.Fatalf("encode payload: %v", err)
	}
	return h(ctx, raw)
}

func encode(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case []byte:
		return p, nil
	default:
		raw, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("jobstest: marshal payload: %w", err)
		}
		return raw, nil
	}
}
