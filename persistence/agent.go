// Package persistence isolates durable store I/O from the dispatcher.
//
// The dispatcher hands the [Agent] immutable messages ([PersistJob],
// [MarkCompleted], [MarkFailed], [MarkCancelled], [MoveToDeadLetter]) and
// carries on without waiting. The agent applies them to a [Store] one at a
// time on its own goroutine. A failed write is logged and counted, never
// retried: a gap in durable state is preferred over stalling job
// throughput.
package persistence

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xraph/jobs"
)

// Stats counts messages handled by the agent.
type Stats struct {
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
	Queued    int   `json:"queued"`
}

// AgentOption configures an Agent.
type AgentOption func(*Agent)

// WithBuffer sets the mailbox capacity.
func WithBuffer(n int) AgentOption {
	return func(a *Agent) {
		if n > 0 {
			a.buffer = n
		}
	}
}

// WithWriteTimeout bounds every store call.
func WithWriteTimeout(d time.Duration) AgentOption {
	return func(a *Agent) {
		if d > 0 {
			a.writeTimeout = d
		}
	}
}

// WithErrorHandler registers a callback invoked after a failed write, in
// addition to logging.
func WithErrorHandler(fn func(Message, error)) AgentOption {
	return func(a *Agent) { a.onError = fn }
}

// Agent applies persistence messages to a Store asynchronously.
type Agent struct {
	store        Store
	logger       *slog.Logger
	buffer       int
	writeTimeout time.Duration
	onError      func(Message, error)

	mailbox chan Message
	gate    sync.RWMutex
	stopCh  chan struct{}
	doneCh  chan struct{}
	start   sync.Once
	stop    sync.Once

	processed atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

// NewAgent creates an agent writing to store.
func NewAgent(store Store, logger *slog.Logger, opts ...AgentOption) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Agent{
		store:        store,
		logger:       logger,
		buffer:       1024,
		writeTimeout: 5 * time.Second,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.mailbox = make(chan Message, a.buffer)
	return a
}

// Store returns the backing store.
func (a *Agent) Store() Store { return a.store }

// Start launches the agent loop. It returns immediately.
func (a *Agent) Start(_ context.Context) error {
	a.start.Do(func() {
		go a.loop()
		a.logger.Info("persistence agent started", slog.Int("buffer", a.buffer))
	})
	return nil
}

// Send queues msg without blocking. It reports false when the mailbox is
// full or the agent is stopped; the message is then dropped. A message
// accepted by Send is always applied or counted as dropped by Stop.
func (a *Agent) Send(msg Message) bool {
	a.gate.RLock()
	defer a.gate.RUnlock()

	select {
	case <-a.stopCh:
		a.dropped.Add(1)
		return false
	default:
	}

	select {
	case a.mailbox <- msg:
		return true
	default:
		a.dropped.Add(1)
		a.logger.Warn("persistence mailbox full, dropping message",
			slog.String("kind", msg.Kind()),
			slog.String("job_id", msg.JobID().String()),
		)
		return false
	}
}

// Stop stops accepting messages, applies what is already queued and waits
// for the loop to exit or ctx to end. On an agent that was never started
// the queued messages are counted as dropped.
func (a *Agent) Stop(ctx context.Context) error {
	// Holding the gate exclusively orders every in-flight Send before the
	// close, so the loop's final drain sees all accepted messages.
	a.gate.Lock()
	a.stop.Do(func() { close(a.stopCh) })
	a.gate.Unlock()
	a.start.Do(func() {
		a.dropped.Add(int64(len(a.mailbox)))
		close(a.doneCh)
	})

	select {
	case <-a.doneCh:
		a.logger.Info("persistence agent stopped")
		return nil
	case <-ctx.Done():
		a.logger.Warn("persistence agent stop timed out", slog.Int("queued", len(a.mailbox)))
		return ctx.Err()
	}
}

// Stats returns a snapshot of the agent counters.
func (a *Agent) Stats() Stats {
	return Stats{
		Processed: a.processed.Load(),
		Failed:    a.failed.Load(),
		Dropped:   a.dropped.Load(),
		Queued:    len(a.mailbox),
	}
}

func (a *Agent) loop() {
	defer close(a.doneCh)
	for {
		select {
		case msg := <-a.mailbox:
			a.handle(msg)
		case <-a.stopCh:
			a.drain()
			return
		}
	}
}

func (a *Agent) drain() {
	for {
		select {
		case msg := <-a.mailbox:
			a.handle(msg)
		default:
			return
		}
	}
}

func (a *Agent) handle(msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), a.writeTimeout)
	defer cancel()

	err := msg.apply(ctx, a.store)
	a.processed.Add(1)
	if err == nil {
		return
	}

	a.failed.Add(1)
	err = fmt.Errorf("%w: %s: %w", jobs.ErrPersistence, msg.Kind(), err)
	a.logger.Error("persistence write failed",
		slog.String("kind", msg.Kind()),
		slog.String("job_id", msg.JobID().String()),
		slog.String("error", err.Error()),
	)
	if a.onError != nil {
		a.onError(msg, err)
	}
}
