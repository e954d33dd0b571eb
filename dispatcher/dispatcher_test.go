package dispatcher_test

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/jobs"
	"github.com/xraph/jobs/backoff"
	"github.com/xraph/jobs/cancellation"
	"github.com/xraph/jobs/dispatcher"
	"github.com/xraph/jobs/ext"
	"github.com/xraph/jobs/history"
	"github.com/xraph/jobs/id"
	"github.com/xraph/jobs/job"
	"github.com/xraph/jobs/middleware"
	"github.com/xraph/jobs/persistence"
	"github.com/xraph/jobs/queue"
	"github.com/xraph/jobs/store/memory"
)

type harness struct {
	d        *dispatcher.Dispatcher
	registry *job.Registry
	cancels  *cancellation.Manager
	history  *history.Index
	store    *memory.Store
	counter  *counter
}

type counter struct {
	rejected  atomic.Int32
	cancelled atomic.Int32
	retrying  atomic.Int32
}

func (c *counter) Name() string { return "counter" }

func (c *counter) OnJobRejected(context.Context, job.Definition, error) error {
	c.rejected.Add(1)
	return nil
}

func (c *counter) OnJobCancelled(context.Context, *job.QueuedJob) error {
	c.cancelled.Add(1)
	return nil
}

func (c *counter) OnJobRetrying(context.Context, *job.QueuedJob, time.Time, error) error {
	c.retrying.Add(1)
	return nil
}

func newHarness(t *testing.T, opts ...dispatcher.Option) *harness {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)

	h := &harness{
		registry: job.NewRegistry(),
		cancels:  cancellation.NewManager(cancellation.WithPollInterval(5 * time.Millisecond)),
		history:  history.New(100),
		store:    memory.New(),
		counter:  &counter{},
	}

	extensions := ext.NewRegistry(logger)
	extensions.Register(h.counter)

	agent := persistence.NewAgent(h.store, logger)
	if err := agent.Start(context.Background()); err != nil {
		t.Fatalf("start agent: %v", err)
	}

	base := []dispatcher.Option{
		dispatcher.WithLogger(logger),
		dispatcher.WithBackoff(backoff.NewFixed(time.Millisecond)),
		dispatcher.WithExtensions(extensions),
		dispatcher.WithPersistence(agent),
		dispatcher.WithHistory(h.history),
		dispatcher.WithMiddleware(middleware.Recover(logger)),
	}
	h.d = dispatcher.New(h.registry, h.cancels, append(base, opts...)...)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = h.d.Stop(ctx)
		_ = agent.Stop(ctx)
	})
	return h
}

func (h *harness) enqueue(t *testing.T, jobType string, opts ...job.Option) id.JobID {
	t.Helper()
	def := job.NewDefinition(jobType, nil, job.DefaultOptions(), opts...)
	jobID, err := h.d.Enqueue(context.Background(), def)
	if err != nil {
		t.Fatalf("Enqueue(%s): %v", jobType, err)
	}
	return jobID
}

func (h *harness) waitRecord(t *testing.T, jobID id.JobID) history.Record {
	t.Helper()
	var rec history.Record
	waitFor(t, func() bool {
		var ok bool
		rec, ok = h.history.Find(jobID)
		return ok
	})
	return rec
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestDispatcher_Completes(t *testing.T) {
	h := newHarness(t)
	h.registry.Register("ok", func(context.Context, []byte) error { return nil })
	_ = h.d.Start(context.Background())

	jobID := h.enqueue(t, "ok")
	rec := h.waitRecord(t, jobID)

	if rec.Status != history.StatusCompleted {
		t.Fatalf("Status = %s, want completed", rec.Status)
	}
	if rec.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", rec.Attempts)
	}
	if _, live := h.d.Lookup(jobID); live {
		t.Error("completed job still live")
	}
	waitFor(t, func() bool {
		r, err := h.store.GetJob(context.Background(), jobID)
		return err == nil && r.Status == job.StateCompleted
	})
}

func TestDispatcher_RetriesThenDeadLetters(t *testing.T) {
	h := newHarness(t)
	var calls atomic.Int32
	h.registry.Register("flaky", func(context.Context, []byte) error {
		n := calls.Add(1)
		return errors.New("boom " + string(rune('0'+n)))
	})
	_ = h.d.Start(context.Background())

	jobID := h.enqueue(t, "flaky", job.WithMaxRetries(2))
	rec := h.waitRecord(t, jobID)

	if rec.Status != history.StatusFailed {
		t.Fatalf("Status = %s, want failed", rec.Status)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("handler calls = %d, want 3", got)
	}
	if rec.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", rec.Attempts)
	}
	if !strings.Contains(rec.Error, "boom 3") {
		t.Errorf("Error = %q, want final error", rec.Error)
	}
	if got := h.counter.retrying.Load(); got != 2 {
		t.Errorf("retrying hooks = %d, want 2", got)
	}

	var dl *persistence.DeadLetter
	waitFor(t, func() bool {
		var err error
		dl, err = h.store.GetDeadLetter(context.Background(), jobID)
		return err == nil
	})
	if !strings.Contains(dl.Error, "boom 3") {
		t.Errorf("dead letter error = %q, want final error", dl.Error)
	}
	if dl.Job.Attempt != 3 {
		t.Errorf("dead letter attempts = %d, want 3", dl.Job.Attempt)
	}
}

func TestDispatcher_PriorityOrder(t *testing.T) {
	h := newHarness(t, dispatcher.WithConcurrency(1))

	var mu sync.Mutex
	var order []string
	h.registry.Register("p", func(_ context.Context, payload []byte) error {
		mu.Lock()
		order = append(order, string(payload))
		mu.Unlock()
		return nil
	})

	for _, p := range []struct {
		name     string
		priority int
	}{{"low", 1}, {"high", 9}, {"mid", 5}, {"high2", 9}} {
		def := job.NewDefinition("p", []byte(p.name), job.DefaultOptions(), job.WithPriority(p.priority))
		if _, err := h.d.Enqueue(context.Background(), def); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	_ = h.d.Start(context.Background())

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 4
	})
	want := []string{"high", "high2", "mid", "low"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestDispatcher_QueueFull(t *testing.T) {
	h := newHarness(t, dispatcher.WithMaxQueueSize(2))
	h.registry.Register("x", func(context.Context, []byte) error { return nil })

	h.enqueue(t, "x")
	h.enqueue(t, "x")
	_, err := h.d.Enqueue(context.Background(), job.NewDefinition("x", nil, job.DefaultOptions()))
	if !errors.Is(err, jobs.ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if got := h.counter.rejected.Load(); got != 1 {
		t.Errorf("rejected hooks = %d, want 1", got)
	}
	if got := h.d.Depth(); got != 2 {
		t.Errorf("Depth = %d, want 2", got)
	}
}

func TestDispatcher_UnknownType(t *testing.T) {
	h := newHarness(t)
	_, err := h.d.Enqueue(context.Background(), job.NewDefinition("missing", nil, job.DefaultOptions()))
	if !errors.Is(err, jobs.ErrUnknownJobType) {
		t.Fatalf("expected ErrUnknownJobType, got %v", err)
	}
}

func TestDispatcher_Timeout(t *testing.T) {
	h := newHarness(t)
	h.registry.Register("slow", func(ctx context.Context, _ []byte) error {
		select {
		case <-ctx.Done():
		case <-time.After(500 * time.Millisecond):
		}
		return nil
	})
	_ = h.d.Start(context.Background())

	jobID := h.enqueue(t, "slow", job.WithTimeout(20*time.Millisecond), job.WithMaxRetries(0))
	rec := h.waitRecord(t, jobID)

	if rec.Status != history.StatusFailed {
		t.Fatalf("Status = %s, want failed", rec.Status)
	}
	if !strings.Contains(rec.Error, jobs.ErrTimeout.Error()) {
		t.Errorf("Error = %q, want timeout", rec.Error)
	}
}

func TestDispatcher_RecoversPanic(t *testing.T) {
	h := newHarness(t)
	var calls atomic.Int32
	h.registry.Register("panicky", func(context.Context, []byte) error {
		if calls.Add(1) == 1 {
			panic("kaboom")
		}
		return nil
	})
	_ = h.d.Start(context.Background())

	jobID := h.enqueue(t, "panicky", job.WithMaxRetries(1))
	rec := h.waitRecord(t, jobID)

	if rec.Status != history.StatusCompleted {
		t.Fatalf("Status = %s, want completed", rec.Status)
	}
	if rec.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", rec.Attempts)
	}
}

func TestDispatcher_CancelPending(t *testing.T) {
	h := newHarness(t)
	h.registry.Register("x", func(context.Context, []byte) error { return nil })

	jobID := h.enqueue(t, "x")
	if !h.d.Cancel(jobID) {
		t.Fatal("Cancel returned false for pending job")
	}
	rec := h.waitRecord(t, jobID)
	if rec.Status != history.StatusCancelled {
		t.Fatalf("Status = %s, want cancelled", rec.Status)
	}
	if rec.Attempts != 0 {
		t.Errorf("Attempts = %d, want 0", rec.Attempts)
	}
	if h.d.Depth() != 0 {
		t.Errorf("Depth = %d, want 0", h.d.Depth())
	}
	if h.d.Cancel(jobID) {
		t.Error("second Cancel should report false")
	}
	if h.d.Cancel(id.NewJobID()) {
		t.Error("Cancel of unknown id should report false")
	}
}

func TestDispatcher_CancelRunning(t *testing.T) {
	h := newHarness(t)
	started := make(chan struct{})
	h.registry.Register("blocking", func(ctx context.Context, _ []byte) error {
		close(started)
		<-ctx.Done()
		return context.Cause(ctx)
	})
	_ = h.d.Start(context.Background())

	jobID := h.enqueue(t, "blocking")
	<-started
	if !h.d.Cancel(jobID) {
		t.Fatal("Cancel returned false for running job")
	}

	rec := h.waitRecord(t, jobID)
	if rec.Status != history.StatusCancelled {
		t.Fatalf("Status = %s, want cancelled", rec.Status)
	}
	if rec.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", rec.Attempts)
	}
	waitFor(t, func() bool { return h.cancels.ActiveCount() == 0 })
}

func TestDispatcher_ConcurrentCancel(t *testing.T) {
	h := newHarness(t)
	started := make(chan struct{})
	h.registry.Register("blocking", func(ctx context.Context, _ []byte) error {
		close(started)
		<-ctx.Done()
		return context.Cause(ctx)
	})
	_ = h.d.Start(context.Background())

	jobID := h.enqueue(t, "blocking")
	<-started

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.d.Cancel(jobID)
		}()
	}
	wg.Wait()

	rec := h.waitRecord(t, jobID)
	if rec.Status != history.StatusCancelled {
		t.Fatalf("Status = %s, want cancelled", rec.Status)
	}
	waitFor(t, func() bool { return h.cancels.ActiveCount() == 0 })
	if got := h.counter.cancelled.Load(); got != 1 {
		t.Errorf("cancelled hooks = %d, want 1", got)
	}
	if got := h.history.Len(); got != 1 {
		t.Errorf("history records = %d, want 1", got)
	}
}

func TestDispatcher_ForcedShutdown(t *testing.T) {
	cancels := cancellation.NewManager(cancellation.WithPollInterval(5 * time.Millisecond))
	coordinator := cancellation.NewShutdownCoordinator(cancels, slog.New(slog.DiscardHandler))

	registry := job.NewRegistry()
	started := make(chan struct{})
	release := make(chan struct{})
	registry.Register("stubborn", func(context.Context, []byte) error {
		close(started)
		<-release
		return nil
	})

	d := dispatcher.New(registry, cancels,
		dispatcher.WithLogger(slog.New(slog.DiscardHandler)),
		dispatcher.WithShutdownToken(coordinator.Token()),
	)
	_ = d.Start(context.Background())

	if _, err := d.Enqueue(context.Background(), job.NewDefinition("stubborn", nil, job.DefaultOptions())); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	<-started

	result := coordinator.Shutdown(context.Background(), 50*time.Millisecond)
	if result.Graceful {
		t.Fatal("expected forced shutdown")
	}
	if result.JobsRemaining != 1 {
		t.Errorf("JobsRemaining = %d, want 1", result.JobsRemaining)
	}

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := d.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	_, err := d.Enqueue(context.Background(), job.NewDefinition("stubborn", nil, job.DefaultOptions()))
	if !errors.Is(err, jobs.ErrShuttingDown) {
		t.Fatalf("expected ErrShuttingDown after shutdown, got %v", err)
	}
	if d.Accepting() {
		t.Error("Accepting should be false after shutdown")
	}
}

func TestDispatcher_StopCancelsPending(t *testing.T) {
	h := newHarness(t)
	h.registry.Register("x", func(context.Context, []byte) error { return nil })

	first := h.enqueue(t, "x")
	second := h.enqueue(t, "x")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := h.d.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	for _, jobID := range []id.JobID{first, second} {
		rec, ok := h.history.Find(jobID)
		if !ok || rec.Status != history.StatusCancelled {
			t.Errorf("job %s: record = %+v, want cancelled", jobID, rec)
		}
	}
}

func TestDispatcher_CancelDuringBackoff(t *testing.T) {
	h := newHarness(t, dispatcher.WithBackoff(backoff.NewFixed(time.Hour)))
	var calls atomic.Int32
	h.registry.Register("failing", func(context.Context, []byte) error {
		calls.Add(1)
		return errors.New("nope")
	})
	_ = h.d.Start(context.Background())

	jobID := h.enqueue(t, "failing", job.WithMaxRetries(3))
	waitFor(t, func() bool {
		j, ok := h.d.Lookup(jobID)
		return ok && j.Status.State == job.StateRetrying
	})

	if !h.d.Cancel(jobID) {
		t.Fatal("Cancel returned false for a job waiting out its backoff")
	}

	rec := h.waitRecord(t, jobID)
	if rec.Status != history.StatusCancelled {
		t.Fatalf("Status = %s, want cancelled", rec.Status)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("handler calls = %d, want 1", got)
	}
	waitFor(t, func() bool { return h.cancels.ActiveCount() == 0 })
	waitFor(t, func() bool {
		r, err := h.store.GetJob(context.Background(), jobID)
		return err == nil && r.Status == job.StateCancelled
	})
	if _, err := h.store.GetDeadLetter(context.Background(), jobID); !errors.Is(err, jobs.ErrDeadLetterNotFound) {
		t.Errorf("GetDeadLetter error = %v, want ErrDeadLetterNotFound", err)
	}
	if got := h.counter.cancelled.Load(); got != 1 {
		t.Errorf("cancelled hooks = %d, want 1", got)
	}
}

func TestDispatcher_RateLimitDelaysStarts(t *testing.T) {
	limiter := queue.NewLimiter(map[string]jobs.RateLimit{
		"limited": {PerSecond: 4, Burst: 1},
	})
	h := newHarness(t, dispatcher.WithConcurrency(2), dispatcher.WithLimiter(limiter))

	var mu sync.Mutex
	var starts []time.Time
	h.registry.Register("limited", func(context.Context, []byte) error {
		mu.Lock()
		starts = append(starts, time.Now())
		mu.Unlock()
		return nil
	})
	_ = h.d.Start(context.Background())

	first := h.enqueue(t, "limited")
	second := h.enqueue(t, "limited")
	h.waitRecord(t, first)
	h.waitRecord(t, second)

	mu.Lock()
	defer mu.Unlock()
	if len(starts) != 2 {
		t.Fatalf("starts = %d, want 2", len(starts))
	}
	gap := starts[1].Sub(starts[0])
	if gap < 0 {
		gap = -gap
	}
	if gap < 200*time.Millisecond {
		t.Errorf("second start after %s, want at least 200ms", gap)
	}
}

func TestDispatcher_CancelWhileRateLimited(t *testing.T) {
	limiter := queue.NewLimiter(map[string]jobs.RateLimit{
		"trickle": {PerSecond: 0.001, Burst: 1},
	})
	h := newHarness(t, dispatcher.WithConcurrency(2), dispatcher.WithLimiter(limiter))

	var calls atomic.Int32
	h.registry.Register("trickle", func(context.Context, []byte) error {
		calls.Add(1)
		return nil
	})
	_ = h.d.Start(context.Background())

	first := h.enqueue(t, "trickle")
	h.waitRecord(t, first)

	blocked := h.enqueue(t, "trickle")
	waitFor(t, func() bool { return h.d.Depth() == 0 })

	if !h.d.Cancel(blocked) {
		t.Fatal("Cancel returned false for a rate-limited job")
	}
	rec := h.waitRecord(t, blocked)
	if rec.Status != history.StatusCancelled {
		t.Fatalf("Status = %s, want cancelled", rec.Status)
	}
	if rec.Attempts != 0 {
		t.Errorf("Attempts = %d, want 0", rec.Attempts)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("handler calls = %d, want 1", got)
	}
	waitFor(t, func() bool { return h.cancels.ActiveCount() == 0 })
}

func TestDispatcher_NoRetryAfterShutdownBegins(t *testing.T) {
	shutdown := cancellation.NewToken()
	h := newHarness(t, dispatcher.WithShutdownToken(shutdown))

	started := make(chan struct{})
	release := make(chan struct{})
	h.registry.Register("stubborn", func(context.Context, []byte) error {
		close(started)
		<-release
		return errors.New("failed during shutdown")
	})
	_ = h.d.Start(context.Background())

	jobID := h.enqueue(t, "stubborn", job.WithMaxRetries(3))
	<-started

	shutdown.Cancel()
	close(release)

	rec := h.waitRecord(t, jobID)
	if rec.Status != history.StatusFailed {
		t.Fatalf("Status = %s, want failed", rec.Status)
	}
	if rec.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", rec.Attempts)
	}
	if got := h.counter.retrying.Load(); got != 0 {
		t.Errorf("retrying hooks = %d, want 0", got)
	}
	waitFor(t, func() bool {
		dl, err := h.store.GetDeadLetter(context.Background(), jobID)
		return err == nil && strings.Contains(dl.Error, "failed during shutdown")
	})
}
