package persistence_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xraph/jobs"
	"github.com/xraph/jobs/id"
	"github.com/xraph/jobs/job"
	"github.com/xraph/jobs/persistence"
	"github.com/xraph/jobs/store/memory"
)

// failingStore rejects every completion write and optionally blocks
// SaveJob until release is closed.
type failingStore struct {
	*memory.Store
	release chan struct{}
}

func (s *failingStore) MarkCompleted(context.Context, id.JobID, time.Time, time.Duration) error {
	return errors.New("connection refused")
}

func (s *failingStore) SaveJob(ctx context.Context, j *job.QueuedJob) error {
	if s.release != nil {
		<-s.release
	}
	return s.Store.SaveJob(ctx, j)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newJob() *job.QueuedJob {
	return job.New(id.NewJobID(), job.NewDefinition("email", nil, job.DefaultOptions()), time.Now())
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestAgent_AppliesMessagesInOrder(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	a := persistence.NewAgent(store, slog.New(slog.DiscardHandler))
	_ = a.Start(ctx)

	j := newJob()
	a.Send(persistence.PersistJob{Job: j.Snapshot()})
	a.Send(persistence.MarkCompleted{ID: j.ID, At: time.Now(), ExecutionTime: 20 * time.Millisecond})

	waitFor(t, func() bool { return a.Stats().Processed == 2 })

	rec, err := store.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if rec.Status != job.StateCompleted || rec.ExecutionTimeMS != 20 {
		t.Fatalf("unexpected record %+v", rec)
	}

	if err := a.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestAgent_LogsFailuresAndContinues(t *testing.T) {
	ctx := context.Background()
	logs := &syncBuffer{}
	store := &failingStore{Store: memory.New()}

	var (
		mu     sync.Mutex
		failed []error
	)
	a := persistence.NewAgent(store, slog.New(slog.NewTextHandler(logs, nil)),
		persistence.WithErrorHandler(func(_ persistence.Message, err error) {
			mu.Lock()
			failed = append(failed, err)
			mu.Unlock()
		}),
	)
	_ = a.Start(ctx)

	j := newJob()
	a.Send(persistence.MarkCompleted{ID: j.ID, At: time.Now()})
	a.Send(persistence.PersistJob{Job: j})

	waitFor(t, func() bool { return a.Stats().Processed == 2 })
	_ = a.Stop(ctx)

	if got := a.Stats().Failed; got != 1 {
		t.Fatalf("failed = %d, want 1", got)
	}
	if _, err := store.GetJob(ctx, j.ID); err != nil {
		t.Fatalf("write after a failure was not applied: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(failed) != 1 || !errors.Is(failed[0], jobs.ErrPersistence) {
		t.Fatalf("error handler got %v, want one ErrPersistence", failed)
	}
	if !strings.Contains(logs.String(), "persistence write failed") {
		t.Fatalf("failure not logged: %s", logs.String())
	}
}

func TestAgent_SendDropsWhenFull(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{Store: memory.New(), release: make(chan struct{})}
	a := persistence.NewAgent(store, slog.New(slog.DiscardHandler), persistence.WithBuffer(1))
	_ = a.Start(ctx)

	// The first message blocks the loop inside SaveJob.
	a.Send(persistence.PersistJob{Job: newJob()})
	waitFor(t, func() bool { return a.Stats().Queued == 0 })

	if !a.Send(persistence.PersistJob{Job: newJob()}) {
		t.Fatal("second send should fit in the mailbox")
	}

	start := time.Now()
	if a.Send(persistence.PersistJob{Job: newJob()}) {
		t.Fatal("third send should be dropped")
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("Send blocked on a full mailbox")
	}
	if got := a.Stats().Dropped; got != 1 {
		t.Fatalf("dropped = %d, want 1", got)
	}

	close(store.release)
	if err := a.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := a.Stats().Processed; got != 2 {
		t.Fatalf("processed = %d, want 2", got)
	}
}

func TestAgent_StopDrainsAndRejects(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	a := persistence.NewAgent(store, slog.New(slog.DiscardHandler))

	// Queued before Start: Stop must still apply them.
	jobsIn := []*job.QueuedJob{newJob(), newJob(), newJob()}
	for _, j := range jobsIn {
		a.Send(persistence.PersistJob{Job: j})
	}
	_ = a.Start(ctx)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := a.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	for _, j := range jobsIn {
		if _, err := store.GetJob(ctx, j.ID); err != nil {
			t.Fatalf("job %s not persisted: %v", j.ID, err)
		}
	}
	if a.Send(persistence.PersistJob{Job: newJob()}) {
		t.Fatal("Send after Stop should report false")
	}
}

func TestAgent_StopWithoutStart(t *testing.T) {
	a := persistence.NewAgent(memory.New(), nil)
	a.Send(persistence.PersistJob{Job: newJob()})
	if err := a.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := a.Stats().Dropped; got != 1 {
		t.Fatalf("dropped = %d, want 1", got)
	}
}

func TestAgent_SendRacingStopIsAccounted(t *testing.T) {
	ctx := context.Background()
	for round := 0; round < 20; round++ {
		a := persistence.NewAgent(memory.New(), slog.New(slog.DiscardHandler), persistence.WithBuffer(4096))
		_ = a.Start(ctx)

		const senders, perSender = 8, 50
		var (
			accepted sync.WaitGroup
			mu       sync.Mutex
			ok       int64
		)
		for i := 0; i < senders; i++ {
			accepted.Add(1)
			go func() {
				defer accepted.Done()
				for j := 0; j < perSender; j++ {
					if a.Send(persistence.PersistJob{Job: newJob()}) {
						mu.Lock()
						ok++
						mu.Unlock()
					}
				}
			}()
		}

		stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := a.Stop(stopCtx); err != nil {
			cancel()
			t.Fatalf("Stop: %v", err)
		}
		cancel()
		accepted.Wait()

		stats := a.Stats()
		if stats.Processed != ok {
			t.Fatalf("round %d: processed = %d, accepted = %d", round, stats.Processed, ok)
		}
		if stats.Processed+stats.Dropped != senders*perSender {
			t.Fatalf("round %d: processed %d + dropped %d != %d",
				round, stats.Processed, stats.Dropped, senders*perSender)
		}
		if stats.Queued != 0 {
			t.Fatalf("round %d: %d messages left in the mailbox", round, stats.Queued)
		}
	}
}
