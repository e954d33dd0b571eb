package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/xraph/jobs"
	"github.com/xraph/jobs/id"
	"github.com/xraph/jobs/job"
)

func newJob(name string, priority int) *job.QueuedJob {
	def := job.Definition{Type: name, Priority: priority}
	return job.New(id.NewJobID(), def, time.Now())
}

// ---------------------------------------------------------------------------
// Ordering
// ---------------------------------------------------------------------------

func TestQueue_PriorityThenFIFO(t *testing.T) {
	q := New(0)
	for _, j := range []*job.QueuedJob{
		newJob("low-1", 0),
		newJob("high-1", 10),
		newJob("low-2", 0),
		newJob("mid-1", 5),
		newJob("high-2", 10),
		newJob("neg-1", -3),
	} {
		if err := q.Push(j); err != nil {
			t.Fatalf("Push: %v", err)
		}
	}

	want := []string{"high-1", "high-2", "mid-1", "low-1", "low-2", "neg-1"}
	for i, w := range want {
		j, ok := q.TryPop()
		if !ok {
			t.Fatalf("pop %d: queue empty", i)
		}
		if j.Type != w {
			t.Errorf("pop %d = %s, want %s", i, j.Type, w)
		}
	}
	if _, ok := q.TryPop(); ok {
		t.Error("expected empty queue")
	}
}

func TestQueue_FIFOWithinPriorityAtScale(t *testing.T) {
	q := New(0)
	for i := range 500 {
		_ = q.Push(newJob(fmt.Sprintf("%04d", i), i%3))
	}
	last := map[int]string{}
	for q.Len() > 0 {
		j, _ := q.TryPop()
		if prev, ok := last[j.Priority]; ok && prev > j.Type {
			t.Fatalf("priority %d: %s served after %s", j.Priority, j.Type, prev)
		}
		last[j.Priority] = j.Type
	}
}

// ---------------------------------------------------------------------------
// Capacity
// ---------------------------------------------------------------------------

func TestQueue_RejectsWhenFull(t *testing.T) {
	q := New(2)
	_ = q.Push(newJob("a", 0))
	_ = q.Push(newJob("b", 0))

	if err := q.Push(newJob("c", 0)); !errors.Is(err, jobs.ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if err := q.PushForce(newJob("retry", 0)); err != nil {
		t.Fatalf("PushForce: %v", err)
	}
	if q.Len() != 3 {
		t.Errorf("Len() = %d, want 3", q.Len())
	}

	_, _ = q.TryPop()
	_, _ = q.TryPop()
	if err := q.Push(newJob("d", 0)); err != nil {
		t.Errorf("Push after pops: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Blocking pop
// ---------------------------------------------------------------------------

func TestQueue_PopBlocksUntilPush(t *testing.T) {
	q := New(0)
	got := make(chan *job.QueuedJob, 1)
	go func() {
		j, err := q.Pop(context.Background())
		if err == nil {
			got <- j
		}
	}()

	time.Sleep(10 * time.Millisecond)
	want := newJob("late", 0)
	_ = q.Push(want)

	select {
	case j := <-got:
		if j.ID != want.ID {
			t.Errorf("got %s, want %s", j.ID, want.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("Pop did not return after Push")
	}
}

func TestQueue_PopHonorsContextAndClose(t *testing.T) {
	q := New(0)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := q.Pop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}

	errc := make(chan error, 1)
	go func() {
		_, err := q.Pop(context.Background())
		errc <- err
	}()
	time.Sleep(10 * time.Millisecond)
	q.Close()
	select {
	case err := <-errc:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("expected ErrClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Pop did not return after Close")
	}

	if err := q.Push(newJob("x", 0)); !errors.Is(err, ErrClosed) {
		t.Errorf("Push after Close: expected ErrClosed, got %v", err)
	}
}

func TestQueue_WakesEveryWaiter(t *testing.T) {
	q := New(0)
	const workers = 4

	var wg sync.WaitGroup
	got := make(chan string, workers)
	release := make(chan struct{})
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			j, err := q.Pop(context.Background())
			if err != nil {
				return
			}
			got <- j.Type
			<-release
		}()
	}

	time.Sleep(10 * time.Millisecond)
	for i := range workers {
		_ = q.Push(newJob(fmt.Sprint(i), 0))
	}

	for range workers {
		select {
		case <-got:
		case <-time.After(time.Second):
			t.Fatal("a waiting worker was never woken")
		}
	}
	close(release)
	wg.Wait()
}

// ---------------------------------------------------------------------------
// Remove / Drain / Snapshot
// ---------------------------------------------------------------------------

func TestQueue_Remove(t *testing.T) {
	q := New(0)
	a, b, c := newJob("a", 1), newJob("b", 2), newJob("c", 3)
	_ = q.Push(a)
	_ = q.Push(b)
	_ = q.Push(c)

	if removed, ok := q.Remove(b.ID); !ok || removed != b {
		t.Fatal("Remove did not return the pending job")
	}
	if _, ok := q.Remove(b.ID); ok {
		t.Fatal("second Remove succeeded")
	}

	first, _ := q.TryPop()
	second, _ := q.TryPop()
	if first != c || second != a {
		t.Errorf("order after remove: %s, %s", first.Type, second.Type)
	}
}

func TestQueue_DrainAndSnapshot(t *testing.T) {
	q := New(0)
	_ = q.Push(newJob("a", 0))
	_ = q.Push(newJob("b", 9))

	snap := q.Snapshot()
	if len(snap) != 2 || snap[0].Type != "b" {
		t.Fatalf("Snapshot() = %v", snap)
	}

	drained := q.Drain()
	if len(drained) != 2 || drained[0].Type != "b" || drained[1].Type != "a" {
		t.Fatalf("Drain() returned wrong order")
	}
	if q.Len() != 0 {
		t.Errorf("Len() after Drain = %d", q.Len())
	}
	if _, ok := q.Remove(drained[0].ID); ok {
		t.Error("Remove found a drained job")
	}
}
