package queue

import (
	"container/heap"
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/xraph/jobs"
	"github.com/xraph/jobs/id"
	"github.com/xraph/jobs/job"
)

// ErrClosed is returned by Push and Pop once the queue is closed.
var ErrClosed = errors.New("queue: closed")

type item struct {
	job   *job.QueuedJob
	seq   uint64
	index int
}

// less orders by priority descending, then enqueue sequence ascending.
func less(a, b *item) bool {
	if a.job.Priority != b.job.Priority {
		return a.job.Priority > b.job.Priority
	}
	return a.seq < b.seq
}

type itemHeap []*item

func (h itemHeap) Len() int           { return len(h) }
func (h itemHeap) Less(i, j int) bool { return less(h[i], h[j]) }
func (h itemHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *itemHeap) Push(x any) {
	it := x.(*item) //nolint:errcheck,forcetypeassert // only *item is ever pushed
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}

// Queue is a bounded priority queue of pending jobs. It is safe for
// concurrent use; a single mutex guards insert and pop.
type Queue struct {
	mu     sync.Mutex
	items  itemHeap
	byID   map[id.JobID]*item
	seq    uint64
	max    int
	closed bool

	ready chan struct{} // holds one wake-up token for blocked Pops
	done  chan struct{}
}

// New creates a queue holding at most maxSize jobs. A non-positive
// maxSize means unbounded.
func New(maxSize int) *Queue {
	return &Queue{
		byID:  make(map[id.JobID]*item),
		max:   maxSize,
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Push admits j, failing with jobs.ErrQueueFull when the queue is at
// capacity.
func (q *Queue) Push(j *job.QueuedJob) error {
	return q.push(j, false)
}

// PushForce admits j regardless of capacity.
func (q *Queue) PushForce(j *job.QueuedJob) error {
	return q.push(j, true)
}

func (q *Queue) push(j *job.QueuedJob, force bool) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	if !force && q.max > 0 && len(q.items) >= q.max {
		q.mu.Unlock()
		return jobs.ErrQueueFull
	}
	q.seq++
	it := &item{job: j, seq: q.seq}
	heap.Push(&q.items, it)
	q.byID[j.ID] = it
	q.mu.Unlock()

	q.wake()
	return nil
}

func (q *Queue) wake() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// TryPop removes and returns the highest-priority job without blocking.
func (q *Queue) TryPop() (*job.QueuedJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	it := heap.Pop(&q.items).(*item) //nolint:errcheck,forcetypeassert // only *item is ever pushed
	delete(q.byID, it.job.ID)
	if len(q.items) > 0 {
		q.wake()
	}
	return it.job, true
}

// Pop blocks until a job is available, ctx ends or the queue is closed.
func (q *Queue) Pop(ctx context.Context) (*job.QueuedJob, error) {
	for {
		if j, ok := q.TryPop(); ok {
			return j, nil
		}
		select {
		case <-q.ready:
		case <-q.done:
			return nil, ErrClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Remove takes jobID out of the queue if it is still pending.
func (q *Queue) Remove(jobID id.JobID) (*job.QueuedJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	it, ok := q.byID[jobID]
	if !ok {
		return nil, false
	}
	heap.Remove(&q.items, it.index)
	delete(q.byID, jobID)
	return it.job, true
}

// Drain removes every pending job and returns them in dequeue order.
func (q *Queue) Drain() []*job.QueuedJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*job.QueuedJob, 0, len(q.items))
	for len(q.items) > 0 {
		it := heap.Pop(&q.items).(*item) //nolint:errcheck,forcetypeassert // only *item is ever pushed
		out = append(out, it.job)
	}
	clear(q.byID)
	return out
}

// Snapshot returns copies of the pending jobs in dequeue order.
func (q *Queue) Snapshot() []*job.QueuedJob {
	q.mu.Lock()
	items := make([]*item, len(q.items))
	copy(items, q.items)
	snaps := make(map[*item]*job.QueuedJob, len(items))
	for _, it := range items {
		snaps[it] = it.job.Snapshot()
	}
	q.mu.Unlock()

	sort.Slice(items, func(i, j int) bool { return less(items[i], items[j]) })
	out := make([]*job.QueuedJob, len(items))
	for i, it := range items {
		out[i] = snaps[it]
	}
	return out
}

// Len returns the number of pending jobs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close rejects further pushes and wakes every blocked Pop. Jobs already
// queued stay available to TryPop and Drain.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}
