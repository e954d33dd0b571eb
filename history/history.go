// Package history keeps a bounded, in-memory index of finished jobs for
// operational visibility. It is a best-effort cache; the durable store is
// the system of record.
package history

import (
	"strings"
	"sync"
	"time"

	"github.com/xraph/jobs/id"
)

// Status is the outcome of a finished job.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Record is an immutable snapshot taken when a job reaches a terminal state.
type Record struct {
	JobID      id.JobID  `json:"job_id"`
	JobType    string    `json:"job_type"`
	Status     Status    `json:"status"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	FinishedAt time.Time `json:"finished_at"`
	DurationMS int64     `json:"duration_ms"`
	Attempts   int       `json:"attempts"`
	Error      string    `json:"error,omitempty"`
}

// matches reports whether q (already lower-cased) is a substring of the
// job type, the job id or the error message.
func (r *Record) matches(q string) bool {
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(r.JobType), q) ||
		strings.Contains(r.JobID.String(), q) ||
		strings.Contains(strings.ToLower(r.Error), q)
}

// Page is one page of a history query, most recent first.
type Page struct {
	Records  []Record `json:"records"`
	Total    int      `json:"total"`
	Page     int      `json:"page"`
	PageSize int      `json:"page_size"`
	HasPrev  bool     `json:"has_prev"`
	HasNext  bool     `json:"has_next"`
}

// DefaultCapacity is used when New is given a non-positive capacity.
const DefaultCapacity = 1000

// Index is a fixed-capacity ring buffer of records. Adding to a full index
// evicts the oldest record. It is safe for concurrent use.
type Index struct {
	mu   sync.RWMutex
	buf  []Record
	head int // position of the oldest record
	n    int
}

// New creates an index holding at most capacity records.
func New(capacity int) *Index {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Index{buf: make([]Record, capacity)}
}

// Add inserts r, evicting the oldest record when full.
func (x *Index) Add(r Record) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.n < len(x.buf) {
		x.buf[(x.head+x.n)%len(x.buf)] = r
		x.n++
		return
	}
	x.buf[x.head] = r
	x.head = (x.head + 1) % len(x.buf)
}

// Len returns the number of records held.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.n
}

// Capacity returns the maximum number of records held.
func (x *Index) Capacity() int { return len(x.buf) }

// at returns the i-th newest record. The caller holds the lock.
func (x *Index) at(i int) *Record {
	return &x.buf[(x.head+x.n-1-i)%len(x.buf)]
}

// GetPage filters by a case-insensitive substring of job type, job id or
// error (an empty query matches everything) and returns the 1-indexed page
// of the most-recent-first result. A page past the end is empty but still
// reports the total. Page and pageSize below 1 are treated as 1.
func (x *Index) GetPage(page, pageSize int, query string) Page {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 1
	}
	q := strings.ToLower(strings.TrimSpace(query))

	x.mu.RLock()
	defer x.mu.RUnlock()

	// Offsets past the held records are clamped so the product cannot
	// overflow.
	start := x.n + 1
	if page-1 <= x.n/pageSize {
		start = (page - 1) * pageSize
	}

	records := make([]Record, 0, min(pageSize, x.n))
	total := 0
	for i := range x.n {
		r := x.at(i)
		if !r.matches(q) {
			continue
		}
		if total >= start && len(records) < pageSize {
			records = append(records, *r)
		}
		total++
	}

	return Page{
		Records:  records,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		HasPrev:  page > 1,
		HasNext:  start < total && total-start > pageSize,
	}
}

// Find returns the newest record for jobID.
func (x *Index) Find(jobID id.JobID) (Record, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	for i := range x.n {
		if r := x.at(i); r.JobID == jobID {
			return *r, true
		}
	}
	return Record{}, false
}

// Recent returns up to limit records with the given status, newest first.
// An empty status matches all records; a non-positive limit means no limit.
func (x *Index) Recent(status Status, limit int) []Record {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]Record, 0)
	for i := range x.n {
		if limit > 0 && len(out) >= limit {
			break
		}
		if r := x.at(i); status == "" || r.Status == status {
			out = append(out, *r)
		}
	}
	return out
}
