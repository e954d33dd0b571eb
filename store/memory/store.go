// Package memory implements persistence.Store in process. It mirrors the
// Redis layout (job records, pending/completed/dead letter id lists and
// dead letter records) and is intended for tests, development and
// single-process deployments that do not need durability.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/xraph/jobs"
	"github.com/xraph/jobs/id"
	"github.com/xraph/jobs/job"
	"github.com/xraph/jobs/persistence"
)

var _ persistence.Store = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithRetention sets how long job records live after their last write.
// Dead letters never expire. Zero disables expiry.
func WithRetention(d time.Duration) Option {
	return func(s *Store) { s.retention = d }
}

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

type entry struct {
	rec       persistence.Record
	expiresAt time.Time
}

// Store is an in-memory persistence.Store. Safe for concurrent access.
type Store struct {
	mu sync.RWMutex

	records     map[id.JobID]*entry
	deadLetters map[id.JobID]*persistence.DeadLetter
	lists       map[persistence.List][]id.JobID // newest first

	retention time.Duration
	now       func() time.Time
}

// New returns a new empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		records:     make(map[id.JobID]*entry),
		deadLetters: make(map[id.JobID]*persistence.DeadLetter),
		lists:       make(map[persistence.List][]id.JobID),
		retention:   7 * 24 * time.Hour,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Ping always succeeds for the memory store.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (s *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Writes
// ──────────────────────────────────────────────────

// SaveJob upserts the record and keeps non-terminal jobs on the pending
// list.
func (s *Store) SaveJob(_ context.Context, j *job.QueuedJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entryLocked(j.ID)
	e.rec.Type = j.Type
	e.rec.Priority = j.Priority
	e.rec.MaxRetries = j.MaxRetries
	e.rec.Timeout = j.Timeout
	e.rec.Status = j.Status.State
	e.rec.Attempts = j.Attempt
	e.rec.Error = j.Status.Error
	e.rec.EnqueuedAt = j.EnqueuedAt
	s.touchLocked(e)

	if j.Status.State.Terminal() {
		s.removeLocked(persistence.ListPending, j.ID)
	} else {
		s.pushLocked(persistence.ListPending, j.ID)
	}
	return nil
}

// MarkCompleted records success.
func (s *Store) MarkCompleted(_ context.Context, jobID id.JobID, _ time.Time, executionTime time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entryLocked(jobID)
	e.rec.Status = job.StateCompleted
	e.rec.Error = ""
	e.rec.ExecutionTimeMS = executionTime.Milliseconds()
	s.touchLocked(e)

	s.removeLocked(persistence.ListPending, jobID)
	s.pushLocked(persistence.ListCompleted, jobID)
	return nil
}

// MarkFailed records a terminal failure.
func (s *Store) MarkFailed(_ context.Context, jobID id.JobID, _ time.Time, attempts int, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entryLocked(jobID)
	e.rec.Status = job.StateFailed
	e.rec.Attempts = attempts
	e.rec.Error = errMsg
	s.touchLocked(e)
	return nil
}

// MarkCancelled records a cancellation.
func (s *Store) MarkCancelled(_ context.Context, jobID id.JobID, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entryLocked(jobID)
	e.rec.Status = job.StateCancelled
	s.touchLocked(e)

	s.removeLocked(persistence.ListPending, jobID)
	return nil
}

// MoveToDeadLetter stores dl without expiry.
func (s *Store) MoveToDeadLetter(_ context.Context, dl *persistence.DeadLetter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *dl
	cp.Job = dl.Job.Snapshot()
	s.deadLetters[dl.Job.ID] = &cp

	s.removeLocked(persistence.ListPending, dl.Job.ID)
	s.pushLocked(persistence.ListDeadLetter, dl.Job.ID)
	return nil
}

// ──────────────────────────────────────────────────
// Reads
// ──────────────────────────────────────────────────

// GetJob returns the job record.
func (s *Store) GetJob(_ context.Context, jobID id.JobID) (*persistence.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.records[jobID]
	if !ok || s.expired(e) {
		return nil, jobs.ErrUnknownJob
	}
	rec := e.rec
	return &rec, nil
}

// ListIDs returns up to limit ids from list, newest first.
func (s *Store) ListIDs(_ context.Context, list persistence.List, limit int) ([]id.JobID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.lists[list]
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return slices.Clone(ids), nil
}

// ListDeadLetters returns up to limit dead letters, newest first.
func (s *Store) ListDeadLetters(_ context.Context, limit int) ([]*persistence.DeadLetter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*persistence.DeadLetter, 0)
	for _, jobID := range s.lists[persistence.ListDeadLetter] {
		if limit > 0 && len(out) >= limit {
			break
		}
		if dl, ok := s.deadLetters[jobID]; ok {
			cp := *dl
			cp.Job = dl.Job.Snapshot()
			out = append(out, &cp)
		}
	}
	return out, nil
}

// GetDeadLetter returns one dead letter.
func (s *Store) GetDeadLetter(_ context.Context, jobID id.JobID) (*persistence.DeadLetter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dl, ok := s.deadLetters[jobID]
	if !ok {
		return nil, jobs.ErrDeadLetterNotFound
	}
	cp := *dl
	cp.Job = dl.Job.Snapshot()
	return &cp, nil
}

// RemoveDeadLetter deletes one dead letter.
func (s *Store) RemoveDeadLetter(_ context.Context, jobID id.JobID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.deadLetters, jobID)
	s.removeLocked(persistence.ListDeadLetter, jobID)
	return nil
}

// ClearDeadLetters deletes every dead letter.
func (s *Store) ClearDeadLetters(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.deadLetters)
	clear(s.deadLetters)
	delete(s.lists, persistence.ListDeadLetter)
	return n, nil
}

// ──────────────────────────────────────────────────
// Helpers (caller holds the lock)
// ──────────────────────────────────────────────────

func (s *Store) entryLocked(jobID id.JobID) *entry {
	e, ok := s.records[jobID]
	if !ok || s.expired(e) {
		e = &entry{rec: persistence.Record{ID: jobID}}
		s.records[jobID] = e
	}
	return e
}

func (s *Store) touchLocked(e *entry) {
	now := s.now()
	e.rec.UpdatedAt = now
	if s.retention > 0 {
		e.expiresAt = now.Add(s.retention)
	}
}

func (s *Store) expired(e *entry) bool {
	return !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt)
}

// pushLocked moves jobID to the head of list, mirroring LREM + LPUSH.
func (s *Store) pushLocked(list persistence.List, jobID id.JobID) {
	s.removeLocked(list, jobID)
	s.lists[list] = append([]id.JobID{jobID}, s.lists[list]...)
}

func (s *Store) removeLocked(list persistence.List, jobID id.JobID) {
	s.lists[list] = slices.DeleteFunc(s.lists[list], func(x id.JobID) bool { return x == jobID })
}
