package observability

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/xraph/jobs/ext"
	"github.com/xraph/jobs/job"
)

var (
	_ ext.Extension       = (*Stats)(nil)
	_ ext.JobEnqueued     = (*Stats)(nil)
	_ ext.JobRejected     = (*Stats)(nil)
	_ ext.JobRetrying     = (*Stats)(nil)
	_ ext.JobCompleted    = (*Stats)(nil)
	_ ext.JobFailed       = (*Stats)(nil)
	_ ext.JobDeadLettered = (*Stats)(nil)
	_ ext.JobCancelled    = (*Stats)(nil)
	_ ext.StatusChanged   = (*Stats)(nil)
)

// Snapshot is a point-in-time view of Stats. Durations are milliseconds
// over the most recent samples; SuccessRate is a percentage and is 100
// before any job has finished.
type Snapshot struct {
	Enqueued     int64   `json:"total_enqueued" yaml:"total_enqueued"`
	Rejected     int64   `json:"rejected" yaml:"rejected"`
	Running      int64   `json:"running" yaml:"running"`
	Pending      int64   `json:"pending" yaml:"pending"`
	Completed    int64   `json:"completed" yaml:"completed"`
	Failed       int64   `json:"failed" yaml:"failed"`
	Retried      int64   `json:"retried" yaml:"retried"`
	DeadLettered int64   `json:"dead_letter" yaml:"dead_letter"`
	Cancelled    int64   `json:"cancelled" yaml:"cancelled"`
	AvgMS        float64 `json:"avg_execution_ms" yaml:"avg_execution_ms"`
	P50MS        float64 `json:"p50_execution_ms" yaml:"p50_execution_ms"`
	P95MS        float64 `json:"p95_execution_ms" yaml:"p95_execution_ms"`
	P99MS        float64 `json:"p99_execution_ms" yaml:"p99_execution_ms"`
	SuccessRate  float64 `json:"success_rate" yaml:"success_rate"`
}

// Stats aggregates lifecycle counts and a sliding window of execution
// times.
type Stats struct {
	mu      sync.Mutex
	snap    Snapshot
	samples []time.Duration
	next    int
	full    bool
}

// NewStats creates a Stats extension keeping the last window execution
// times (1000 when window < 1).
func NewStats(window int) *Stats {
	if window < 1 {
		window = 1000
	}
	return &Stats{samples: make([]time.Duration, window)}
}

// Name implements ext.Extension.
func (s *Stats) Name() string { return "observability-stats" }

func (s *Stats) update(fn func(*Snapshot)) error {
	s.mu.Lock()
	fn(&s.snap)
	s.mu.Unlock()
	return nil
}

func (s *Stats) OnJobEnqueued(context.Context, *job.QueuedJob) error {
	return s.update(func(sn *Snapshot) { sn.Enqueued++ })
}

func (s *Stats) OnJobRejected(context.Context, job.Definition, error) error {
	return s.update(func(sn *Snapshot) { sn.Rejected++ })
}

func (s *Stats) OnJobRetrying(context.Context, *job.QueuedJob, time.Time, error) error {
	return s.update(func(sn *Snapshot) { sn.Retried++ })
}

func (s *Stats) OnJobCompleted(_ context.Context, _ *job.QueuedJob, elapsed time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Completed++
	s.samples[s.next] = elapsed
	s.next = (s.next + 1) % len(s.samples)
	if s.next == 0 {
		s.full = true
	}
	return nil
}

func (s *Stats) OnJobFailed(context.Context, *job.QueuedJob, error) error {
	return s.update(func(sn *Snapshot) { sn.Failed++ })
}

func (s *Stats) OnJobDeadLettered(context.Context, *job.QueuedJob, error) error {
	return s.update(func(sn *Snapshot) { sn.DeadLettered++ })
}

func (s *Stats) OnJobCancelled(context.Context, *job.QueuedJob) error {
	return s.update(func(sn *Snapshot) { sn.Cancelled++ })
}

// OnStatusChanged tracks the running and pending gauges.
func (s *Stats) OnStatusChanged(_ context.Context, j *job.QueuedJob, from job.State) error {
	return s.update(func(sn *Snapshot) {
		switch from {
		case job.StateRunning:
			sn.Running--
		case job.StatePending:
			sn.Pending--
		}
		switch j.Status.State {
		case job.StateRunning:
			sn.Running++
		case job.StatePending:
			sn.Pending++
		}
	})
}

// Snapshot returns the current aggregates.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	out := s.snap
	n := s.next
	if s.full {
		n = len(s.samples)
	}
	window := slices.Clone(s.samples[:n])
	s.mu.Unlock()

	out.SuccessRate = 100
	if finished := out.Completed + out.Failed; finished > 0 {
		out.SuccessRate = float64(out.Completed) * 100 / float64(finished)
	}
	if len(window) == 0 {
		return out
	}

	slices.Sort(window)
	var total time.Duration
	for _, d := range window {
		total += d
	}
	out.AvgMS = ms(total / time.Duration(len(window)))
	out.P50MS = ms(percentile(window, 50))
	out.P95MS = ms(percentile(window, 95))
	out.P99MS = ms(percentile(window, 99))
	return out
}

// percentile returns the nearest-rank percentile of sorted.
func percentile(sorted []time.Duration, p int) time.Duration {
	rank := (p*len(sorted) + 99) / 100
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
