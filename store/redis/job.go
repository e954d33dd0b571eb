package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/jobs"
	"github.com/xraph/jobs/id"
	"github.com/xraph/jobs/job"
	"github.com/xraph/jobs/persistence"
)

// SaveJob writes the job hash, refreshes its expiry and keeps non-terminal
// jobs on the pending list.
func (s *Store) SaveJob(ctx context.Context, j *job.QueuedJob) error {
	jID := j.ID.String()
	key := s.keys.job(jID)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, jobToMap(j))
	s.expire(ctx, pipe, key)
	pipe.LRem(ctx, s.keys.list(persistence.ListPending), 0, jID)
	if !j.Status.State.Terminal() {
		pipe.LPush(ctx, s.keys.list(persistence.ListPending), jID)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("jobs/redis: save job: %w", err)
	}
	return nil
}

// MarkCompleted sets status and execution_time_ms and moves the id from
// the pending list to the completed list.
func (s *Store) MarkCompleted(ctx context.Context, jobID id.JobID, at time.Time, executionTime time.Duration) error {
	jID := jobID.String()
	key := s.keys.job(jID)
	completed := s.keys.list(persistence.ListCompleted)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key,
		"id", jID,
		"status", string(job.StateCompleted),
		"execution_time_ms", strconv.FormatInt(executionTime.Milliseconds(), 10),
		"error", "",
		"updated_at", formatTime(at),
	)
	s.expire(ctx, pipe, key)
	pipe.LRem(ctx, s.keys.list(persistence.ListPending), 0, jID)
	pipe.LRem(ctx, completed, 0, jID)
	pipe.LPush(ctx, completed, jID)
	if s.completedLimit > 0 {
		pipe.LTrim(ctx, completed, 0, s.completedLimit-1)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("jobs/redis: mark completed: %w", err)
	}
	return nil
}

// MarkFailed sets status, attempts and error.
func (s *Store) MarkFailed(ctx context.Context, jobID id.JobID, at time.Time, attempts int, errMsg string) error {
	jID := jobID.String()
	key := s.keys.job(jID)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key,
		"id", jID,
		"status", string(job.StateFailed),
		"attempts", strconv.Itoa(attempts),
		"error", errMsg,
		"updated_at", formatTime(at),
	)
	s.expire(ctx, pipe, key)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("jobs/redis: mark failed: %w", err)
	}
	return nil
}

// MarkCancelled sets status and drops the id from the pending list.
func (s *Store) MarkCancelled(ctx context.Context, jobID id.JobID, at time.Time) error {
	jID := jobID.String()
	key := s.keys.job(jID)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key,
		"id", jID,
		"status", string(job.StateCancelled),
		"updated_at", formatTime(at),
	)
	s.expire(ctx, pipe, key)
	pipe.LRem(ctx, s.keys.list(persistence.ListPending), 0, jID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("jobs/redis: mark cancelled: %w", err)
	}
	return nil
}

// GetJob reads a job hash.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*persistence.Record, error) {
	vals, err := s.client.HGetAll(ctx, s.keys.job(jobID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("jobs/redis: get job: %w", err)
	}
	if len(vals) == 0 {
		return nil, jobs.ErrUnknownJob
	}
	return mapToRecord(jobID, vals), nil
}

// ListIDs reads an id list, newest first.
func (s *Store) ListIDs(ctx context.Context, list persistence.List, limit int) ([]id.JobID, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	raw, err := s.client.LRange(ctx, s.keys.list(list), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("jobs/redis: list %s: %w", list, err)
	}
	out := make([]id.JobID, 0, len(raw))
	for _, r := range raw {
		jID, parseErr := id.ParseJobID(r)
		if parseErr != nil {
			s.logger.Warn("skipping malformed job id", "list", string(list), "value", r)
			continue
		}
		out = append(out, jID)
	}
	return out, nil
}

// expire queues the retention TTL for key on pipe.
func (s *Store) expire(ctx context.Context, pipe goredis.Pipeliner, key string) {
	if s.retention > 0 {
		pipe.Expire(ctx, key, s.retention)
	}
}

// ──────────────────────────────────────────────────
// Encoding helpers
// ──────────────────────────────────────────────────

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s) //nolint:errcheck // best-effort parse from trusted Redis data
	return t
}

func jobToMap(j *job.QueuedJob) map[string]any {
	return map[string]any{
		"id":          j.ID.String(),
		"job_type":    j.Type,
		"priority":    strconv.Itoa(j.Priority),
		"max_retries": strconv.Itoa(j.MaxRetries),
		"timeout_ms":  strconv.FormatInt(j.Timeout.Milliseconds(), 10),
		"status":      string(j.Status.State),
		"attempts":    strconv.Itoa(j.Attempt),
		"error":       j.Status.Error,
		"enqueued_at": formatTime(j.EnqueuedAt),
		"updated_at":  formatTime(time.Now()),
	}
}

func mapToRecord(jobID id.JobID, m map[string]string) *persistence.Record {
	return &persistence.Record{
		ID:              jobID,
		Type:            m["job_type"],
		Priority:        atoi(m["priority"]),
		MaxRetries:      atoi(m["max_retries"]),
		Timeout:         time.Duration(atoi64(m["timeout_ms"])) * time.Millisecond,
		Status:          job.State(m["status"]),
		Attempts:        atoi(m["attempts"]),
		Error:           m["error"],
		ExecutionTimeMS: atoi64(m["execution_time_ms"]),
		EnqueuedAt:      parseTime(m["enqueued_at"]),
		UpdatedAt:       parseTime(m["updated_at"]),
	}
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s) //nolint:errcheck // best-effort parse from trusted Redis data
	return n
}

func atoi64(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64) //nolint:errcheck // best-effort parse from trusted Redis data
	return n
}
