package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/jobs"
	"github.com/xraph/jobs/id"
	"github.com/xraph/jobs/job"
	"github.com/xraph/jobs/persistence"
)

// MoveToDeadLetter writes the dlq:{id} hash without expiry and moves the
// id from the pending list to the dead letter list.
func (s *Store) MoveToDeadLetter(ctx context.Context, dl *persistence.DeadLetter) error {
	jID := dl.Job.ID.String()
	key := s.keys.deadLetter(jID)
	list := s.keys.list(persistence.ListDeadLetter)

	payload, err := json.Marshal(dl.Job)
	if err != nil {
		return fmt.Errorf("jobs/redis: encode dead letter: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key,
		"job", string(payload),
		"error", dl.Error,
		"moved_at", formatTime(dl.MovedAt),
	)
	pipe.Persist(ctx, key)
	pipe.LRem(ctx, s.keys.list(persistence.ListPending), 0, jID)
	pipe.LRem(ctx, list, 0, jID)
	pipe.LPush(ctx, list, jID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("jobs/redis: move to dead letter: %w", err)
	}
	return nil
}

// GetDeadLetter reads one dlq:{id} hash.
func (s *Store) GetDeadLetter(ctx context.Context, jobID id.JobID) (*persistence.DeadLetter, error) {
	vals, err := s.client.HGetAll(ctx, s.keys.deadLetter(jobID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("jobs/redis: get dead letter: %w", err)
	}
	if len(vals) == 0 {
		return nil, jobs.ErrDeadLetterNotFound
	}
	return decodeDeadLetter(vals)
}

// ListDeadLetters reads up to limit dead letters, newest first. Ids whose
// hash disappeared are skipped.
func (s *Store) ListDeadLetters(ctx context.Context, limit int) ([]*persistence.DeadLetter, error) {
	ids, err := s.ListIDs(ctx, persistence.ListDeadLetter, limit)
	if err != nil {
		return nil, err
	}

	pipe := s.client.Pipeline()
	cmds := make([]*goredis.MapStringStringCmd, len(ids))
	for i, jID := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.keys.deadLetter(jID.String()))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("jobs/redis: list dead letters: %w", err)
	}

	out := make([]*persistence.DeadLetter, 0, len(ids))
	for i, cmd := range cmds {
		vals := cmd.Val()
		if len(vals) == 0 {
			continue
		}
		dl, decErr := decodeDeadLetter(vals)
		if decErr != nil {
			s.logger.Warn("skipping undecodable dead letter",
				"job_id", ids[i].String(),
				"error", decErr.Error(),
			)
			continue
		}
		out = append(out, dl)
	}
	return out, nil
}

// RemoveDeadLetter deletes one dead letter.
func (s *Store) RemoveDeadLetter(ctx context.Context, jobID id.JobID) error {
	jID := jobID.String()
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.keys.deadLetter(jID))
	pipe.LRem(ctx, s.keys.list(persistence.ListDeadLetter), 0, jID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("jobs/redis: remove dead letter: %w", err)
	}
	return nil
}

// ClearDeadLetters deletes every dead letter on the list.
func (s *Store) ClearDeadLetters(ctx context.Context) (int, error) {
	list := s.keys.list(persistence.ListDeadLetter)
	raw, err := s.client.LRange(ctx, list, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("jobs/redis: clear dead letters: %w", err)
	}

	pipe := s.client.TxPipeline()
	for _, jID := range raw {
		pipe.Del(ctx, s.keys.deadLetter(jID))
	}
	pipe.Del(ctx, list)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("jobs/redis: clear dead letters: %w", err)
	}
	return len(raw), nil
}

func decodeDeadLetter(vals map[string]string) (*persistence.DeadLetter, error) {
	var j job.QueuedJob
	if err := json.Unmarshal([]byte(vals["job"]), &j); err != nil {
		return nil, fmt.Errorf("jobs/redis: decode dead letter: %w", err)
	}
	return &persistence.DeadLetter{
		Job:     &j,
		Error:   vals["error"],
		MovedAt: parseTime(vals["moved_at"]),
	}, nil
}
