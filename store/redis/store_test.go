package redis_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/jobs"
	"github.com/xraph/jobs/id"
	"github.com/xraph/jobs/job"
	"github.com/xraph/jobs/persistence"
	"github.com/xraph/jobs/store/redis"
)

func newStore(t *testing.T, opts ...redis.Option) (*redis.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redis.New(client, opts...), mr
}

func newJob(jobType string) *job.QueuedJob {
	def := job.NewDefinition(jobType, []byte(`{"to":"a@b.c"}`), job.DefaultOptions(), job.WithPriority(5))
	return job.New(id.NewJobID(), def, time.Now().UTC())
}

func TestPing(t *testing.T) {
	s, _ := newStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestSaveJob_LayoutAndTTL(t *testing.T) {
	ctx := context.Background()
	s, mr := newStore(t)
	j := newJob("email")

	for range 2 {
		if err := s.SaveJob(ctx, j); err != nil {
			t.Fatalf("SaveJob: %v", err)
		}
	}

	key := "jobs:job:" + j.ID.String()
	if got := mr.HGet(key, "status"); got != "pending" {
		t.Fatalf("status = %q, want pending", got)
	}
	if got := mr.HGet(key, "job_type"); got != "email" {
		t.Fatalf("job_type = %q, want email", got)
	}
	if ttl := mr.TTL(key); ttl != 7*24*time.Hour {
		t.Fatalf("ttl = %v, want 7 days", ttl)
	}

	pending, err := mr.List("jobs:queue:pending")
	if err != nil {
		t.Fatalf("pending list: %v", err)
	}
	if len(pending) != 1 || pending[0] != j.ID.String() {
		t.Fatalf("pending = %v, want [%s]", pending, j.ID)
	}

	rec, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if rec.Type != "email" || rec.Priority != 5 || rec.Timeout != 5*time.Minute {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestMarkCompleted(t *testing.T) {
	ctx := context.Background()
	s, mr := newStore(t, redis.WithCompletedLimit(2))

	var last *job.QueuedJob
	for range 3 {
		j := newJob("email")
		_ = s.SaveJob(ctx, j)
		if err := s.MarkCompleted(ctx, j.ID, time.Now(), 250*time.Millisecond); err != nil {
			t.Fatalf("MarkCompleted: %v", err)
		}
		last = j
	}
	_ = s.MarkCompleted(ctx, last.ID, time.Now(), 250*time.Millisecond)

	pending, err := s.ListIDs(ctx, persistence.ListPending, 0)
	if err != nil || len(pending) != 0 {
		t.Fatalf("pending = %v, %v; want empty", pending, err)
	}

	completed, _ := mr.List("jobs:queue:completed")
	if len(completed) != 2 || completed[0] != last.ID.String() {
		t.Fatalf("completed = %v, want 2 ids starting with %s", completed, last.ID)
	}

	rec, _ := s.GetJob(ctx, last.ID)
	if rec.Status != job.StateCompleted || rec.ExecutionTimeMS != 250 {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestMarkFailedAndCancelled(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	failed := newJob("a")
	cancelled := newJob("b")
	_ = s.SaveJob(ctx, failed)
	_ = s.SaveJob(ctx, cancelled)

	if err := s.MarkFailed(ctx, failed.ID, time.Now(), 3, "boom"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if err := s.MarkCancelled(ctx, cancelled.ID, time.Now()); err != nil {
		t.Fatalf("MarkCancelled: %v", err)
	}

	rec, _ := s.GetJob(ctx, failed.ID)
	if rec.Status != job.StateFailed || rec.Attempts != 3 || rec.Error != "boom" {
		t.Fatalf("unexpected failed record %+v", rec)
	}
	rec, _ = s.GetJob(ctx, cancelled.ID)
	if rec.Status != job.StateCancelled {
		t.Fatalf("unexpected cancelled record %+v", rec)
	}

	pending, _ := s.ListIDs(ctx, persistence.ListPending, 0)
	if len(pending) != 1 || pending[0] != failed.ID {
		t.Fatalf("pending = %v, want [%s]", pending, failed.ID)
	}
}

func TestGetJob_Unknown(t *testing.T) {
	s, _ := newStore(t)
	if _, err := s.GetJob(context.Background(), id.NewJobID()); !errors.Is(err, jobs.ErrUnknownJob) {
		t.Fatalf("err = %v, want ErrUnknownJob", err)
	}
}

func TestRetentionExpiry(t *testing.T) {
	ctx := context.Background()
	s, mr := newStore(t, redis.WithRetention(time.Hour))

	live := newJob("a")
	dead := newJob("b")
	_ = s.SaveJob(ctx, live)
	_ = s.SaveJob(ctx, dead)
	_ = s.MoveToDeadLetter(ctx, &persistence.DeadLetter{Job: dead, Error: "final", MovedAt: time.Now()})

	if ttl := mr.TTL("jobs:dlq:" + dead.ID.String()); ttl != 0 {
		t.Fatalf("dead letter ttl = %v, want none", ttl)
	}

	mr.FastForward(2 * time.Hour)

	if _, err := s.GetJob(ctx, live.ID); !errors.Is(err, jobs.ErrUnknownJob) {
		t.Fatalf("expired record still readable, err = %v", err)
	}
	if _, err := s.GetDeadLetter(ctx, dead.ID); err != nil {
		t.Fatalf("dead letter expired: %v", err)
	}
}

func TestDeadLetters(t *testing.T) {
	ctx := context.Background()
	s, mr := newStore(t, redis.WithPrefix("app:"))

	first := newJob("a")
	second := newJob("b")
	second.Attempt = 3
	for _, j := range []*job.QueuedJob{first, second} {
		_ = s.SaveJob(ctx, j)
		dl := &persistence.DeadLetter{Job: j, Error: "final error", MovedAt: time.Now()}
		if err := s.MoveToDeadLetter(ctx, dl); err != nil {
			t.Fatalf("MoveToDeadLetter: %v", err)
		}
	}
	_ = s.MoveToDeadLetter(ctx, &persistence.DeadLetter{Job: second, Error: "final error"})

	ids, _ := mr.List("app:queue:dlq")
	if len(ids) != 2 {
		t.Fatalf("dlq list = %v, want 2 ids", ids)
	}

	list, err := s.ListDeadLetters(ctx, 0)
	if err != nil {
		t.Fatalf("ListDeadLetters: %v", err)
	}
	if len(list) != 2 || list[0].Job.ID != second.ID {
		t.Fatalf("unexpected dead letters %+v", list)
	}
	if list[0].Job.Attempt != 3 || string(list[0].Job.Payload) != `{"to":"a@b.c"}` {
		t.Fatalf("snapshot lost fields: %+v", list[0].Job)
	}

	if err := s.RemoveDeadLetter(ctx, first.ID); err != nil {
		t.Fatalf("RemoveDeadLetter: %v", err)
	}
	if _, err := s.GetDeadLetter(ctx, first.ID); !errors.Is(err, jobs.ErrDeadLetterNotFound) {
		t.Fatalf("err = %v, want ErrDeadLetterNotFound", err)
	}

	n, err := s.ClearDeadLetters(ctx)
	if err != nil || n != 1 {
		t.Fatalf("ClearDeadLetters = %d, %v; want 1, nil", n, err)
	}
	if mr.Exists("app:dlq:" + second.ID.String()) {
		t.Fatal("dead letter hash survived clear")
	}
}
