package middleware_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/xraph/jobs/id"
	"github.com/xraph/jobs/job"
	"github.com/xraph/jobs/middleware"
)

func newTestJob() *job.QueuedJob {
	def := job.NewDefinition("send-email", nil, job.DefaultOptions(), job.WithPriority(7), job.WithMaxRetries(4))
	j := job.New(id.NewJobID(), def, time.Now())
	_ = j.Transition(job.Running(time.Now()))
	_ = j.Transition(job.Retrying(1, time.Now(), time.Now(), "x"))
	_ = j.Transition(job.Pending())
	_ = j.Transition(job.Running(time.Now()))
	return j
}

func TestChain_ExecutionOrder(t *testing.T) {
	var order []string
	trace := func(name string) middleware.Middleware {
		return func(ctx context.Context, _ *job.QueuedJob, next middleware.Handler) error {
			order = append(order, name+"-before")
			err := next(ctx)
			order = append(order, name+"-after")
			return err
		}
	}

	chain := middleware.Chain(trace("mw1"), trace("mw2"))
	err := chain(context.Background(), newTestJob(), func(context.Context) error {
		order = append(order, "handler")
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "mw1-before,mw2-before,handler,mw2-after,mw1-after"
	if got := strings.Join(order, ","); got != want {
		t.Fatalf("order = %s, want %s", got, want)
	}
}

func TestChain_EmptyAndErrors(t *testing.T) {
	want := errors.New("handler error")
	err := middleware.Chain()(context.Background(), newTestJob(), func(context.Context) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("err = %v, want %v", err, want)
	}
}

func TestChain_ContextFlowsThrough(t *testing.T) {
	type key struct{}
	inject := func(ctx context.Context, _ *job.QueuedJob, next middleware.Handler) error {
		return next(context.WithValue(ctx, key{}, "v"))
	}

	var got any
	_ = middleware.Chain(inject)(context.Background(), newTestJob(), func(ctx context.Context) error {
		got = ctx.Value(key{})
		return nil
	})
	if got != "v" {
		t.Fatalf("context value = %v, want v", got)
	}
}

func TestRecover_CatchesPanic(t *testing.T) {
	var buf bytes.Buffer
	mw := middleware.Recover(slog.New(slog.NewTextHandler(&buf, nil)))

	err := mw(context.Background(), newTestJob(), func(context.Context) error {
		panic("test panic")
	})
	if err == nil {
		t.Fatal("expected error from panic recovery")
	}
	if got := err.Error(); got != "panic in job send-email: test panic" {
		t.Errorf("unexpected error message: %q", got)
	}
	if !strings.Contains(buf.String(), "job handler panicked") {
		t.Errorf("panic not logged: %s", buf.String())
	}
}

func TestRecover_PassesThrough(t *testing.T) {
	mw := middleware.Recover(slog.New(slog.DiscardHandler))
	called := false
	err := mw(context.Background(), newTestJob(), func(context.Context) error {
		called = true
		return nil
	})
	if err != nil || !called {
		t.Fatalf("err = %v, called = %v", err, called)
	}
}

func TestLogging(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{"success", nil, "job attempt succeeded"},
		{"failure", errors.New("fail"), "job attempt failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			mw := middleware.Logging(slog.New(slog.NewTextHandler(&buf, nil)))

			err := mw(context.Background(), newTestJob(), func(context.Context) error {
				return tt.err
			})
			if !errors.Is(err, tt.err) {
				t.Fatalf("err = %v, want %v", err, tt.err)
			}
			out := buf.String()
			if !strings.Contains(out, tt.wantMsg) || !strings.Contains(out, "job_type=send-email") {
				t.Fatalf("unexpected log output: %s", out)
			}
			if !strings.Contains(out, "attempt=2") {
				t.Fatalf("attempt missing from log output: %s", out)
			}
		})
	}
}
