package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/jobs/engine"
)

type sleepPayload struct {
	Duration string `json:"duration"`
}

type logPayload struct {
	Message string `json:"message"`
}

// registerBuiltins installs the handlers available in a bare server.
func registerBuiltins(eng *engine.Engine) {
	engine.RegisterTyped(eng, "sleep", sleep)
	engine.RegisterTyped(eng, "log", logMessage)
}

func logMessage(ctx context.Context, p logPayload) error {
	slog.InfoContext(ctx, "log job", slog.String("message", p.Message))
	return nil
}

func sleep(ctx context.Context, p sleepPayload) error {
	d, err := time.ParseDuration(p.Duration)
	if err != nil {
		return fmt.Errorf("sleep: %w", err)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
