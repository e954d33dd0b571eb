// Package engine wires the job subsystem together and provides the
// application-level API for registering handlers, enqueuing work and
// managing schedules.
//
// The engine package sits above every subsystem package and below the
// application layer. It owns the handler registry, the extension registry,
// the cancellation manager, the dispatcher, the scheduler, the persistence
// agent and the history index.
//
// # Building an Engine
//
//	cfg := jobs.DefaultConfig()
//	cfg.Concurrency = 20
//
//	eng, err := engine.New(cfg,
//	    engine.WithStore(redisStore),
//	    engine.WithExtension(myExtension),
//	    engine.WithMiddleware(myMiddleware),
//	)
//
// # Registering Work
//
//	engine.RegisterTyped(eng, "send-email", func(ctx context.Context, in EmailInput) error {
//	    return mailer.Send(ctx, in)
//	})
//
//	spec, _ := schedule.NewCron("0 0 9 * * MON-FRI")
//	eng.RegisterScheduled(ctx, "daily-report", nil, spec)
//
// # Enqueuing Jobs
//
//	engine.EnqueueTyped(ctx, eng, "send-email", EmailInput{To: "user@example.com"},
//	    job.WithPriority(10),
//	    job.WithMaxRetries(5),
//	)
//
// # Shutdown
//
// [Engine.Shutdown] stops admission, cancels every live job and waits up
// to the graceful timeout for handlers to return. The result reports how
// many jobs were still registered when the timeout elapsed.
//
// # Options
//
//   - [WithStore] sets the durable store (in-memory by default)
//   - [WithExtension] registers a lifecycle extension
//   - [WithMiddleware] adds a middleware to the execution chain
//   - [WithBackoff] overrides the configured retry backoff
//   - [WithTracerProvider] and [WithMeterProvider] set OpenTelemetry providers
package engine
