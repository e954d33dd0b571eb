// Package middleware provides composable middleware around job handlers.
//
// A [Middleware] wraps one attempt of a job. Middleware are composed with
// [Chain]; the first middleware in the list is the outermost wrapper.
//
//	// recover → logging → tracing → metrics → handler
//	chain := middleware.Chain(
//	    middleware.Recover(logger),
//	    middleware.Logging(logger),
//	    middleware.Tracing(),
//	    middleware.Metrics(),
//	)
//
// # Built-in Middleware
//
//   - [Recover]: converts handler panics into errors
//   - [Logging]: logs type, id, attempt, duration and outcome
//   - [Tracing]: wraps the attempt in an OpenTelemetry span
//   - [Metrics]: records per-type duration and execution counters
//
// The attempt deadline and cancellation are owned by the dispatcher, not
// by middleware: the context handed to the chain is already cancelled when
// the job's cancellation token fires.
package middleware
