// Package observability provides extensions that turn job lifecycle hooks
// into telemetry.
//
//   - [Metrics] records OpenTelemetry counters, histograms and the queue
//     depth gauge.
//   - [Events] writes one structured slog record per transition.
//   - [Stats] keeps in-process aggregates for the admin stats surface.
//
// Register them on an ext.Registry (the engine does this by default). For
// per-attempt spans and metrics see middleware.Tracing and
// middleware.Metrics.
package observability
