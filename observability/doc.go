// Package observability records queue lifecycle metrics with OpenTelemetry.
// MetricsExtension counts enqueues, leases, completions, failures,
// dead-letters, cancellations, unschedules and reaped leases, and measures
// how long jobs wait in the queue and how long leases are held.
//
// Per-attempt spans and handler metrics live in the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability
