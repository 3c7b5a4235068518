// Package observability records queue lifecycle metrics with OpenTelemetry.
// Register MetricsExtension with the ext registry to count enqueues,
// checkouts, completions, failures, dead-letters, cancellations and reaped
// leases per queue and job type.
package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/jobstore/ext"
	"github.com/xraph/jobstore/id"
	"github.com/xraph/jobstore/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension       = (*MetricsExtension)(nil)
	_ ext.JobEnqueued     = (*MetricsExtension)(nil)
	_ ext.JobLeased       = (*MetricsExtension)(nil)
	_ ext.JobCompleted    = (*MetricsExtension)(nil)
	_ ext.JobFailed       = (*MetricsExtension)(nil)
	_ ext.JobDeadLettered = (*MetricsExtension)(nil)
	_ ext.JobCancelled    = (*MetricsExtension)(nil)
	_ ext.JobUnscheduled  = (*MetricsExtension)(nil)
	_ ext.LeasesReaped    = (*MetricsExtension)(nil)
)

const meterName = "github.com/xraph/jobstore/observability"

// MetricsExtension counts lifecycle events.
type MetricsExtension struct {
	enqueued     metric.Int64Counter
	leased       metric.Int64Counter
	completed    metric.Int64Counter
	failed       metric.Int64Counter
	deadLettered metric.Int64Counter
	cancelled    metric.Int64Counter
	unscheduled  metric.Int64Counter
	reaped       metric.Int64Counter
	queueWait    metric.Float64Histogram
	leaseHeld    metric.Float64Histogram
}

// NewMetricsExtension creates a MetricsExtension on the global MeterProvider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.GetMeterProvider().Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension on meter.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	counter := func(name, desc string) metric.Int64Counter {
		c, _ := meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit("{job}"))
		return c
	}
	queueWait, _ := meter.Float64Histogram("jobstore.job.queue_wait",
		metric.WithDescription("Time between a job becoming eligible and its checkout"),
		metric.WithUnit("s"),
	)
	leaseHeld, _ := meter.Float64Histogram("jobstore.lease.held",
		metric.WithDescription("Time a lease was held before completion"),
		metric.WithUnit("s"),
	)

	return &MetricsExtension{
		enqueued:     counter("jobstore.job.enqueued", "Jobs enqueued"),
		leased:       counter("jobstore.job.leased", "Jobs checked out"),
		completed:    counter("jobstore.job.completed", "Leases completed"),
		failed:       counter("jobstore.job.failed", "Leases failed back to the queue"),
		deadLettered: counter("jobstore.job.dead_lettered", "Jobs moved to the dead-letter store"),
		cancelled:    counter("jobstore.job.cancelled", "Waiting jobs cancelled"),
		unscheduled:  counter("jobstore.job.unscheduled", "Waiting jobs unscheduled"),
		reaped:       counter("jobstore.lease.reaped", "Expired leases returned to the queue"),
		queueWait:    queueWait,
		leaseHeld:    leaseHeld,
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

func recordAttrs(r *job.Record) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("queue", r.Queue),
		attribute.String("job_type", r.Type),
	)
}

// ── Job lifecycle hooks ─────────────────────────────

// OnJobEnqueued implements ext.JobEnqueued.
func (m *MetricsExtension) OnJobEnqueued(ctx context.Context, r *job.Record) error {
	m.enqueued.Add(ctx, 1, recordAttrs(r))
	return nil
}

// OnJobLeased implements ext.JobLeased.
func (m *MetricsExtension) OnJobLeased(ctx context.Context, r *job.Record) error {
	m.leased.Add(ctx, 1, recordAttrs(r))
	if r.LeasedAt != nil {
		if wait := r.LeasedAt.Sub(r.ScheduledAt); wait > 0 {
			m.queueWait.Record(ctx, wait.Seconds(), recordAttrs(r))
		}
	}
	return nil
}

// OnJobCompleted implements ext.JobCompleted.
func (m *MetricsExtension) OnJobCompleted(ctx context.Context, r *job.Record, elapsed time.Duration) error {
	m.completed.Add(ctx, 1, recordAttrs(r))
	m.leaseHeld.Record(ctx, elapsed.Seconds(), recordAttrs(r))
	return nil
}

// OnJobFailed implements ext.JobFailed.
func (m *MetricsExtension) OnJobFailed(ctx context.Context, r *job.Record) error {
	m.failed.Add(ctx, 1, recordAttrs(r))
	return nil
}

// OnJobDeadLettered implements ext.JobDeadLettered.
func (m *MetricsExtension) OnJobDeadLettered(ctx context.Context, r *job.Record, _ string) error {
	m.deadLettered.Add(ctx, 1, recordAttrs(r))
	return nil
}

// OnJobCancelled implements ext.JobCancelled. Only the ID is known.
func (m *MetricsExtension) OnJobCancelled(ctx context.Context, _ id.JobID) error {
	m.cancelled.Add(ctx, 1)
	return nil
}

// OnJobUnscheduled implements ext.JobUnscheduled.
func (m *MetricsExtension) OnJobUnscheduled(ctx context.Context, r *job.Record) error {
	m.unscheduled.Add(ctx, 1, recordAttrs(r))
	return nil
}

// OnLeasesReaped implements ext.LeasesReaped.
func (m *MetricsExtension) OnLeasesReaped(ctx context.Context, queue string, count int64) error {
	m.reaped.Add(ctx, count, metric.WithAttributes(attribute.String("queue", queue)))
	return nil
}
