package observability_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/xraph/jobstore/ext"
	"github.com/xraph/jobstore/id"
	"github.com/xraph/jobstore/job"
	"github.com/xraph/jobstore/observability"
	"github.com/xraph/jobstore/queue"
	"github.com/xraph/jobstore/store/memory"
)

func newTestExtension() (*observability.MetricsExtension, *sdkmetric.ManualReader) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return observability.NewMetricsExtensionWithMeter(mp.Meter("test")), reader
}

func newTestRecord() *job.Record {
	now := time.Now().UTC()
	return &job.Record{
		ID:          id.NewJobID(),
		Queue:       "emails",
		Type:        "send-email",
		ScheduledAt: now,
		EnqueuedAt:  now,
	}
}

// counterValue sums every data point of the named counter.
func counterValue(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s: data is %T, want Sum[int64]", name, m.Data)
			}
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func TestMetricsExtension_Name(t *testing.T) {
	e, _ := newTestExtension()
	if e.Name() != "observability-metrics" {
		t.Errorf("Name() = %q, want observability-metrics", e.Name())
	}
}

func TestMetricsExtension_Hooks(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		metric string
		fire   func(e *observability.MetricsExtension) error
		want   int64
	}{
		{"jobstore.job.enqueued", func(e *observability.MetricsExtension) error {
			return e.OnJobEnqueued(ctx, newTestRecord())
		}, 1},
		{"jobstore.job.completed", func(e *observability.MetricsExtension) error {
			return e.OnJobCompleted(ctx, newTestRecord(), 120*time.Millisecond)
		}, 1},
		{"jobstore.job.failed", func(e *observability.MetricsExtension) error {
			return e.OnJobFailed(ctx, newTestRecord())
		}, 1},
		{"jobstore.job.dead_lettered", func(e *observability.MetricsExtension) error {
			return e.OnJobDeadLettered(ctx, newTestRecord(), "boom")
		}, 1},
		{"jobstore.job.cancelled", func(e *observability.MetricsExtension) error {
			return e.OnJobCancelled(ctx, id.NewJobID())
		}, 1},
		{"jobstore.job.unscheduled", func(e *observability.MetricsExtension) error {
			return e.OnJobUnscheduled(ctx, newTestRecord())
		}, 1},
		{"jobstore.lease.reaped", func(e *observability.MetricsExtension) error {
			return e.OnLeasesReaped(ctx, "emails", 7)
		}, 7},
	}

	for _, tt := range tests {
		t.Run(tt.metric, func(t *testing.T) {
			t.Parallel()
			e, reader := newTestExtension()
			if err := tt.fire(e); err != nil {
				t.Fatalf("hook error: %v", err)
			}
			if got := counterValue(t, reader, tt.metric); got != tt.want {
				t.Errorf("%s = %d, want %d", tt.metric, got, tt.want)
			}
		})
	}
}

func TestMetricsExtension_ThroughQueue(t *testing.T) {
	ctx := context.Background()
	e, reader := newTestExtension()

	reg := ext.NewRegistry(slog.Default())
	reg.Register(e)
	q := queue.New(memory.New(), queue.WithExtensions(reg))

	for range 3 {
		if _, err := q.Enqueue(ctx, "send-email", nil); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	l, err := q.Poll(ctx, []string{"send-email"})
	if err != nil || l == nil {
		t.Fatalf("Poll = %v, %v", l, err)
	}
	if err := l.Complete(ctx); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if got := counterValue(t, reader, "jobstore.job.enqueued"); got != 3 {
		t.Errorf("enqueued = %d, want 3", got)
	}
	if got := counterValue(t, reader, "jobstore.job.leased"); got != 1 {
		t.Errorf("leased = %d, want 1", got)
	}
	if got := counterValue(t, reader, "jobstore.job.completed"); got != 1 {
		t.Errorf("completed = %d, want 1", got)
	}
}
