package middleware_test

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	mw "github.com/xraph/jobstore/middleware"
)

func setupTestMeter() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	return reader, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestMetrics_RecordsDuration(t *testing.T) {
	reader, mp := setupTestMeter()
	m := mw.MetricsWithMeter(mp.Meter("test"))

	_ = m(context.Background(), newTestRecord(), func(context.Context) error { return nil })

	metric := findMetric(collectMetrics(t, reader), "jobstore.job.duration")
	if metric == nil {
		t.Fatal("jobstore.job.duration metric not found")
	}
	hist, ok := metric.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("expected Histogram[float64] data type")
	}
	if len(hist.DataPoints) != 1 || hist.DataPoints[0].Count != 1 {
		t.Fatalf("unexpected data points: %+v", hist.DataPoints)
	}
}

func TestMetrics_ExecutionStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status string
	}{
		{"success", nil, "ok"},
		{"failure", errors.New("boom"), "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader, mp := setupTestMeter()
			m := mw.MetricsWithMeter(mp.Meter("test"))

			err := m(context.Background(), newTestRecord(), func(context.Context) error { return tt.err })
			if !errors.Is(err, tt.err) {
				t.Fatalf("expected %v, got %v", tt.err, err)
			}

			metric := findMetric(collectMetrics(t, reader), "jobstore.job.executions")
			if metric == nil {
				t.Fatal("jobstore.job.executions metric not found")
			}
			sum, ok := metric.Data.(metricdata.Sum[int64])
			if !ok || len(sum.DataPoints) != 1 {
				t.Fatalf("unexpected data: %+v", metric.Data)
			}
			dp := sum.DataPoints[0]
			if dp.Value != 1 {
				t.Errorf("value = %d, want 1", dp.Value)
			}
			for key, want := range map[attribute.Key]string{
				"status":   tt.status,
				"job_type": "send-email",
				"queue":    "emails",
			} {
				if v, ok := dp.Attributes.Value(key); !ok || v.AsString() != want {
					t.Errorf("attribute %s = %v, want %q", key, v.Emit(), want)
				}
			}
		})
	}
}
