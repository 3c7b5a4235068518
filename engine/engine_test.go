package engine_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/xraph/jobstore"
	"github.com/xraph/jobstore/codec"
	"github.com/xraph/jobstore/engine"
	"github.com/xraph/jobstore/id"
	"github.com/xraph/jobstore/job"
	"github.com/xraph/jobstore/store/memory"
)

type emailInput struct {
	To      string `json:"to" msgpack:"to"`
	Subject string `json:"subject" msgpack:"subject"`
}

func testConfig() jobstore.Config {
	cfg := jobstore.DefaultConfig()
	cfg.Queue = "emails"
	cfg.Concurrency = 2
	cfg.PollInterval = 10 * time.Millisecond
	return cfg
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func stopEngine(t *testing.T, eng *engine.Engine) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := eng.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

type lifecycleTracker struct {
	enqueued     atomic.Int64
	leased       atomic.Int64
	completed    atomic.Int64
	failed       atomic.Int64
	deadLettered atomic.Int64
	shutdown     atomic.Bool
}

func (e *lifecycleTracker) Name() string { return "lifecycle-tracker" }

func (e *lifecycleTracker) OnJobEnqueued(context.Context, *job.Record) error {
	e.enqueued.Add(1)
	return nil
}

func (e *lifecycleTracker) OnJobLeased(context.Context, *job.Record) error {
	e.leased.Add(1)
	return nil
}

func (e *lifecycleTracker) OnJobCompleted(context.Context, *job.Record, time.Duration) error {
	e.completed.Add(1)
	return nil
}

func (e *lifecycleTracker) OnJobFailed(context.Context, *job.Record) error {
	e.failed.Add(1)
	return nil
}

func (e *lifecycleTracker) OnJobDeadLettered(context.Context, *job.Record, string) error {
	e.deadLettered.Add(1)
	return nil
}

func (e *lifecycleTracker) OnShutdown(context.Context) error {
	e.shutdown.Store(true)
	return nil
}

func TestNew_NilStore(t *testing.T) {
	if _, err := engine.New(nil); !errors.Is(err, jobstore.ErrNoStore) {
		t.Fatalf("New(nil) error = %v, want ErrNoStore", err)
	}
}

func TestEngine_EndToEnd(t *testing.T) {
	tests := []struct {
		name  string
		codec codec.Codec
	}{
		{"json", codec.JSON},
		{"msgpack", codec.Msgpack},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			tracker := &lifecycleTracker{}
			reader := sdkmetric.NewManualReader()
			recorder := tracetest.NewSpanRecorder()

			eng, err := engine.New(memory.New(),
				engine.WithConfig(testConfig()),
				engine.WithCodec(tt.codec),
				engine.WithExtension(tracker),
				engine.WithMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))),
				engine.WithTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))),
			)
			if err != nil {
				t.Fatalf("New: %v", err)
			}

			var got atomic.Value
			sendEmail := job.NewDefinition("send-email", func(_ context.Context, in emailInput) error {
				got.Store(in)
				return nil
			})
			engine.Register(eng, sendEmail)

			want := emailInput{To: "user@example.com", Subject: "hi"}
			if _, err := engine.Enqueue(ctx, eng, sendEmail, want); err != nil {
				t.Fatalf("Enqueue: %v", err)
			}

			if err := eng.Start(ctx); err != nil {
				t.Fatalf("Start: %v", err)
			}
			waitFor(t, "completion", func() bool { return tracker.completed.Load() == 1 })
			stopEngine(t, eng)

			if v, _ := got.Load().(emailInput); v != want {
				t.Errorf("handler got %+v, want %+v", v, want)
			}
			if tracker.enqueued.Load() != 1 || tracker.leased.Load() != 1 {
				t.Errorf("enqueued=%d leased=%d, want 1/1", tracker.enqueued.Load(), tracker.leased.Load())
			}
			if !tracker.shutdown.Load() {
				t.Error("expected OnShutdown on Stop")
			}
			if n := len(recorder.Ended()); n != 1 {
				t.Errorf("ended spans = %d, want 1", n)
			}
		})
	}
}

func TestEngine_FailingJobReachesDLQAndReplays(t *testing.T) {
	ctx := context.Background()
	tracker := &lifecycleTracker{}
	eng, err := engine.New(memory.New(),
		engine.WithConfig(testConfig()),
		engine.WithExtension(tracker),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var fail atomic.Bool
	fail.Store(true)
	var runs atomic.Int64
	flaky := job.NewDefinition("flaky", func(context.Context, struct{}) error {
		runs.Add(1)
		if fail.Load() {
			return errors.New("downstream unavailable")
		}
		return nil
	}, job.WithMaxRetries(1))
	engine.Register(eng, flaky)

	jobID, err := engine.Enqueue(ctx, eng, flaky, struct{}{})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "dead-letter", func() bool { return tracker.deadLettered.Load() == 1 })

	if tracker.failed.Load() != 1 || runs.Load() != 2 {
		t.Errorf("failed=%d runs=%d, want 1/2", tracker.failed.Load(), runs.Load())
	}
	entry, err := eng.DLQService().Get(ctx, jobID)
	if err != nil {
		t.Fatalf("dlq Get: %v", err)
	}
	if entry.Reason != "downstream unavailable" {
		t.Errorf("reason = %q", entry.Reason)
	}

	fail.Store(false)
	rec, err := eng.DLQService().Replay(ctx, jobID)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if rec.ID != jobID || rec.RetryCount != 0 {
		t.Errorf("replayed record id=%s retry_count=%d", rec.ID, rec.RetryCount)
	}
	waitFor(t, "replayed completion", func() bool { return tracker.completed.Load() == 1 })
	stopEngine(t, eng)
}

func TestEngine_ConfigMaxRetries(t *testing.T) {
	tests := []struct {
		name       string
		configured int
		defOpts    []job.Option
		wantRuns   int64
	}{
		{"no retries", 0, nil, 1},
		{"two retries", 2, nil, 3},
		{"definition overrides config", 4, []job.Option{job.WithMaxRetries(1)}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			tracker := &lifecycleTracker{}
			cfg := testConfig()
			cfg.MaxRetries = tt.configured
			eng, err := engine.New(memory.New(),
				engine.WithConfig(cfg),
				engine.WithExtension(tracker),
			)
			if err != nil {
				t.Fatalf("New: %v", err)
			}

			var runs atomic.Int64
			broken := job.NewDefinition("broken", func(context.Context, struct{}) error {
				runs.Add(1)
				return errors.New("still broken")
			}, tt.defOpts...)
			engine.Register(eng, broken)

			if _, err := engine.Enqueue(ctx, eng, broken, struct{}{}); err != nil {
				t.Fatalf("Enqueue: %v", err)
			}
			if err := eng.Start(ctx); err != nil {
				t.Fatalf("Start: %v", err)
			}
			waitFor(t, "dead-letter", func() bool { return tracker.deadLettered.Load() == 1 })
			stopEngine(t, eng)

			if got := runs.Load(); got != tt.wantRuns {
				t.Errorf("runs = %d, want %d", got, tt.wantRuns)
			}
			if got := tracker.failed.Load(); got != tt.wantRuns-1 {
				t.Errorf("failed = %d, want %d", got, tt.wantRuns-1)
			}
		})
	}
}

func TestEngine_UnscheduleAndCancel(t *testing.T) {
	ctx := context.Background()
	eng, err := engine.New(memory.New(), engine.WithConfig(testConfig()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sendEmail := job.NewDefinition("send-email", func(context.Context, emailInput) error { return nil })
	engine.Register(eng, sendEmail)

	in := emailInput{To: "later@example.com"}
	jobID, err := engine.Enqueue(ctx, eng, sendEmail, in, job.WithDelay(time.Hour))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	got, err := engine.Unschedule(ctx, eng, sendEmail, jobID)
	if err != nil {
		t.Fatalf("Unschedule: %v", err)
	}
	if got != in {
		t.Errorf("Unschedule payload = %+v, want %+v", got, in)
	}
	if _, err := engine.Unschedule(ctx, eng, sendEmail, jobID); !errors.Is(err, jobstore.ErrJobNotFound) {
		t.Errorf("second Unschedule error = %v, want ErrJobNotFound", err)
	}

	jobID, _ = engine.Enqueue(ctx, eng, sendEmail, in, job.WithDelay(time.Hour))
	if err := eng.Cancel(ctx, jobID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if err := eng.Cancel(ctx, jobID); !errors.Is(err, jobstore.ErrJobNotFound) {
		t.Errorf("second Cancel error = %v, want ErrJobNotFound", err)
	}
	if err := eng.Cancel(ctx, id.NewJobID()); !errors.Is(err, jobstore.ErrJobNotFound) {
		t.Errorf("Cancel unknown error = %v, want ErrJobNotFound", err)
	}
}

func TestEngine_Accessors(t *testing.T) {
	s := memory.New()
	eng, err := engine.New(s, engine.WithConfig(testConfig()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if eng.Store() != s {
		t.Error("Store() does not return the configured store")
	}
	if eng.Queue().Name() != "emails" {
		t.Errorf("Queue().Name() = %q, want emails", eng.Queue().Name())
	}
	if eng.Registry() == nil || eng.DLQService() == nil || eng.Pool() == nil || eng.Extensions() == nil {
		t.Error("nil accessor")
	}
	// The observability extension is always registered.
	if n := len(eng.Extensions().Extensions()); n != 1 {
		t.Errorf("extensions = %d, want 1", n)
	}
}
