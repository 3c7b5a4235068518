package worker_test

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/xraph/jobstore"
	"github.com/xraph/jobstore/backoff"
	"github.com/xraph/jobstore/dlq"
	"github.com/xraph/jobstore/id"
	"github.com/xraph/jobstore/job"
	"github.com/xraph/jobstore/middleware"
	"github.com/xraph/jobstore/queue"
	"github.com/xraph/jobstore/store/memory"
	"github.com/xraph/jobstore/worker"
)

func setupTestPool(t *testing.T, s queue.Backend, reg *job.Registry, opts ...worker.PoolOption) (*worker.Pool, *queue.Queue) {
	t.Helper()
	logger := slog.Default()
	q := queue.New(s, queue.WithLogger(logger))
	exec := worker.NewExecutor(reg, logger, middleware.Recover(logger))
	opts = append([]worker.PoolOption{
		worker.WithConcurrency(2),
		worker.WithPollInterval(10 * time.Millisecond),
		worker.WithBackoff(backoff.NewConstant(10 * time.Millisecond)),
		worker.WithPoolLogger(logger),
	}, opts...)
	return worker.NewPool(q, exec, opts...), q
}

func stopPool(t *testing.T, p *worker.Pool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
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

func TestPool_StartStop(t *testing.T) {
	pool, _ := setupTestPool(t, memory.New(), job.NewRegistry())

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// Double start is a no-op.
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("second Start: %v", err)
	}

	stopPool(t, pool)
	// Double stop is a no-op.
	stopPool(t, pool)
}

func TestPool_ProcessesJobs(t *testing.T) {
	s := memory.New()
	reg := job.NewRegistry()

	var processed atomic.Int64
	job.RegisterDefinition(reg, job.NewDefinition("greet", func(_ context.Context, p greeting) error {
		if p.Name != "Alice" {
			t.Errorf("payload.Name = %q, want Alice", p.Name)
		}
		processed.Add(1)
		return nil
	}))

	pool, q := setupTestPool(t, s, reg, worker.WithConcurrency(4))

	ctx := context.Background()
	ids := make([]id.JobID, 0, 20)
	for range 20 {
		jobID, err := q.Enqueue(ctx, "greet", []byte(`{"name":"Alice"}`))
		if err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		ids = append(ids, jobID)
	}

	if err := pool.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "all jobs", func() bool { return processed.Load() == 20 })
	stopPool(t, pool)

	for _, jobID := range ids {
		if _, err := s.GetJob(ctx, jobID); !errors.Is(err, jobstore.ErrJobNotFound) {
			t.Errorf("GetJob(%s) error = %v, want ErrJobNotFound", jobID, err)
		}
	}
}

func TestPool_RetriesThenDeadLetters(t *testing.T) {
	s := memory.New()
	reg := job.NewRegistry()

	var attempts atomic.Int64
	job.RegisterDefinition(reg, job.NewDefinition("flaky", func(context.Context, struct{}) error {
		attempts.Add(1)
		return errFlaky
	}, job.WithMaxRetries(2)))

	pool, q := setupTestPool(t, s, reg, worker.WithConcurrency(1))

	ctx := context.Background()
	jobID, err := q.Enqueue(ctx, "flaky", nil)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	if err := pool.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "dead-letter", func() bool {
		_, err := s.GetDLQ(ctx, jobID)
		return err == nil
	})
	stopPool(t, pool)

	if got := attempts.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
	entry, err := dlq.NewService(s).Get(ctx, jobID)
	if err != nil {
		t.Fatalf("dlq Get: %v", err)
	}
	if entry.RetryCount != 3 || entry.Reason != errFlaky.Error() {
		t.Errorf("entry retry_count=%d reason=%q", entry.RetryCount, entry.Reason)
	}
}

func TestPool_RateLimit(t *testing.T) {
	s := memory.New()
	reg := job.NewRegistry()

	var processed atomic.Int64
	job.RegisterDefinition(reg, job.NewDefinition("tick", func(context.Context, struct{}) error {
		processed.Add(1)
		return nil
	}))

	// One checkout per second after the first.
	pool, q := setupTestPool(t, s, reg, worker.WithRateLimit(rate.NewLimiter(rate.Every(time.Second), 1)))

	ctx := context.Background()
	for range 5 {
		if _, err := q.Enqueue(ctx, "tick", nil); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	if err := pool.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(300 * time.Millisecond)
	stopPool(t, pool)

	if got := processed.Load(); got != 1 {
		t.Errorf("processed = %d within the first burst, want 1", got)
	}
}

func TestPool_ReapsExpiredLeases(t *testing.T) {
	s := memory.New()
	reg := job.NewRegistry()

	var processed atomic.Bool
	job.RegisterDefinition(reg, job.NewDefinition("report", func(context.Context, struct{}) error {
		processed.Store(true)
		return nil
	}))

	ctx := context.Background()
	pool, q := setupTestPool(t, s, reg,
		worker.WithConcurrency(1),
		worker.WithLeaseTimeout(50*time.Millisecond, 20*time.Millisecond),
	)

	jobID, err := q.Enqueue(ctx, "report", nil)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	// A crashed worker: the lease is taken and never resolved.
	abandoned, err := q.Poll(ctx, []string{"report"})
	if err != nil || abandoned == nil {
		t.Fatalf("Poll = %v, %v", abandoned, err)
	}

	if err := pool.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "reaped job to run", processed.Load)
	stopPool(t, pool)

	if err := abandoned.Complete(ctx); !errors.Is(err, jobstore.ErrLeaseLost) {
		t.Errorf("stale Complete error = %v, want ErrLeaseLost", err)
	}
	if _, err := s.GetJob(ctx, jobID); !errors.Is(err, jobstore.ErrJobNotFound) {
		t.Errorf("GetJob error = %v, want ErrJobNotFound", err)
	}
}

func TestPool_BacksOffOnStoreErrors(t *testing.T) {
	s := memory.New()
	reg := job.NewRegistry()
	job.RegisterDefinition(reg, job.NewDefinition("noop", func(context.Context, struct{}) error { return nil }))

	pool, _ := setupTestPool(t, s, reg, worker.WithConcurrency(1))
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	stopPool(t, pool)
}

func TestPool_StopTimeoutCancelsHandlers(t *testing.T) {
	s := memory.New()
	reg := job.NewRegistry()

	started := make(chan struct{})
	job.RegisterDefinition(reg, job.NewDefinition("block", func(ctx context.Context, _ struct{}) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}, job.WithTimeout(0)))

	pool, q := setupTestPool(t, s, reg, worker.WithConcurrency(1))

	ctx := context.Background()
	jobID, err := q.Enqueue(ctx, "block", nil)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := pool.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-started

	stopCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if err := pool.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	rec, err := s.GetJob(ctx, jobID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if rec.State() != job.StateWaiting {
		t.Errorf("state = %q, want waiting after cancelled attempt", rec.State())
	}
}
