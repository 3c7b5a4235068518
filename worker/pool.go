package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/xraph/jobstore/backoff"
	"github.com/xraph/jobstore/id"
	"github.com/xraph/jobstore/queue"
)

// Pool manages concurrent pollers over one queue. Each poller checks out
// the best eligible job among the registered types and runs it through the
// Executor.
type Pool struct {
	queue        *queue.Queue
	executor     *Executor
	concurrency  int
	pollInterval time.Duration
	leaseTimeout time.Duration
	reapInterval time.Duration
	limiter      *rate.Limiter
	backoff      backoff.Strategy
	workerID     id.WorkerID
	logger       *slog.Logger

	mu      sync.Mutex
	running bool
	group   *errgroup.Group
	stop    context.CancelFunc // stops polling
	abort   context.CancelFunc // cancels in-flight handlers
	active  atomic.Int64
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithConcurrency sets the number of pollers.
func WithConcurrency(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithPollInterval sets how long an idle poller waits when no job is eligible.
func WithPollInterval(d time.Duration) PoolOption {
	return func(p *Pool) { p.pollInterval = d }
}

// WithLeaseTimeout enables the reaper: every interval, leases older than
// timeout are returned to the waiting state. A zero timeout disables it.
func WithLeaseTimeout(timeout, interval time.Duration) PoolOption {
	return func(p *Pool) {
		p.leaseTimeout = timeout
		p.reapInterval = interval
	}
}

// WithRateLimit throttles checkouts across all pollers.
func WithRateLimit(l *rate.Limiter) PoolOption {
	return func(p *Pool) { p.limiter = l }
}

// WithBackoff sets the delay strategy after consecutive store errors.
func WithBackoff(s backoff.Strategy) PoolOption {
	return func(p *Pool) { p.backoff = s }
}

// WithPoolLogger sets the logger.
func WithPoolLogger(l *slog.Logger) PoolOption {
	return func(p *Pool) { p.logger = l }
}

// NewPool creates a pool polling q.
func NewPool(q *queue.Queue, executor *Executor, opts ...PoolOption) *Pool {
	p := &Pool{
		queue:        q,
		executor:     executor,
		concurrency:  10,
		pollInterval: time.Second,
		reapInterval: 30 * time.Second,
		backoff:      backoff.DefaultStrategy(),
		workerID:     id.NewWorkerID(),
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.pollInterval <= 0 {
		p.pollInterval = time.Second
	}
	if p.reapInterval <= 0 {
		p.reapInterval = p.leaseTimeout
	}
	return p
}

// WorkerID returns the pool's identifier, used in logs.
func (p *Pool) WorkerID() id.WorkerID { return p.workerID }

// Active returns the number of jobs currently executing.
func (p *Pool) Active() int64 { return p.active.Load() }

// Start launches the pollers and, if configured, the reaper. It returns
// immediately. Starting a running pool is a no-op.
func (p *Pool) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	p.running = true

	types := p.executor.Registry().Names()

	jobCtx, abort := context.WithCancel(context.Background())
	loopCtx, stop := context.WithCancel(jobCtx)
	p.stop, p.abort = stop, abort
	p.group = new(errgroup.Group)

	p.logger.Info("worker pool starting",
		slog.String("worker_id", p.workerID.String()),
		slog.String("queue", p.queue.Name()),
		slog.Int("concurrency", p.concurrency),
		slog.Any("job_types", types),
	)

	for range p.concurrency {
		p.group.Go(func() error {
			p.pollLoop(loopCtx, jobCtx, types)
			return nil
		})
	}

	if p.leaseTimeout > 0 {
		p.group.Go(func() error {
			p.reapLoop(loopCtx, jobCtx)
			return nil
		})
	}

	return nil
}

// Stop stops polling and waits for in-flight jobs. If ctx ends first, the
// handlers' contexts are cancelled and Stop waits for them to return and
// resolve their leases. Stopping a stopped pool is a no-op.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	g, stop, abort := p.group, p.stop, p.abort
	p.mu.Unlock()

	p.logger.Info("worker pool stopping", slog.String("worker_id", p.workerID.String()))
	stop()

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
	case <-ctx.Done():
		p.logger.Warn("worker pool shutdown timed out, cancelling active jobs",
			slog.Int64("active", p.active.Load()),
		)
		abort()
		<-done
	}
	abort()

	return nil
}

// pollLoop checks out and executes jobs until loopCtx ends. Polls and
// handlers use jobCtx so a claim is never abandoned halfway by Stop.
func (p *Pool) pollLoop(loopCtx, jobCtx context.Context, types []string) {
	tracker := backoff.NewTracker(p.backoff)

	for loopCtx.Err() == nil {
		if p.limiter != nil {
			if err := p.limiter.Wait(loopCtx); err != nil {
				return
			}
		}

		l, err := p.queue.Poll(jobCtx, types)
		if err != nil {
			delay := tracker.Failure()
			p.logger.Error("poll error",
				slog.String("queue", p.queue.Name()),
				slog.Int("consecutive_failures", tracker.Failures()),
				slog.Duration("retry_in", delay),
				slog.String("error", err.Error()),
			)
			sleep(loopCtx, delay)
			continue
		}
		tracker.Reset()

		if l == nil {
			sleep(loopCtx, p.pollInterval)
			continue
		}

		p.active.Add(1)
		if err := p.executor.Execute(jobCtx, l); err != nil {
			p.logger.Debug("job execution failed",
				slog.String("job_id", l.ID().String()),
				slog.String("job_type", l.Type()),
				slog.String("error", err.Error()),
			)
		}
		p.active.Add(-1)
	}
}

func (p *Pool) reapLoop(loopCtx, jobCtx context.Context) {
	ticker := time.NewTicker(p.reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-loopCtx.Done():
			return
		case <-ticker.C:
			if _, err := p.queue.ReapExpired(jobCtx, p.leaseTimeout); err != nil && !errors.Is(err, context.Canceled) {
				p.logger.Error("reap expired leases",
					slog.String("queue", p.queue.Name()),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
