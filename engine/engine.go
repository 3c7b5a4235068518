// Package engine wires a store to the queue, dead-letter service, handler
// registry, middleware, extensions and worker pool, and provides the typed
// Register/Enqueue/Unschedule API.
package engine

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/xraph/jobstore"
	"github.com/xraph/jobstore/backoff"
	"github.com/xraph/jobstore/codec"
	"github.com/xraph/jobstore/dlq"
	"github.com/xraph/jobstore/ext"
	"github.com/xraph/jobstore/id"
	"github.com/xraph/jobstore/job"
	mw "github.com/xraph/jobstore/middleware"
	"github.com/xraph/jobstore/observability"
	"github.com/xraph/jobstore/queue"
	"github.com/xraph/jobstore/store"
	"github.com/xraph/jobstore/worker"
)

const instrumentationName = "github.com/xraph/jobstore"

// Engine is a configured job queue over one store and one named queue.
type Engine struct {
	store      store.Store
	config     jobstore.Config
	codec      codec.Codec
	extensions *ext.Registry
	registry   *job.Registry
	queue      *queue.Queue
	dlqService *dlq.Service
	pool       *worker.Pool
	mws        []mw.Middleware
	bo         backoff.Strategy
	limiter    *rate.Limiter
	logger     *slog.Logger

	pendingExts []ext.Extension

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig sets queue name, concurrency, polling and reaper settings.
func WithConfig(cfg jobstore.Config) Option {
	return func(eng *Engine) { eng.config = cfg }
}

// WithLogger sets the logger used by every component.
func WithLogger(l *slog.Logger) Option {
	return func(eng *Engine) { eng.logger = l }
}

// WithCodec sets the payload codec. Defaults to codec.JSON.
func WithCodec(c codec.Codec) Option {
	return func(eng *Engine) { eng.codec = c }
}

// WithExtension registers a lifecycle extension.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) { eng.pendingExts = append(eng.pendingExts, e) }
}

// WithMiddleware adds middleware after the default stack.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) { eng.mws = append(eng.mws, m) }
}

// WithBackoff sets the poll error backoff strategy.
func WithBackoff(b backoff.Strategy) Option {
	return func(eng *Engine) { eng.bo = b }
}

// WithRateLimit throttles checkouts across the pool.
func WithRateLimit(l *rate.Limiter) Option {
	return func(eng *Engine) { eng.limiter = l }
}

// WithTracerProvider sets the TracerProvider for the tracing middleware.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) { eng.tracerProvider = tp }
}

// WithMeterProvider sets the MeterProvider for the metrics middleware and
// the observability extension.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) { eng.meterProvider = mp }
}

// New creates an Engine over s.
func New(s store.Store, opts ...Option) (*Engine, error) {
	if s == nil {
		return nil, jobstore.ErrNoStore
	}

	eng := &Engine{
		store:  s,
		config: jobstore.DefaultConfig(),
		codec:  codec.JSON,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(eng)
	}
	if eng.bo == nil {
		eng.bo = backoff.DefaultStrategy()
	}

	logger := eng.logger
	eng.extensions = ext.NewRegistry(logger)

	var obsExt *observability.MetricsExtension
	if eng.meterProvider != nil {
		obsExt = observability.NewMetricsExtensionWithMeter(eng.meterProvider.Meter(instrumentationName + "/observability"))
	} else {
		obsExt = observability.NewMetricsExtension()
	}
	eng.extensions.Register(obsExt)
	for _, e := range eng.pendingExts {
		eng.extensions.Register(e)
	}

	eng.registry = job.NewRegistry(
		job.WithCodec(eng.codec),
		job.WithDefaultMaxRetries(eng.config.MaxRetries),
	)
	eng.queue = queue.New(s,
		queue.WithName(eng.config.Queue),
		queue.WithCodec(eng.codec),
		queue.WithExtensions(eng.extensions),
		queue.WithLogger(logger),
	)
	eng.dlqService = dlq.NewService(s, dlq.WithLogger(logger))

	tracingMw := mw.Tracing()
	if eng.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(eng.tracerProvider.Tracer(instrumentationName))
	}
	metricsMw := mw.Metrics()
	if eng.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(eng.meterProvider.Meter(instrumentationName))
	}

	// recover → tracing → metrics → logging → timeout → user middleware.
	mws := make([]mw.Middleware, 0, 5+len(eng.mws))
	mws = append(mws,
		mw.Recover(logger),
		tracingMw,
		metricsMw,
		mw.Logging(logger),
		mw.Timeout(logger, eng.registry),
	)
	mws = append(mws, eng.mws...)

	executor := worker.NewExecutor(eng.registry, logger, mws...)
	poolOpts := []worker.PoolOption{
		worker.WithConcurrency(eng.config.Concurrency),
		worker.WithPollInterval(eng.config.PollInterval),
		worker.WithLeaseTimeout(eng.config.LeaseTimeout, eng.config.ReapInterval),
		worker.WithBackoff(eng.bo),
		worker.WithPoolLogger(logger),
	}
	if eng.limiter != nil {
		poolOpts = append(poolOpts, worker.WithRateLimit(eng.limiter))
	}
	eng.pool = worker.NewPool(eng.queue, executor, poolOpts...)

	return eng, nil
}

// Register registers a typed job definition. Register every type before
// Start; the pool polls for the types known when it starts.
func Register[T any](eng *Engine, def *job.Definition[T]) {
	job.RegisterDefinition(eng.registry, def)
}

// Enqueue encodes payload and enqueues a def.Name job.
func Enqueue[T any](ctx context.Context, eng *Engine, def *job.Definition[T], payload T, opts ...job.EnqueueOption) (id.JobID, error) {
	return queue.EnqueueJob(ctx, eng.queue, def, payload, opts...)
}

// Unschedule removes a waiting def.Name job and returns its decoded payload.
func Unschedule[T any](ctx context.Context, eng *Engine, def *job.Definition[T], jobID id.JobID) (T, error) {
	return queue.UnscheduleJob(ctx, eng.queue, def, jobID)
}

// Cancel removes a waiting job.
func (eng *Engine) Cancel(ctx context.Context, jobID id.JobID) error {
	return eng.queue.Cancel(ctx, jobID)
}

// Start starts the worker pool.
func (eng *Engine) Start(ctx context.Context) error {
	eng.logger.Info("jobstore engine starting",
		slog.String("queue", eng.queue.Name()),
		slog.String("codec", eng.codec.Name()),
		slog.Any("job_types", eng.registry.Names()),
	)
	return eng.pool.Start(ctx)
}

// Stop stops the pool, waiting for in-flight jobs until ctx ends, then
// notifies Shutdown extensions. It does not close the store.
func (eng *Engine) Stop(ctx context.Context) error {
	err := eng.pool.Stop(ctx)
	eng.extensions.EmitShutdown(ctx)
	return err
}

// Store returns the underlying store.
func (eng *Engine) Store() store.Store { return eng.store }

// Queue returns the engine's queue.
func (eng *Engine) Queue() *queue.Queue { return eng.queue }

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Registry returns the job registry.
func (eng *Engine) Registry() *job.Registry { return eng.registry }

// DLQService returns the dead-letter service for replay and inspection.
func (eng *Engine) DLQService() *dlq.Service { return eng.dlqService }

// Pool returns the worker pool.
func (eng *Engine) Pool() *worker.Pool { return eng.pool }

// Config returns the effective configuration.
func (eng *Engine) Config() jobstore.Config { return eng.config }
