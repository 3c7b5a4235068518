package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/jobstore/job"
)

// instrumentationName is the OTel scope for spans and instruments.
const instrumentationName = "github.com/xraph/jobstore"

// Tracing wraps each attempt in a span from the global TracerProvider.
// Without a configured provider the span is a noop.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(instrumentationName))
}

// TracingWithTracer is Tracing with an explicit tracer.
//
// Span "jobstore.job.execute" carries jobstore.job.id, jobstore.job.type,
// jobstore.queue, jobstore.attempt and jobstore.priority. A handler error
// is recorded and sets the span status to Error.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, r *job.Record, next Handler) error {
		ctx, span := tracer.Start(ctx, "jobstore.job.execute",
			trace.WithAttributes(
				attribute.String("jobstore.job.id", r.ID.String()),
				attribute.String("jobstore.job.type", r.Type),
				attribute.String("jobstore.queue", r.Queue),
				attribute.Int("jobstore.attempt", r.RetryCount),
				attribute.Int("jobstore.priority", r.Priority),
			),
			trace.WithSpanKind(trace.SpanKindConsumer),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		return err
	}
}
