package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/toyota-m2k/android-worker/host"
)

// tracerName is the instrumentation scope name for task tracing.
const tracerName = "github.com/toyota-m2k/android-worker"

// Tracing returns middleware that wraps task execution in an
// OpenTelemetry span. If no TracerProvider is configured globally, the
// default noop tracer is used and this middleware becomes a
// pass-through with zero overhead.
//
// Span attributes include: worker.task.id, worker.task.expedited,
// worker.task.foreground. On error, the span status is set to
// codes.Error with the error message.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided
// tracer. This variant allows injecting a specific TracerProvider for
// testing or when multiple providers are in use.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, t *host.Task, next Handler) error {
		ctx, span := tracer.Start(ctx, "worker.task.execute",
			trace.WithAttributes(
				attribute.String("worker.task.id", t.ID.String()),
				attribute.Bool("worker.task.expedited", t.Expedited),
				attribute.Bool("worker.task.foreground", t.Foreground),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
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
