package personallinks

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation name of the pool's spans.
const TracerName = "github.com/THIS-Institute/thiscovery-surveys/internal/personallinks"

// startSpan starts a span tagged with the pool. The caller ends it.
//
//nolint:spancheck // span is returned to caller who manages its lifecycle
func startSpan(ctx context.Context, name string, pool PoolID, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("pool.id", pool.String()))
	return otel.Tracer(TracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
