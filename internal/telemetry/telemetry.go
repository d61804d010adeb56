// Package telemetry provides the OpenTelemetry span helpers the dispatcher
// and requestor use to instrument message flow. Observability only: spans
// are started and ended around control flow that happens regardless, never
// consulted to make a routing or correlation decision.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/nexusrpc/corerpc"

var tracer = otel.Tracer(instrumentationName)

// StartSpan begins a span for a message of the given type and id, tagging
// both as attributes for trace queries.
func StartSpan(ctx context.Context, spanName, mtype, id string) (context.Context, trace.Span) {
	return tracer.Start(ctx, spanName, trace.WithAttributes(
		attribute.String("corerpc.mtype", mtype),
		attribute.String("corerpc.id", id),
	))
}

// EndSpan records err (if any) and ends the span. Safe to call with a nil
// span from a disabled tracer provider.
func EndSpan(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}
