package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracer is the global tracer instance for the channelwatch application.
var tracer = otel.Tracer("channelwatch")

// GetTracer returns the global tracer for creating spans.
// This tracer can be used throughout the application to create new spans.
//
// Example usage:
//
//	ctx, span := tracing.GetTracer().Start(ctx, "operation-name")
//	defer span.End()
func GetTracer() trace.Tracer {
	return tracer
}

// StartFetchSpan starts a span for a telemetry fetch operation with the
// channel ID attached as an attribute.
func StartFetchSpan(ctx context.Context, operation, channelID string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, operation,
		trace.WithAttributes(attribute.String("telemetry.channel_id", channelID)))
	return ctx, span
}

// EndSpan finishes a span, recording err as the span's error status when
// non-nil.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
