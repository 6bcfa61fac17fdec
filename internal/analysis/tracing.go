package analysis

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/rendis/macta/internal/analysis"

// Span attribute keys.
const (
	ProcessIDKey  = "macta.process.id"
	RunIDKey      = "macta.run.id"
	ConfigTypeKey = "macta.config.type"
	HorizonKey    = "macta.simulation.hours"
	TriggerKey    = "macta.trigger"
)

func startSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// setError records err on span and marks the span failed.
func setError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func defaultTracer() trace.Tracer {
	return otel.Tracer(tracerName)
}
