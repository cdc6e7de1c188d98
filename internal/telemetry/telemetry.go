// Package telemetry wires the broker and topology manager's hot paths to
// OpenTelemetry: a span per broker publish, and counters for publishes,
// drops, and lifecycle events. With no global
// TracerProvider/MeterProvider configured, otel's own API falls back to
// no-op implementations, so this package never needs a nil check of its
// own — it just asks the global otel package for a tracer/meter, the same
// way any instrumented library does.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/lattice-run/gatewayrt"

var (
	tracer = otel.Tracer(instrumentationName)
	meter  = otel.Meter(instrumentationName)

	publishCounter, _ = meter.Int64Counter(
		"gatewayrt.broker.publish",
		metric.WithDescription("messages accepted by Broker.Publish"),
	)
	dropCounter, _ = meter.Int64Counter(
		"gatewayrt.broker.dropped",
		metric.WithDescription("messages dropped because a sink's socket was closed or full"),
	)
	lifecycleCounter, _ = meter.Int64Counter(
		"gatewayrt.topology.lifecycle_events",
		metric.WithDescription("topology lifecycle events emitted, by kind"),
	)
)

// StartSpan opens a span named for a broker/topology operation. Callers
// must End the returned span.
func StartSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	return tracer.Start(ctx, operation)
}

// RecordPublish counts one accepted Publish call from source.
func RecordPublish(ctx context.Context, source string) {
	publishCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

// RecordDrop counts one dropped delivery from source to sink.
func RecordDrop(ctx context.Context, source, sink string) {
	dropCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", source),
		attribute.String("sink", sink),
	))
}

// RecordLifecycleEvent counts one topology event of the given kind.
func RecordLifecycleEvent(ctx context.Context, kind string) {
	lifecycleCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}
