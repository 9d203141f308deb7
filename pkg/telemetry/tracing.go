package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	// TracerName is the instrumentation scope of the orchestrator spans
	TracerName = "chaos-framework/chaos-orchestrator"
)

// StartTracing opens a span for one orchestration operation
func StartTracing(ctx context.Context, spanName string) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, spanName)
}
