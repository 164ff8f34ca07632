package oteltrace

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/smartpos/sale-engine/internal/observability"
)

type tracer struct{ t trace.Tracer }

// New returns an observability.Tracer backed by the global otel provider.
// Initializing an sdktrace.TracerProvider plus exporter and calling
// otel.SetTracerProvider is the deployment's responsibility.
func New(name string) observability.Tracer {
	if name == "" {
		name = "sale-engine"
	}
	return &tracer{t: otel.Tracer(name)}
}

func (t *tracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.t.Start(ctx, name, trace.WithAttributes(attrs...))
}
