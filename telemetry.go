package ygggo_pg

import (
	"context"
	"log/slog"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName    = "github.com/yggai/ygggo_pg"
	instrumentationVersion = "v0.1.0"
)

// observer bundles the logger, tracer and metric instruments shared by a
// Manager, its connections and the Pool driving it. The setters may run
// while connections are in use, so every field is swapped atomically.
type observer struct {
	logger  atomic.Pointer[slog.Logger]
	tracer  atomic.Pointer[trace.Tracer] // nil while tracing is disabled
	metrics atomic.Pointer[Metrics]      // nil while metrics are disabled
}

// EnableTelemetry enables or disables OpenTelemetry tracing using the
// global tracer provider. The change applies to existing connections too.
func (m *Manager) EnableTelemetry(enabled bool) {
	if m == nil {
		return
	}
	if !enabled {
		m.obs.tracer.Store(nil)
		return
	}
	m.SetTracerProvider(otel.GetTracerProvider())
}

// SetTracerProvider enables tracing with a custom tracer provider.
func (m *Manager) SetTracerProvider(tp trace.TracerProvider) {
	if m == nil || tp == nil {
		return
	}
	tracer := tp.Tracer(instrumentationName, trace.WithInstrumentationVersion(instrumentationVersion))
	m.obs.tracer.Store(&tracer)
}

// startSpan creates a new span with common database attributes
func (o *observer) startSpan(ctx context.Context, operation, query string) (context.Context, trace.Span) {
	var tracer *trace.Tracer
	if o != nil {
		tracer = o.tracer.Load()
	}
	if tracer == nil {
		// A span that is never recording, so finishSpan leaves the caller's span alone.
		return ctx, trace.SpanFromContext(context.Background())
	}
	ctx, span := (*tracer).Start(ctx, "ygggo_pg."+operation, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", operation),
	)
	if query != "" {
		span.SetAttributes(attribute.String("db.statement", query))
	}
	return ctx, span
}

// finishSpan completes a span with error handling
func (o *observer) finishSpan(span trace.Span, err error) {
	if !span.IsRecording() {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
