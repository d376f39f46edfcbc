package observe

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope of every talk2me span.
const tracerName = "github.com/MrWong99/talk2me"

// Tracer returns the [trace.Tracer] for talk2me. It is looked up on the
// globally registered [trace.TracerProvider] on every call, so spans started
// before [InitProvider] go to the no-op provider.
func Tracer() trace.Tracer { return otel.Tracer(tracerName) }

// StartSpan starts a new span as a child of whatever span ctx carries and
// returns the updated context alongside it. The caller must call span.End()
// when done.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// CorrelationID extracts the trace ID from the span context in ctx. It
// returns the empty string when no active span with a valid trace ID exists.
//
// HTTP error bodies and attempt log lines carry this value so a user-facing
// failure can be matched to its trace.
func CorrelationID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns an [slog.Logger] enriched with trace_id and span_id from
// the span context in ctx. Without an active span it is the default slog
// logger with no extra attributes.
func Logger(ctx context.Context) *slog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return slog.Default()
	}
	return slog.Default().With(
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	)
}

// Stage opens an "attempt.<stage>" span. The returned func ends it and, when
// m is non-nil, records the stage latency.
//
//	ctx, done := observe.Stage(ctx, m, observe.StageTranscribe)
//	defer done()
func Stage(ctx context.Context, m *Metrics, stage string) (context.Context, func()) {
	ctx, span := StartSpan(ctx, "attempt."+stage)
	start := time.Now()
	return ctx, func() {
		if m != nil {
			m.RecordStage(ctx, stage, time.Since(start))
		}
		span.End()
	}
}
