package observe

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// withTracer installs a synchronous in-memory tracer provider as the global
// one for the duration of the test. Tests using it must not run in parallel.
func withTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

// captureLogs points the default logger at a buffer for the duration of the test.
func captureLogs(t *testing.T, level slog.Level) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: level})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestCorrelationID(t *testing.T) {
	withTracer(t)

	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("without span = %q, want empty", got)
	}

	ctx1, s1 := StartSpan(context.Background(), "one")
	defer s1.End()
	ctx2, s2 := StartSpan(context.Background(), "two")
	defer s2.End()

	id1, id2 := CorrelationID(ctx1), CorrelationID(ctx2)
	if len(id1) != 32 {
		t.Errorf("id = %q, want 32 hex chars", id1)
	}
	if id1 == id2 {
		t.Errorf("root spans share trace id %q", id1)
	}

	child, cs := StartSpan(ctx1, "child")
	defer cs.End()
	if CorrelationID(child) != id1 {
		t.Errorf("child trace id %q, want parent's %q", CorrelationID(child), id1)
	}
}

func TestStartSpan_ParentChild(t *testing.T) {
	exp := withTracer(t)

	ctx, parent := StartSpan(context.Background(), "attempt.run")
	_, child := StartSpan(ctx, "attempt.score")
	child.End()
	parent.End()

	spans := exp.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("spans = %d, want 2", len(spans))
	}
	if spans[0].Name != "attempt.score" || spans[1].Name != "attempt.run" {
		t.Errorf("names = %q, %q", spans[0].Name, spans[1].Name)
	}
	if spans[0].Parent.SpanID() != spans[1].SpanContext.SpanID() {
		t.Error("score span is not a child of run")
	}
}

func TestLogger(t *testing.T) {
	withTracer(t)
	buf := captureLogs(t, slog.LevelInfo)

	Logger(context.Background()).Info("plain")
	if strings.Contains(buf.String(), "trace_id") {
		t.Errorf("log without span carries a trace id: %s", buf)
	}

	buf.Reset()
	ctx, span := StartSpan(context.Background(), "x")
	defer span.End()
	Logger(ctx).Info("traced")
	out := buf.String()
	if !strings.Contains(out, "trace_id="+CorrelationID(ctx)) {
		t.Errorf("missing trace_id: %s", out)
	}
	if !strings.Contains(out, "span_id="+span.SpanContext().SpanID().String()) {
		t.Errorf("missing span_id: %s", out)
	}
}

func TestStage(t *testing.T) {
	exp := withTracer(t)
	m, reader := newTestMetrics(t)

	_, done := Stage(context.Background(), m, StageTranscribe)
	done()

	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "attempt.transcribe" {
		t.Fatalf("spans = %v", spans)
	}
	if findMetric(collect(t, reader), "talk2me.stage.duration") == nil {
		t.Error("stage duration not recorded")
	}
}

func TestStage_NilMetrics(t *testing.T) {
	exp := withTracer(t)

	_, done := Stage(context.Background(), nil, StageAlign)
	done()
	if n := len(exp.GetSpans()); n != 1 {
		t.Errorf("spans = %d, want 1", n)
	}
}
