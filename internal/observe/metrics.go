// Package observe wires talk2me into OpenTelemetry. It owns the metric
// instruments, the span helpers used by the attempt pipeline, a trace-aware
// slog logger and the HTTP middleware.
//
// Instruments are created against whatever [metric.MeterProvider] the caller
// hands to [NewMetrics]. In production that is the global provider set up by
// [InitProvider], which exports to Prometheus. Tests build their own provider
// with a manual reader.
package observe

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/MrWong99/talk2me"

// Stage names, used for the "stage" attribute and the "attempt.<stage>" spans.
const (
	StageIngest     = "ingest"
	StageExtract    = "extract"
	StageTranscribe = "transcribe"
	StageAlign      = "align"
	StageScore      = "score"
	StagePersist    = "persist"
)

// Outcomes counted by talk2me.attempts.
const (
	OutcomeScored       = "scored"
	OutcomeAnonymous    = "anonymous"
	OutcomeSilent       = "silent"
	OutcomeUserNotFound = "user_not_found"
	OutcomeFailed       = "failed"
)

// Metrics bundles the instruments talk2me records to.
type Metrics struct {
	StageDuration       metric.Float64Histogram // attrs: stage
	ProviderRequests    metric.Int64Counter     // attrs: provider, kind, status
	ProviderErrors      metric.Int64Counter     // attrs: provider, kind
	Attempts            metric.Int64Counter     // attrs: outcome
	AttemptsInFlight    metric.Int64UpDownCounter
	HTTPRequestDuration metric.Float64Histogram // attrs: method, path, status
}

// Transcription and LLM scoring of a long upload can take minutes.
var latencyBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120}

// NewMetrics registers the talk2me instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(meterName)
	m := &Metrics{}
	var errs [6]error

	m.StageDuration, errs[0] = meter.Float64Histogram("talk2me.stage.duration",
		metric.WithDescription("Time spent in each attempt pipeline stage."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...))
	m.ProviderRequests, errs[1] = meter.Int64Counter("talk2me.provider.requests",
		metric.WithDescription("Calls made to STT and LLM backends."))
	m.ProviderErrors, errs[2] = meter.Int64Counter("talk2me.provider.errors",
		metric.WithDescription("Failed calls to STT and LLM backends."))
	m.Attempts, errs[3] = meter.Int64Counter("talk2me.attempts",
		metric.WithDescription("Analysed attempts by outcome."))
	m.AttemptsInFlight, errs[4] = meter.Int64UpDownCounter("talk2me.attempts.in_flight",
		metric.WithDescription("Attempts currently in the pipeline."))
	m.HTTPRequestDuration, errs[5] = meter.Float64Histogram("talk2me.http.request.duration",
		metric.WithDescription("HTTP handler latency by route and status."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...))

	if err := errors.Join(errs[:]...); err != nil {
		return nil, err
	}
	return m, nil
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// DefaultMetrics returns a process-wide [Metrics] built on the global meter
// provider. Call it after [InitProvider].
func DefaultMetrics() *Metrics {
	defaultOnce.Do(func() {
		m, err := NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: default metrics: " + err.Error())
		}
		defaultMetrics = m
	})
	return defaultMetrics
}

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue { return attribute.String(key, value) }

// RecordStage records the wall time of one pipeline stage, in seconds, on
// the stage duration histogram.
func (m *Metrics) RecordStage(ctx context.Context, stage string, d time.Duration) {
	m.StageDuration.Record(ctx, d.Seconds(), metric.WithAttributes(Attr("stage", stage)))
}

// RecordAttempt counts one finished attempt. outcome is one of the
// Outcome constants.
func (m *Metrics) RecordAttempt(ctx context.Context, outcome string) {
	m.Attempts.Add(ctx, 1, metric.WithAttributes(Attr("outcome", outcome)))
}

// RecordProviderRequest counts a call to an STT or LLM backend.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1, metric.WithAttributes(
		Attr("provider", provider), Attr("kind", kind), Attr("status", status)))
}

func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(Attr("provider", provider), Attr("kind", kind)))
}

// ProviderObserver adapts m to the observer hook of a resilience group: every
// call reaching a backend of the given kind ("stt" or "llm") is counted, and
// failures are counted again as errors.
func (m *Metrics) ProviderObserver(kind string) func(provider string, err error) {
	return func(provider string, err error) {
		ctx := context.Background()
		if err != nil {
			m.RecordProviderError(ctx, provider, kind)
			m.RecordProviderRequest(ctx, provider, kind, "error")
			return
		}
		m.RecordProviderRequest(ctx, provider, kind, "ok")
	}
}
