// Package observe provides application-wide observability primitives for
// Lumivox: OpenTelemetry metrics, tracing, and a Prometheus exporter bridge.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Lumivox metrics.
const meterName = "github.com/haldreng/lumivox"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// RecognitionDuration tracks speech-to-text transcription latency.
	RecognitionDuration metric.Float64Histogram

	// CompletionDuration tracks LLM reply generation latency.
	CompletionDuration metric.Float64Histogram

	// SynthesisDuration tracks text-to-speech synthesis latency.
	SynthesisDuration metric.Float64Histogram

	// --- Counters ---

	// Utterances counts utterances emitted by the boundary detector. Use with
	// attribute: attribute.String("outcome", ...) — one of "dispatched",
	// "cooldown", "superseded", "duplicate", "no_match", "error".
	Utterances metric.Int64Counter

	// ConnectionAttempts counts voice join attempts. Use with attribute:
	//   attribute.String("status", ...)
	ConnectionAttempts metric.Int64Counter

	// Replies counts spoken replies by kind ("command", "conversation",
	// "announcement").
	Replies metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attribute:
	//   attribute.String("kind", ...) — one of "stt", "tts", "llm".
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveLink tracks whether a voice link is currently established (0 or 1).
	ActiveLink metric.Int64UpDownCounter

	// ActiveSpeakers tracks the number of participants currently detected as
	// speaking.
	ActiveSpeakers metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.RecognitionDuration, err = m.Float64Histogram("lumivox.recognition.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CompletionDuration, err = m.Float64Histogram("lumivox.completion.duration",
		metric.WithDescription("Latency of LLM reply generation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SynthesisDuration, err = m.Float64Histogram("lumivox.synthesis.duration",
		metric.WithDescription("Latency of text-to-speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Utterances, err = m.Int64Counter("lumivox.utterances",
		metric.WithDescription("Total utterances by dispatch outcome."),
	); err != nil {
		return nil, err
	}
	if met.ConnectionAttempts, err = m.Int64Counter("lumivox.connection.attempts",
		metric.WithDescription("Total voice join attempts by status."),
	); err != nil {
		return nil, err
	}
	if met.Replies, err = m.Int64Counter("lumivox.replies",
		metric.WithDescription("Total spoken replies by kind."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("lumivox.provider.errors",
		metric.WithDescription("Total provider errors by kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveLink, err = m.Int64UpDownCounter("lumivox.active_link",
		metric.WithDescription("Whether a voice link is currently established."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSpeakers, err = m.Int64UpDownCounter("lumivox.active_speakers",
		metric.WithDescription("Number of participants currently detected as speaking."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordUtterance records an utterance counter increment with its dispatch
// outcome.
func (m *Metrics) RecordUtterance(ctx context.Context, outcome string) {
	m.Utterances.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

// RecordConnectionAttempt records a voice join attempt with its status.
func (m *Metrics) RecordConnectionAttempt(ctx context.Context, status string) {
	m.ConnectionAttempts.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordReply records a spoken reply counter increment by kind.
func (m *Metrics) RecordReply(ctx context.Context, kind string) {
	m.Replies.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}
