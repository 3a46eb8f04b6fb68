// Package observe provides application-wide observability primitives for
// medsift: OpenTelemetry metrics, tracing, trace-aware logging and the HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported
// for Prometheus scraping via [InitProvider]. A package-level [DefaultMetrics]
// instance exists for convenience; tests should use [NewMetrics] with their
// own [metric.MeterProvider].
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/MrWong99/medsift"

// Metrics holds all OpenTelemetry instruments. Safe for concurrent use.
type Metrics struct {
	// TranscriptionDuration tracks one Transcribe call.
	TranscriptionDuration metric.Float64Histogram

	// RedactionDuration tracks one Redact call.
	RedactionDuration metric.Float64Histogram

	// ChunkDuration tracks processing of a whole live audio chunk, including
	// transcription and redaction.
	ChunkDuration metric.Float64Histogram

	// LiteratureDuration tracks one backend search. Attribute "backend".
	LiteratureDuration metric.Float64Histogram

	// ExtractionDuration tracks one structured extraction, retries included.
	// Attribute "kind" (summary or note).
	ExtractionDuration metric.Float64Histogram

	// GroundingDuration tracks building a grounding report.
	GroundingDuration metric.Float64Histogram

	// HTTPRequestDuration tracks HTTP requests. Attributes "method", "route".
	HTTPRequestDuration metric.Float64Histogram

	// ProviderRequests counts provider calls. Attributes "provider", "kind",
	// "status".
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts failed provider calls. Attributes "provider",
	// "kind".
	ProviderErrors metric.Int64Counter

	// ChunksProcessed counts live chunks. Attribute "status".
	ChunksProcessed metric.Int64Counter

	// FeedbackEvents counts clinician feedback. Attributes "type", "rating".
	FeedbackEvents metric.Int64Counter

	// ActiveSessions tracks live transcription sessions in the registry.
	ActiveSessions metric.Int64UpDownCounter
}

// latencyBuckets covers sub-second engine work up to slow remote
// transcription and LLM extraction.
var latencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	met := &Metrics{}

	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&met.TranscriptionDuration, "medsift.transcription.duration", "Latency of speech-to-text transcription."},
		{&met.RedactionDuration, "medsift.redaction.duration", "Latency of PHI redaction."},
		{&met.ChunkDuration, "medsift.chunk.duration", "Latency of processing one live audio chunk."},
		{&met.LiteratureDuration, "medsift.literature.duration", "Latency of one literature backend search."},
		{&met.ExtractionDuration, "medsift.extraction.duration", "Latency of structured clinical extraction."},
		{&met.GroundingDuration, "medsift.grounding.duration", "Latency of building a grounding report."},
		{&met.HTTPRequestDuration, "medsift.http.request.duration", "HTTP request latency by method and route."},
	}
	for _, h := range histograms {
		inst, err := m.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		)
		if err != nil {
			return nil, err
		}
		*h.dst = inst
	}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&met.ProviderRequests, "medsift.provider.requests", "Provider calls by provider, kind and status."},
		{&met.ProviderErrors, "medsift.provider.errors", "Failed provider calls by provider and kind."},
		{&met.ChunksProcessed, "medsift.chunks.processed", "Live audio chunks by outcome."},
		{&met.FeedbackEvents, "medsift.feedback.events", "Clinician feedback records by type and rating."},
	}
	for _, c := range counters {
		inst, err := m.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, err
		}
		*c.dst = inst
	}

	var err error
	if met.ActiveSessions, err = m.Int64UpDownCounter("medsift.active_sessions",
		metric.WithDescription("Number of live transcription sessions."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics], created on first use
// from [otel.GetMeterProvider]. Call it after [InitProvider] so instruments
// bind to the exporting provider.
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

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// Status returns "ok" or "error" for err.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordProviderCall counts one provider call and, when err is non-nil, one
// provider error.
func (m *Metrics) RecordProviderCall(ctx context.Context, provider, kind string, err error) {
	m.ProviderRequests.Add(ctx, 1, metric.WithAttributes(
		Attr("provider", provider),
		Attr("kind", kind),
		Attr("status", Status(err)),
	))
	if err != nil {
		m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(
			Attr("provider", provider),
			Attr("kind", kind),
		))
	}
}

// RecordChunk counts one processed live chunk.
func (m *Metrics) RecordChunk(ctx context.Context, seconds float64, err error) {
	attrs := metric.WithAttributes(Attr("status", Status(err)))
	m.ChunksProcessed.Add(ctx, 1, attrs)
	m.ChunkDuration.Record(ctx, seconds, attrs)
}

// RecordFeedback counts one feedback record.
func (m *Metrics) RecordFeedback(ctx context.Context, feedbackType, rating string) {
	m.FeedbackEvents.Add(ctx, 1, metric.WithAttributes(
		Attr("type", feedbackType),
		Attr("rating", rating),
	))
}
