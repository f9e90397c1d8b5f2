// Package observe provides application-wide observability primitives for
// Opicoach: OpenTelemetry metrics and HTTP middleware that records request
// latency.
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

// meterName is the instrumentation scope name used for all Opicoach metrics.
const meterName = "github.com/opicoach/opicoach"

// Metrics holds all OpenTelemetry metric instruments for the pipeline.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// RecordingDuration tracks the length of finalized recording sessions,
	// from device acquisition to clip emission.
	RecordingDuration metric.Float64Histogram

	// GradingDuration tracks grading backend call latency.
	GradingDuration metric.Float64Histogram

	// SynthesisDuration tracks speech synthesis backend call latency.
	SynthesisDuration metric.Float64Histogram

	// --- Counters ---

	// CacheHits counts speech cache hits.
	CacheHits metric.Int64Counter

	// CacheMisses counts speech cache misses.
	CacheMisses metric.Int64Counter

	// PlaybackStarts counts started playback by source. Use with attribute:
	//   attribute.String("source", "cache"|"asset"|"on_demand"|"local"|"raw")
	PlaybackStarts metric.Int64Counter

	// SynthesisFailures counts failed synthesis attempts by stage. Use with
	// attribute: attribute.String("stage", "backend"|"upload"|"log_update")
	SynthesisFailures metric.Int64Counter

	// GradingFailures counts failed grading attempts by reason. Use with
	// attribute: attribute.String("reason", "backend"|"malformed"|"upload")
	GradingFailures metric.Int64Counter

	// --- Gauges ---

	// ActiveAnalyses tracks grading flows currently in progress (0 or 1 by
	// construction; the gauge makes violations visible).
	ActiveAnalyses metric.Int64UpDownCounter

	// SynthesisInFlight tracks background synthesis jobs currently holding
	// the in-flight marker.
	SynthesisInFlight metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// network-bound generative calls and multi-second recordings.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.RecordingDuration, err = m.Float64Histogram("opicoach.recording.duration",
		metric.WithDescription("Length of finalized recording sessions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.GradingDuration, err = m.Float64Histogram("opicoach.grading.duration",
		metric.WithDescription("Latency of grading backend calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SynthesisDuration, err = m.Float64Histogram("opicoach.synthesis.duration",
		metric.WithDescription("Latency of speech synthesis backend calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.CacheHits, err = m.Int64Counter("opicoach.speechcache.hits",
		metric.WithDescription("Total speech cache hits."),
	); err != nil {
		return nil, err
	}
	if met.CacheMisses, err = m.Int64Counter("opicoach.speechcache.misses",
		metric.WithDescription("Total speech cache misses."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackStarts, err = m.Int64Counter("opicoach.playback.starts",
		metric.WithDescription("Total started playbacks by source."),
	); err != nil {
		return nil, err
	}
	if met.SynthesisFailures, err = m.Int64Counter("opicoach.synthesis.failures",
		metric.WithDescription("Total failed synthesis attempts by stage."),
	); err != nil {
		return nil, err
	}
	if met.GradingFailures, err = m.Int64Counter("opicoach.grading.failures",
		metric.WithDescription("Total failed grading attempts by reason."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveAnalyses, err = m.Int64UpDownCounter("opicoach.active_analyses",
		metric.WithDescription("Grading flows currently in progress."),
	); err != nil {
		return nil, err
	}
	if met.SynthesisInFlight, err = m.Int64UpDownCounter("opicoach.synthesis_in_flight",
		metric.WithDescription("Background synthesis jobs currently in flight."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("opicoach.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
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

// RecordCacheLookup records one cache lookup outcome.
func (m *Metrics) RecordCacheLookup(ctx context.Context, hit bool) {
	if hit {
		m.CacheHits.Add(ctx, 1)
		return
	}
	m.CacheMisses.Add(ctx, 1)
}

// RecordPlaybackStart records a started playback with its resolution source.
func (m *Metrics) RecordPlaybackStart(ctx context.Context, source string) {
	m.PlaybackStarts.Add(ctx, 1,
		metric.WithAttributes(attribute.String("source", source)),
	)
}

// RecordSynthesisFailure records a failed synthesis attempt at the given
// pipeline stage.
func (m *Metrics) RecordSynthesisFailure(ctx context.Context, stage string) {
	m.SynthesisFailures.Add(ctx, 1,
		metric.WithAttributes(attribute.String("stage", stage)),
	)
}

// RecordGradingFailure records a failed grading attempt with its reason.
func (m *Metrics) RecordGradingFailure(ctx context.Context, reason string) {
	m.GradingFailures.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}
