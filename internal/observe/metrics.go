// Package observe provides application-wide observability primitives for
// vcable: OpenTelemetry metrics and HTTP middleware.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all vcable metrics.
const meterName = "github.com/mlaggner/vcable"

// Metrics holds all OpenTelemetry metric instruments for the routing engine.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation. Instruments on the audio hot path must only be
// incremented, never wrapped in allocating attribute sets per callback.
type Metrics struct {
	// --- Capture path ---

	// CaptureFrames counts capture callbacks delivered to the sink.
	// Use with attribute.String("state", "live"|"muted").
	CaptureFrames metric.Int64Counter

	// CaptureOverflows counts input overflow statuses reported by the backend.
	CaptureOverflows metric.Int64Counter

	// --- Playback path ---

	// ChunksEnqueued counts chunks accepted by Output.
	ChunksEnqueued metric.Int64Counter

	// ChunksDropped counts chunks dropped because the session was muted.
	ChunksDropped metric.Int64Counter

	// QueueDepth tracks the number of chunks currently queued for playback.
	QueueDepth metric.Int64UpDownCounter

	// Underruns counts device writes that needed zero-padding.
	Underruns metric.Int64Counter

	// WriteErrors counts failed device writes (playback continued).
	WriteErrors metric.Int64Counter

	// WriteDuration tracks the latency of blocking device writes.
	WriteDuration metric.Float64Histogram

	// --- Control plane ---

	// Interrupts counts interrupt requests that flushed pending audio.
	Interrupts metric.Int64Counter

	// ActiveSessions tracks the number of live capture+playback sessions.
	ActiveSessions metric.Int64UpDownCounter

	// MonitorRunning tracks whether the pass-through monitor is active (0 or 1).
	MonitorRunning metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks control-surface request processing time.
	// Use with attribute.String("method", ...), attribute.String("path", ...).
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// device-write latencies: one hardware buffer at 16 kHz / 1024 frames is
// 64 ms, so the interesting range is single-digit milliseconds up to a few
// buffer periods.
var latencyBuckets = []float64{
	0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Capture path.
	if met.CaptureFrames, err = m.Int64Counter("vcable.capture.frames",
		metric.WithDescription("Capture callbacks delivered to the sink, by state."),
	); err != nil {
		return nil, err
	}
	if met.CaptureOverflows, err = m.Int64Counter("vcable.capture.overflows",
		metric.WithDescription("Input overflow statuses reported by the audio backend."),
	); err != nil {
		return nil, err
	}

	// Playback path.
	if met.ChunksEnqueued, err = m.Int64Counter("vcable.playback.chunks_enqueued",
		metric.WithDescription("Chunks accepted into the playback queue."),
	); err != nil {
		return nil, err
	}
	if met.ChunksDropped, err = m.Int64Counter("vcable.playback.chunks_dropped",
		metric.WithDescription("Chunks dropped because the session was muted."),
	); err != nil {
		return nil, err
	}
	if met.QueueDepth, err = m.Int64UpDownCounter("vcable.playback.queue_depth",
		metric.WithDescription("Chunks currently queued for playback."),
	); err != nil {
		return nil, err
	}
	if met.Underruns, err = m.Int64Counter("vcable.playback.underruns",
		metric.WithDescription("Device writes that needed zero-padding."),
	); err != nil {
		return nil, err
	}
	if met.WriteErrors, err = m.Int64Counter("vcable.playback.write_errors",
		metric.WithDescription("Failed device writes; playback continued on the next chunk."),
	); err != nil {
		return nil, err
	}
	if met.WriteDuration, err = m.Float64Histogram("vcable.playback.write_duration",
		metric.WithDescription("Latency of blocking device writes."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Control plane.
	if met.Interrupts, err = m.Int64Counter("vcable.interrupts",
		metric.WithDescription("Interrupt requests that flushed pending playback audio."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("vcable.active_sessions",
		metric.WithDescription("Live capture+playback sessions."),
	); err != nil {
		return nil, err
	}
	if met.MonitorRunning, err = m.Int64UpDownCounter("vcable.monitor_running",
		metric.WithDescription("Whether the pass-through monitor is active."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("vcable.http.request.duration",
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}
