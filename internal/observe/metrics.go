// Package observe provides observability primitives for voicewire:
// OpenTelemetry metrics with a Prometheus exporter bridge.
//
// Metrics are recorded through the OpenTelemetry Metrics API. [InitProvider]
// installs an SDK meter provider backed by a Prometheus exporter so metrics
// can be scraped via a standard /metrics endpoint. A package-level default
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

// meterName is the instrumentation scope name used for all voicewire metrics.
const meterName = "github.com/voicewire/voicewire"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// RecordingDuration tracks the wall time of one recording session, from
	// capture start to the finish decision.
	RecordingDuration metric.Float64Histogram

	// FramesProcessed counts audio frames pushed through the VAD loop.
	FramesProcessed metric.Int64Counter

	// VADLatency tracks per-frame classifier inference latency.
	VADLatency metric.Float64Histogram

	// STTDuration tracks transcription latency per finished recording.
	STTDuration metric.Float64Histogram

	// STTRequests counts transcription attempts. Use with attributes:
	//   attribute.String("backend", ...), attribute.String("status", ...)
	STTRequests metric.Int64Counter

	// ChannelReconnects counts reconnect attempts to the observer socket.
	ChannelReconnects metric.Int64Counter

	// SessionsBusy counts booking attempts rejected because another session
	// holds the lock.
	SessionsBusy metric.Int64Counter
}

// recordingBuckets defines histogram bucket boundaries (in seconds) for
// recording durations, which run from sub-second aborts up to the wall-clock
// deadline ceiling.
var recordingBuckets = []float64{
	0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1800, 3600,
}

// inferenceBuckets defines histogram bucket boundaries (in seconds) for
// per-frame and per-request inference latencies.
var inferenceBuckets = []float64{
	0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.RecordingDuration, err = m.Float64Histogram("voicewire.recording.duration",
		metric.WithDescription("Wall time of one recording session."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(recordingBuckets...),
	); err != nil {
		return nil, err
	}
	if met.FramesProcessed, err = m.Int64Counter("voicewire.recording.frames",
		metric.WithDescription("Audio frames pushed through the VAD loop."),
	); err != nil {
		return nil, err
	}
	if met.VADLatency, err = m.Float64Histogram("voicewire.vad.latency",
		metric.WithDescription("Per-frame VAD inference latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(inferenceBuckets...),
	); err != nil {
		return nil, err
	}
	if met.STTDuration, err = m.Float64Histogram("voicewire.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(inferenceBuckets...),
	); err != nil {
		return nil, err
	}
	if met.STTRequests, err = m.Int64Counter("voicewire.stt.requests",
		metric.WithDescription("Transcription attempts by backend and status."),
	); err != nil {
		return nil, err
	}
	if met.ChannelReconnects, err = m.Int64Counter("voicewire.channel.reconnects",
		metric.WithDescription("Reconnect attempts to the observer socket."),
	); err != nil {
		return nil, err
	}
	if met.SessionsBusy, err = m.Int64Counter("voicewire.sessions.busy",
		metric.WithDescription("Booking attempts rejected by an existing session."),
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

// RecordSTTRequest records a transcription attempt with the standard
// attribute set.
func (m *Metrics) RecordSTTRequest(ctx context.Context, backend, status string) {
	m.STTRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("backend", backend),
			attribute.String("status", status),
		),
	)
}
