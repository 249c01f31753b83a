// Package observe provides observability primitives for FluentSpeak:
// OpenTelemetry metrics with a Prometheus exporter bridge so the embedding
// deployment can scrape /metrics.
//
// A package-level default [Metrics] instance ([DefaultMetrics]) is provided
// for convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all FluentSpeak metrics.
const meterName = "github.com/Johnwalk12/fluentspeak"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// RecordingDuration tracks how long recordings run from start to finalize.
	RecordingDuration metric.Float64Histogram

	// RecordingsStarted counts recording attempts. Use with attribute:
	//   attribute.String("session_id", ...)
	RecordingsStarted metric.Int64Counter

	// RecordingsCompleted counts recordings finalized into an artifact.
	RecordingsCompleted metric.Int64Counter

	// AcquireFailures counts audio input acquisition failures. Use with
	// attribute: attribute.String("reason", ...)
	AcquireFailures metric.Int64Counter

	// TranscriptResults counts recognition result fragments. Use with
	// attribute: attribute.String("kind", "final"|"interim")
	TranscriptResults metric.Int64Counter

	// EngineRestarts counts automatic recognition engine restarts.
	EngineRestarts metric.Int64Counter

	// Notifications counts presented messages. Use with attribute:
	//   attribute.String("level", ...)
	Notifications metric.Int64Counter

	// ActiveRecordings tracks sessions currently in the recording state.
	ActiveRecordings metric.Int64UpDownCounter
}

// durationBuckets defines histogram bucket boundaries (in seconds) suited to
// recordings bounded by the max-duration timer.
var durationBuckets = []float64{
	0.5, 1, 2.5, 5, 10, 20, 30, 45, 60, 90,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.RecordingDuration, err = m.Float64Histogram("fluentspeak.recording.duration",
		metric.WithDescription("Duration of recordings from start to finalize."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RecordingsStarted, err = m.Int64Counter("fluentspeak.recordings.started",
		metric.WithDescription("Total recording attempts by session."),
	); err != nil {
		return nil, err
	}
	if met.RecordingsCompleted, err = m.Int64Counter("fluentspeak.recordings.completed",
		metric.WithDescription("Total recordings finalized into an artifact."),
	); err != nil {
		return nil, err
	}
	if met.AcquireFailures, err = m.Int64Counter("fluentspeak.input.acquire_failures",
		metric.WithDescription("Total audio input acquisition failures by reason."),
	); err != nil {
		return nil, err
	}
	if met.TranscriptResults, err = m.Int64Counter("fluentspeak.transcript.results",
		metric.WithDescription("Total recognition result fragments by kind."),
	); err != nil {
		return nil, err
	}
	if met.EngineRestarts, err = m.Int64Counter("fluentspeak.engine.restarts",
		metric.WithDescription("Total automatic recognition engine restarts."),
	); err != nil {
		return nil, err
	}
	if met.Notifications, err = m.Int64Counter("fluentspeak.notifications",
		metric.WithDescription("Total presented notifications by level."),
	); err != nil {
		return nil, err
	}
	if met.ActiveRecordings, err = m.Int64UpDownCounter("fluentspeak.active_recordings",
		metric.WithDescription("Number of sessions currently recording."),
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

// RecordStarted records a recording attempt for the session.
func (m *Metrics) RecordStarted(ctx context.Context, sessionID string) {
	m.RecordingsStarted.Add(ctx, 1,
		metric.WithAttributes(attribute.String("session_id", sessionID)),
	)
}

// RecordCompleted records a finalized recording and its duration.
func (m *Metrics) RecordCompleted(ctx context.Context, sessionID string, seconds float64) {
	m.RecordingsCompleted.Add(ctx, 1,
		metric.WithAttributes(attribute.String("session_id", sessionID)),
	)
	m.RecordingDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("session_id", sessionID)),
	)
}

// RecordAcquireFailure records an input acquisition failure.
func (m *Metrics) RecordAcquireFailure(ctx context.Context, reason string) {
	m.AcquireFailures.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// RecordNotification records one presented notification message.
func (m *Metrics) RecordNotification(ctx context.Context, level string) {
	m.Notifications.Add(ctx, 1,
		metric.WithAttributes(attribute.String("level", level)),
	)
}

// RecordTranscript records a recognition result fragment.
func (m *Metrics) RecordTranscript(ctx context.Context, kind string) {
	m.TranscriptResults.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}
