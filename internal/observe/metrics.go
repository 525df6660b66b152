// Package observe provides application-wide observability primitives for
// duplexscribe: OpenTelemetry metrics and structured-logging helpers.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. Tests should use [NewMetrics]
// with a custom [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all duplexscribe metrics.
const meterName = "github.com/tomlidgett1/duplexscribe"

// Metrics holds all OpenTelemetry metric instruments for the pipeline.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Audio path counters ---

	// FramesInterleaved counts multiplexed frames emitted to the connection.
	FramesInterleaved metric.Int64Counter

	// ChunksSuppressed counts local microphone chunks dropped by the
	// echo/barge-in gate.
	ChunksSuppressed metric.Int64Counter

	// BacklogDropped counts audio bytes discarded when the reconnect
	// backlog exceeded its bound.
	BacklogDropped metric.Int64Counter

	// SendErrors counts failed audio sends to the transcription provider.
	SendErrors metric.Int64Counter

	// --- Transcript counters ---

	// ResultsReceived counts recognition results. Use with attributes:
	//   attribute.String("source", ...), attribute.Bool("final", ...)
	ResultsReceived metric.Int64Counter

	// UtterancesCommitted counts committed utterances. Use with attribute:
	//   attribute.String("source", ...)
	UtterancesCommitted metric.Int64Counter

	// InterimUpdates counts displayed-preview changes pushed to the sink.
	InterimUpdates metric.Int64Counter

	// EchoesDiscarded counts local interims dropped as remote echo.
	EchoesDiscarded metric.Int64Counter

	// --- Gauges / histograms ---

	// ConnectionsActive tracks live transcription connections (0 or 1 per
	// session).
	ConnectionsActive metric.Int64UpDownCounter

	// UtteranceDuration tracks the spoken length of committed utterances.
	UtteranceDuration metric.Float64Histogram
}

// durationBuckets defines histogram bucket boundaries (in seconds) sized for
// conversational utterances.
var durationBuckets = []float64{
	0.25, 0.5, 1, 2, 4, 8, 15, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FramesInterleaved, err = m.Int64Counter("duplexscribe.audio.frames_interleaved",
		metric.WithDescription("Multiplexed frames emitted to the transcription connection."),
	); err != nil {
		return nil, err
	}
	if met.ChunksSuppressed, err = m.Int64Counter("duplexscribe.audio.chunks_suppressed",
		metric.WithDescription("Local chunks dropped by the echo/barge-in gate."),
	); err != nil {
		return nil, err
	}
	if met.BacklogDropped, err = m.Int64Counter("duplexscribe.conn.backlog_dropped_bytes",
		metric.WithDescription("Audio bytes discarded on backlog overflow."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.SendErrors, err = m.Int64Counter("duplexscribe.conn.send_errors",
		metric.WithDescription("Failed audio sends to the transcription provider."),
	); err != nil {
		return nil, err
	}
	if met.ResultsReceived, err = m.Int64Counter("duplexscribe.transcript.results_received",
		metric.WithDescription("Recognition results received from the provider."),
	); err != nil {
		return nil, err
	}
	if met.UtterancesCommitted, err = m.Int64Counter("duplexscribe.transcript.utterances_committed",
		metric.WithDescription("Utterances committed to the transcript sink."),
	); err != nil {
		return nil, err
	}
	if met.InterimUpdates, err = m.Int64Counter("duplexscribe.transcript.interim_updates",
		metric.WithDescription("Displayed-preview changes pushed to the sink."),
	); err != nil {
		return nil, err
	}
	if met.EchoesDiscarded, err = m.Int64Counter("duplexscribe.transcript.echoes_discarded",
		metric.WithDescription("Local interims discarded as remote echo."),
	); err != nil {
		return nil, err
	}
	if met.ConnectionsActive, err = m.Int64UpDownCounter("duplexscribe.conn.active",
		metric.WithDescription("Live transcription connections."),
	); err != nil {
		return nil, err
	}
	if met.UtteranceDuration, err = m.Float64Histogram("duplexscribe.transcript.utterance_duration",
		metric.WithDescription("Spoken length of committed utterances."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	); err != nil {
		return nil, err
	}

	return met, nil
}
