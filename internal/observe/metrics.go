// Package observe holds orbtalk's telemetry: OpenTelemetry instruments for
// the protocol, codec and session, a Prometheus bridge for the admin
// server's /metrics, span helpers and trace-aware loggers.
//
// Production code records into [DefaultMetrics], which follows the global
// meter provider installed by [Setup]. Tests build their own with
// [NewMetrics] over a ManualReader.
package observe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// scope is the instrumentation scope of every orbtalk meter and tracer.
const scope = "github.com/MrWong99/orbtalk"

// Reasons recorded on [Metrics.FramesDropped].
const (
	DropEmptyMessage  = "empty_message"
	DropUnknownType   = "unknown_type"
	DropMalformed     = "malformed"
	DropEncodeNoop    = "encode_no_output"
	DropCodecError    = "codec_error"
	DropCaptureLagged = "capture_lagged"
	DropNotActive     = "not_active"
)

// Metrics holds the client's instruments. The OTel types are safe for
// concurrent use.
type Metrics struct {
	// Protocol, labelled with "type" or "reason".
	FramesReceived metric.Int64Counter
	FramesSent     metric.Int64Counter
	FramesDropped  metric.Int64Counter

	// Codec.
	CodecFallbacks metric.Int64Counter
	EncodeDuration metric.Float64Histogram
	DecodeDuration metric.Float64Histogram

	// Session. SessionDuration is labelled with the close "reason".
	WatchdogExpiries metric.Int64Counter
	SessionDuration  metric.Float64Histogram
	ActiveSessions   metric.Int64UpDownCounter
	PlaybackQueued   metric.Int64UpDownCounter

	// Admin server, labelled with "method", "route" and "code".
	HTTPRequestDuration metric.Float64Histogram
}

// Bucket boundaries in seconds.
var (
	codecBuckets   = []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05}
	sessionBuckets = []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600}
	httpBuckets    = []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1}
)

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(scope)
	var errs []error

	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		errs = append(errs, err)
		return c
	}
	gauge := func(name, desc string) metric.Int64UpDownCounter {
		g, err := meter.Int64UpDownCounter(name, metric.WithDescription(desc))
		errs = append(errs, err)
		return g
	}
	seconds := func(name, desc string, buckets []float64) metric.Float64Histogram {
		h, err := meter.Float64Histogram(name,
			metric.WithDescription(desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(buckets...),
		)
		errs = append(errs, err)
		return h
	}

	m := &Metrics{
		FramesReceived: counter("orbtalk.frames.received", "Inbound protocol frames by type."),
		FramesSent:     counter("orbtalk.frames.sent", "Outbound protocol frames by type."),
		FramesDropped:  counter("orbtalk.frames.dropped", "Frames or audio buffers dropped, by reason."),

		CodecFallbacks: counter("orbtalk.codec.fallbacks", "Codec adapters that fell back to raw PCM16."),
		EncodeDuration: seconds("orbtalk.codec.encode.duration", "Latency of encoding one captured buffer.", codecBuckets),
		DecodeDuration: seconds("orbtalk.codec.decode.duration", "Latency of decoding one inbound audio frame.", codecBuckets),

		WatchdogExpiries: counter("orbtalk.watchdog.expiries", "Sessions closed by the inactivity watchdog."),
		SessionDuration:  seconds("orbtalk.session.duration", "Session lifetime from start to teardown, by close reason.", sessionBuckets),
		ActiveSessions:   gauge("orbtalk.active_sessions", "Sessions in the Active state."),
		PlaybackQueued:   gauge("orbtalk.playback.queued", "Decoded audio buffers waiting for output."),

		HTTPRequestDuration: seconds("orbtalk.http.request.duration", "Admin HTTP request latency.", httpBuckets),
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("observe: create instruments: %w", err)
	}
	return m, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the process-wide instruments, created on first use
// from [otel.GetMeterProvider]. The global provider delegates, so instruments
// created before [Setup] still reach its exporter.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		m, err := NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic(err)
		}
		defaultMetrics = m
	})
	return defaultMetrics
}

// RecordFrameReceived counts one inbound frame of type typ.
func (m *Metrics) RecordFrameReceived(ctx context.Context, typ string) {
	m.FramesReceived.Add(ctx, 1, metric.WithAttributes(attribute.String("type", typ)))
}

// RecordFrameSent counts one outbound frame of type typ.
func (m *Metrics) RecordFrameSent(ctx context.Context, typ string) {
	m.FramesSent.Add(ctx, 1, metric.WithAttributes(attribute.String("type", typ)))
}

// RecordDrop counts one dropped frame or buffer.
func (m *Metrics) RecordDrop(ctx context.Context, reason string) {
	m.FramesDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordSession records a finished session's lifetime.
func (m *Metrics) RecordSession(ctx context.Context, d time.Duration, reason string) {
	m.SessionDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("reason", reason)))
}
