// Package observe provides application-wide observability primitives for the
// bridge: OpenTelemetry metrics, distributed tracing, structured logging, and
// HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
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

// meterName is the instrumentation scope name used for every bridge metric.
const meterName = "github.com/MrWong99/voicebridge"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Connection monitor instruments ---

	// ConnectionsActive tracks the number of currently connected per-account
	// monitors. Use with attribute.String("account_id", ...).
	ConnectionsActive metric.Int64UpDownCounter

	// HandshakeDuration tracks how long the system.hello handshake takes,
	// from dial to a successful response.
	HandshakeDuration metric.Float64Histogram

	// ReconnectAttempts counts reconnect attempts by account.
	ReconnectAttempts metric.Int64Counter

	// InboundFrames counts inbound envelope frames by op.
	InboundFrames metric.Int64Counter

	// OutboundFrames counts outbound envelope frames by op.
	OutboundFrames metric.Int64Counter

	// --- Agent bridge instruments ---

	// AgentRequestDuration tracks agent back-end call latency. Use with
	// attribute.String("backend", ...).
	AgentRequestDuration metric.Float64Histogram

	// AgentRequests counts agent back-end calls. Use with attributes:
	//   attribute.String("backend", ...), attribute.String("status", ...)
	AgentRequests metric.Int64Counter

	// AgentErrors counts agent back-end call failures by backend.
	AgentErrors metric.Int64Counter

	// ActionsEmitted counts actions returned to the peer by action kind
	// ("speak", "collect", "end").
	ActionsEmitted metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for network round-trip latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// handshakeBucketsMs defines histogram bucket boundaries (in milliseconds)
// for the handshake latency, which is expected to be much shorter than an
// agent completion round-trip.
var handshakeBucketsMs = []float64{
	10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ConnectionsActive, err = m.Int64UpDownCounter("bridge_connections_active",
		metric.WithDescription("Number of currently connected per-account monitors."),
	); err != nil {
		return nil, err
	}
	if met.HandshakeDuration, err = m.Float64Histogram("bridge_handshake_duration_ms",
		metric.WithDescription("Duration of the system.hello handshake, from dial to success."),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(handshakeBucketsMs...),
	); err != nil {
		return nil, err
	}
	if met.ReconnectAttempts, err = m.Int64Counter("bridge_reconnect_attempts_total",
		metric.WithDescription("Total reconnect attempts by account."),
	); err != nil {
		return nil, err
	}
	if met.InboundFrames, err = m.Int64Counter("bridge_inbound_frames_total",
		metric.WithDescription("Total inbound envelope frames by operation."),
	); err != nil {
		return nil, err
	}
	if met.OutboundFrames, err = m.Int64Counter("bridge_outbound_frames_total",
		metric.WithDescription("Total outbound envelope frames by operation."),
	); err != nil {
		return nil, err
	}

	if met.AgentRequestDuration, err = m.Float64Histogram("bridge_agent_request_duration_seconds",
		metric.WithDescription("Latency of calls to the agent back-end."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AgentRequests, err = m.Int64Counter("bridge_agent_requests_total",
		metric.WithDescription("Total agent back-end calls by backend and status."),
	); err != nil {
		return nil, err
	}
	if met.AgentErrors, err = m.Int64Counter("bridge_agent_errors_total",
		metric.WithDescription("Total agent back-end call failures by backend."),
	); err != nil {
		return nil, err
	}
	if met.ActionsEmitted, err = m.Int64Counter("bridge_actions_emitted_total",
		metric.WithDescription("Total actions returned to the peer by action kind."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("bridge_http_request_duration_seconds",
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

// RecordHandshake records a handshake attempt's duration in milliseconds.
func (m *Metrics) RecordHandshake(ctx context.Context, accountID string, durationMs float64) {
	m.HandshakeDuration.Record(ctx, durationMs, metric.WithAttributes(attribute.String("account_id", accountID)))
}

// RecordReconnectAttempt increments the reconnect counter for accountID.
func (m *Metrics) RecordReconnectAttempt(ctx context.Context, accountID string) {
	m.ReconnectAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String("account_id", accountID)))
}

// RecordInboundFrame increments the inbound frame counter for op.
func (m *Metrics) RecordInboundFrame(ctx context.Context, accountID, op string) {
	m.InboundFrames.Add(ctx, 1, metric.WithAttributes(
		attribute.String("account_id", accountID), attribute.String("op", op),
	))
}

// RecordOutboundFrame increments the outbound frame counter for op.
func (m *Metrics) RecordOutboundFrame(ctx context.Context, accountID, op string) {
	m.OutboundFrames.Add(ctx, 1, metric.WithAttributes(
		attribute.String("account_id", accountID), attribute.String("op", op),
	))
}

// RecordAgentRequest is a convenience method that records an agent back-end
// call's latency and outcome with the standard attribute set.
func (m *Metrics) RecordAgentRequest(ctx context.Context, backend, status string, durationSeconds float64) {
	m.AgentRequestDuration.Record(ctx, durationSeconds, metric.WithAttributes(attribute.String("backend", backend)))
	m.AgentRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("backend", backend), attribute.String("status", status),
	))
	if status != "ok" {
		m.AgentErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("backend", backend)))
	}
}

// RecordActionEmitted increments the action counter for kind ("speak",
// "collect", "end").
func (m *Metrics) RecordActionEmitted(ctx context.Context, kind string) {
	m.ActionsEmitted.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}
