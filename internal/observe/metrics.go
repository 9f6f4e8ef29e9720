// Package observe provides observability primitives for the parley client:
// OpenTelemetry metrics with a Prometheus exporter bridge, and a tracer for
// command round-trips.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A package
// default is deliberately absent; construct [Metrics] with [NewMetrics] and
// inject it, so tests can use an isolated [metric.MeterProvider].
package observe

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all client metrics.
const meterName = "github.com/parley-voice/parley"

// Metrics holds all OpenTelemetry metric instruments for the client.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// SessionDuration tracks recording session length from device acquisition
	// to stop.
	SessionDuration metric.Float64Histogram

	// SessionStops counts session terminations. Use with attribute:
	//   attribute.String("reason", ...) — "vad", "ceiling", "manual", "shutdown"
	SessionStops metric.Int64Counter

	// Reconnects counts transport channel reconnect cycles.
	Reconnects metric.Int64Counter

	// MessagesSent counts outbound frames. Use with attribute:
	//   attribute.String("type", ...)
	MessagesSent metric.Int64Counter

	// HeuristicMatches counts local match attempts. Use with attribute:
	//   attribute.String("status", ...) — "matched", "no_match", "error"
	HeuristicMatches metric.Int64Counter

	// HeuristicCacheLookups counts match-cache probes. Use with attribute:
	//   attribute.Bool("hit", ...)
	HeuristicCacheLookups metric.Int64Counter

	// ActiveSessions tracks whether a recording session is live (0 or 1).
	ActiveSessions metric.Int64UpDownCounter
}

// sessionBuckets defines histogram bucket boundaries (in seconds) sized for
// voice recordings bounded by the 60 s hard ceiling.
var sessionBuckets = []float64{
	0.5, 1, 2, 5, 10, 15, 30, 45, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.SessionDuration, err = m.Float64Histogram("parley.session.duration",
		metric.WithDescription("Length of recording sessions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(sessionBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SessionStops, err = m.Int64Counter("parley.session.stops",
		metric.WithDescription("Session terminations by reason."),
	); err != nil {
		return nil, err
	}
	if met.Reconnects, err = m.Int64Counter("parley.transport.reconnects",
		metric.WithDescription("Transport channel reconnect cycles."),
	); err != nil {
		return nil, err
	}
	if met.MessagesSent, err = m.Int64Counter("parley.transport.messages_sent",
		metric.WithDescription("Outbound frames by type."),
	); err != nil {
		return nil, err
	}
	if met.HeuristicMatches, err = m.Int64Counter("parley.heuristic.matches",
		metric.WithDescription("Local command match attempts by status."),
	); err != nil {
		return nil, err
	}
	if met.HeuristicCacheLookups, err = m.Int64Counter("parley.heuristic.cache_lookups",
		metric.WithDescription("Match-cache probes by outcome."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("parley.session.active",
		metric.WithDescription("Live recording sessions."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// Reason returns the attribute set for a session stop reason.
func Reason(r string) metric.AddOption {
	return metric.WithAttributes(attribute.String("reason", r))
}

// Status returns the attribute set for a match status.
func Status(s string) metric.AddOption {
	return metric.WithAttributes(attribute.String("status", s))
}

// MessageType returns the attribute set for an outbound frame type.
func MessageType(t string) metric.AddOption {
	return metric.WithAttributes(attribute.String("type", t))
}

// CacheHit returns the attribute set for a cache probe outcome.
func CacheHit(hit bool) metric.AddOption {
	return metric.WithAttributes(attribute.Bool("hit", hit))
}
