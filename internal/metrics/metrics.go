// Package metrics exposes the tunnel client's Prometheus instrumentation,
// following the prometheus.Desc/Collect style used in
// runZeroInc-sockstats/pkg/exporter/exporter.go, but built from
// promauto counters/gauges rather than a hand-rolled Collector, since
// nothing here needs per-scrape computed values the way TCP_INFO does.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the session layer's instrumentation. Construct one
// per process with New and pass it to the Engine.
type Metrics struct {
	LiveSessions   prometheus.Gauge
	PacketsOut     prometheus.Counter
	PacketsDropped *prometheus.CounterVec
	Retransmits    prometheus.Counter
	SessionsClosed prometheus.Counter
	ChunksReceived prometheus.Counter
}

// New registers and returns a fresh Metrics bundle under the given
// registerer. cmd/dnstunnel passes a private prometheus.NewRegistry(),
// which it serves on /metrics; a fresh registry per call also avoids
// promauto's panic on duplicate registration.
func New(reg prometheus.Registerer, runID string) *Metrics {
	factory := promauto.With(reg)
	constLabels := prometheus.Labels{"run_id": runID}

	return &Metrics{
		LiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "dnstunnel",
			Name:        "live_sessions",
			Help:        "Number of sessions currently tracked by the registry.",
			ConstLabels: constLabels,
		}),
		PacketsOut: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "dnstunnel",
			Name:        "packets_out_total",
			Help:        "Number of PACKET_OUT frames emitted.",
			ConstLabels: constLabels,
		}),
		PacketsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "dnstunnel",
			Name:        "packets_dropped_total",
			Help:        "Number of inbound packets dropped, labeled by reason.",
			ConstLabels: constLabels,
		}, []string{"reason"}),
		Retransmits: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "dnstunnel",
			Name:        "retransmits_total",
			Help:        "Number of times a send was naturally a retransmission (non-consumed outgoing data resent).",
			ConstLabels: constLabels,
		}),
		SessionsClosed: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "dnstunnel",
			Name:        "sessions_closed_total",
			Help:        "Number of sessions torn down by the heartbeat pump.",
			ConstLabels: constLabels,
		}),
		ChunksReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "dnstunnel",
			Name:        "chunks_received_total",
			Help:        "Number of chunked-download chunks accepted across all sessions.",
			ConstLabels: constLabels,
		}),
	}
}
