package overlay

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics wraps the Prometheus collectors the core exposes (SPEC_FULL.md
// §4.10), grounded on the teranode/client_golang wiring the teacher's
// go.mod vendors: plain gauges/counters registered against an optional
// *prometheus.Registry, nil-safe so tests and the demo command can run
// without a registry at all.
type Metrics struct {
	authenticatedPeers prometheus.Gauge
	reportedPeers      prometheus.Gauge
	inflightHandshakes prometheus.Gauge
	handshakesTotal    *prometheus.CounterVec
	evictionsTotal     *prometheus.CounterVec
	misbehaviorTotal   prometheus.Counter

	gatherer prometheus.Gatherer
}

// NewMetrics constructs the core's metric set. If reg is non-nil, every
// collector is registered against it, and it doubles as the gatherer
// Handler serves from if it also implements prometheus.Gatherer (true for
// *prometheus.Registry). Pass nil to have NewMetrics create its own
// private, unregistered *prometheus.Registry instead, so the core never
// forces a global metrics dependency on callers (SPEC_FULL.md §4.10).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		authenticatedPeers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "overlay_authenticated_peers",
			Help: "Current number of authenticated peer connections.",
		}),
		reportedPeers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "overlay_reported_peers",
			Help: "Current number of gossiped-but-unconnected reported peers.",
		}),
		inflightHandshakes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "overlay_inflight_handshakes",
			Help: "Current number of in-flight authentication handshakes.",
		}),
		handshakesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "overlay_handshakes_total",
			Help: "Total handshakes by role and outcome.",
		}, []string{"role", "outcome"}),
		evictionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "overlay_evictions_total",
			Help: "Total peer evictions by connection tier.",
		}, []string{"tier"}),
		misbehaviorTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "overlay_misbehavior_total",
			Help: "Total reported-peer bursts classified as misbehavior.",
		}),
	}

	if reg == nil {
		registry := prometheus.NewRegistry()
		reg = registry
		m.gatherer = registry
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	} else {
		m.gatherer = prometheus.DefaultGatherer
	}
	reg.MustRegister(m.authenticatedPeers, m.reportedPeers, m.inflightHandshakes, m.handshakesTotal, m.evictionsTotal, m.misbehaviorTotal)
	return m
}

// RecordHandshake increments the handshakes counter for role/outcome. Safe
// to call on a nil *Metrics, so components can be built without metrics
// wired in during tests.
func (m *Metrics) RecordHandshake(role, outcome string) {
	if m == nil {
		return
	}
	m.handshakesTotal.WithLabelValues(role, outcome).Inc()
}

// RecordEviction increments the evictions counter for tier.
func (m *Metrics) RecordEviction(tier string) {
	if m == nil {
		return
	}
	m.evictionsTotal.WithLabelValues(tier).Inc()
}

// RecordMisbehavior increments the misbehavior counter.
func (m *Metrics) RecordMisbehavior() {
	if m == nil {
		return
	}
	m.misbehaviorTotal.Inc()
}

// SetGauges syncs the three gauges to the peer table's current set sizes.
// Called after any mutation that changes set membership.
func (m *Metrics) SetGauges(authenticated, reported, inflight int) {
	if m == nil {
		return
	}
	m.authenticatedPeers.Set(float64(authenticated))
	m.reportedPeers.Set(float64(reported))
	m.inflightHandshakes.Set(float64(inflight))
}

// Handler returns the http.Handler SPEC_FULL.md §4.11's debug surface
// mounts at /metrics. Safe to call on a nil *Metrics, in which case it
// serves an empty Prometheus exposition rather than panicking.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
