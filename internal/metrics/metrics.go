// Package metrics exposes Prometheus instrumentation for the relay pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Signal ingress outcomes.
const (
	OutcomeAccepted    = "accepted"
	OutcomeDuplicate   = "duplicate"
	OutcomeRateLimited = "rate_limited"
	OutcomeInvalid     = "invalid"
)

// Metrics holds the relay's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	SignalsTotal  *prometheus.CounterVec
	AttemptsTotal *prometheus.CounterVec
	SubmitLatency *prometheus.HistogramVec
	VenueStatus   *prometheus.GaugeVec
	Reconnects    *prometheus.CounterVec
}

// New builds the collector set on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		SignalsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_signals_total",
			Help: "Inbound signals by source and ingress outcome.",
		}, []string{"source", "outcome"}),
		AttemptsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_attempts_total",
			Help: "Execution attempts by venue and terminal status.",
		}, []string{"venue", "status"}),
		SubmitLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relay_submit_latency_seconds",
			Help:    "Order submission latency per venue, retries included.",
			Buckets: prometheus.DefBuckets,
		}, []string{"venue"}),
		VenueStatus: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "relay_venue_status",
			Help: "Venue connectivity: 0 healthy, 1 degraded, 2 offline.",
		}, []string{"venue"}),
		Reconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_reconnects_total",
			Help: "Reconnect tasks started per venue.",
		}, []string{"venue"}),
	}
}

// Handler returns the scrape endpoint for this collector set.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveSignal counts one ingress decision.
func (m *Metrics) ObserveSignal(source, outcome string) {
	if m == nil {
		return
	}
	m.SignalsTotal.WithLabelValues(source, outcome).Inc()
}

// ObserveAttempt counts one terminal attempt and its latency.
func (m *Metrics) ObserveAttempt(venue, status string, seconds float64) {
	if m == nil {
		return
	}
	m.AttemptsTotal.WithLabelValues(venue, status).Inc()
	m.SubmitLatency.WithLabelValues(venue).Observe(seconds)
}

// SetVenueStatus records the monitor's current view of one venue.
func (m *Metrics) SetVenueStatus(venue string, status int) {
	if m == nil {
		return
	}
	m.VenueStatus.WithLabelValues(venue).Set(float64(status))
}

// ObserveReconnect counts a reconnect task start.
func (m *Metrics) ObserveReconnect(venue string) {
	if m == nil {
		return
	}
	m.Reconnects.WithLabelValues(venue).Inc()
}
