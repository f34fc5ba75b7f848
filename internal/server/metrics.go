package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsRegistry holds every Prometheus metric the HTTP surface and
// the scheduled jobs record against, exposed at /metrics. Each
// instance owns its own prometheus.Registry rather than the global
// default one, so constructing more than one Server in a process (as
// the test suite does) never hits a duplicate-registration panic.
type MetricsRegistry struct {
	registry *prometheus.Registry

	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	SignalCycleDuration prometheus.Histogram
	ProposalsEmitted    prometheus.Counter
	RiskRejections      *prometheus.CounterVec
	GatewayApprovals    *prometheus.CounterVec
}

// NewMetricsRegistry builds and registers every metric against a
// fresh prometheus.Registry.
func NewMetricsRegistry() *MetricsRegistry {
	m := &MetricsRegistry{
		registry: prometheus.NewRegistry(),

		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stock_agent_http_requests_total",
				Help: "Total HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stock_agent_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds by path.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path"},
		),
		SignalCycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "stock_agent_signal_cycle_duration_seconds",
				Help:    "Wall-clock duration of the 09:15 signal cycle.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
		),
		ProposalsEmitted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "stock_agent_proposals_emitted_total",
				Help: "Total trade proposals produced by the Signal Generator.",
			},
		),
		RiskRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stock_agent_risk_rejections_total",
				Help: "Total proposals rejected by the Risk Validator, by failure reason.",
			},
			[]string{"reason"},
		),
		GatewayApprovals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stock_agent_gateway_decisions_total",
				Help: "Total Approval Gateway decisions by outcome.",
			},
			[]string{"outcome"},
		),
	}

	m.registry.MustRegister(
		m.HTTPRequests,
		m.HTTPRequestDuration,
		m.SignalCycleDuration,
		m.ProposalsEmitted,
		m.RiskRejections,
		m.GatewayApprovals,
	)

	return m
}

// Handler serves the registry's metrics in the Prometheus exposition
// format.
func (m *MetricsRegistry) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveSignalCycleDuration implements scheduler.CycleMetrics.
func (m *MetricsRegistry) ObserveSignalCycleDuration(seconds float64) {
	m.SignalCycleDuration.Observe(seconds)
}

// IncProposalsEmitted implements scheduler.CycleMetrics.
func (m *MetricsRegistry) IncProposalsEmitted(n int) {
	m.ProposalsEmitted.Add(float64(n))
}

// IncRiskRejection implements scheduler.CycleMetrics.
func (m *MetricsRegistry) IncRiskRejection(reason string) {
	m.RiskRejections.WithLabelValues(reason).Inc()
}

// IncGatewayDecision records an Approval Gateway outcome (approved,
// rejected, expired, auto-executed).
func (m *MetricsRegistry) IncGatewayDecision(outcome string) {
	m.GatewayApprovals.WithLabelValues(outcome).Inc()
}
