package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusCollector exports engine metrics from a private registry.
type PrometheusCollector struct {
	beliefUpdates    *prometheus.CounterVec
	cascadeUpdates   prometheus.Counter
	outcomes         *prometheus.CounterVec
	retries          prometheus.Counter
	escalations      *prometheus.CounterVec
	autonomyStrength prometheus.Histogram
	autonomyModes    *prometheus.CounterVec
	registry         *prometheus.Registry
}

func NewPrometheusCollector() *PrometheusCollector {
	registry := prometheus.NewRegistry()

	c := &PrometheusCollector{
		beliefUpdates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenet_belief_updates_total",
				Help: "Belief strength updates by result",
			},
			[]string{"result"},
		),
		cascadeUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tenet_cascade_updates_total",
			Help: "Strength updates applied through support edges",
		}),
		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenet_verification_outcomes_total",
				Help: "Terminal verification states",
			},
			[]string{"state"},
		),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tenet_verification_retries_total",
			Help: "Retry transitions taken by the verification machine",
		}),
		escalations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenet_escalations_total",
				Help: "Escalations routed to human review by reason",
			},
			[]string{"reason"},
		),
		autonomyStrength: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tenet_autonomy_strength",
			Help:    "Belief strength seen by the autonomy classifier",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		}),
		autonomyModes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenet_autonomy_decisions_total",
				Help: "Autonomy classifications by mode",
			},
			[]string{"mode"},
		),
		registry: registry,
	}

	registry.MustRegister(
		c.beliefUpdates,
		c.cascadeUpdates,
		c.outcomes,
		c.retries,
		c.escalations,
		c.autonomyStrength,
		c.autonomyModes,
	)
	return c
}

func (c *PrometheusCollector) BeliefUpdate(result string) {
	c.beliefUpdates.WithLabelValues(result).Inc()
}

func (c *PrometheusCollector) CascadeUpdate() {
	c.cascadeUpdates.Inc()
}

func (c *PrometheusCollector) VerificationOutcome(state string) {
	c.outcomes.WithLabelValues(state).Inc()
}

func (c *PrometheusCollector) VerificationRetry() {
	c.retries.Inc()
}

func (c *PrometheusCollector) Escalation(reason string) {
	c.escalations.WithLabelValues(reason).Inc()
}

func (c *PrometheusCollector) AutonomyDecision(mode string, strength float64) {
	c.autonomyModes.WithLabelValues(mode).Inc()
	c.autonomyStrength.Observe(strength)
}

// Registry returns the registry for HTTP exposure.
func (c *PrometheusCollector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *PrometheusCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
