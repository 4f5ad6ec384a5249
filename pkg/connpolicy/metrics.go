package connpolicy

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/polisai/cosmosclient/pkg/domain"
)

const resultSuccess = "success"

// Metrics holds the Prometheus metrics for configuration resolution.
type Metrics struct {
	buildsTotal   *prometheus.CounterVec
	buildDuration prometheus.Histogram

	registry *prometheus.Registry
}

// NewMetrics creates build metrics registered on registry. A nil registry gets a private one.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		buildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cosmos_config_builds_total",
				Help: "Total number of configuration builds by result (success or error kind)",
			},
			[]string{"result"},
		),
		buildDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "cosmos_config_build_duration_seconds",
				Help:    "Configuration build latency in seconds",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
			},
		),
		registry: registry,
	}

	registry.MustRegister(m.buildsTotal, m.buildDuration)

	return m
}

// RecordBuild counts one build outcome.
func (m *Metrics) RecordBuild(err error, duration time.Duration) {
	result := resultSuccess
	if err != nil {
		result = string(domain.KindOf(err))
		if result == "" {
			result = "UNKNOWN"
		}
	}
	m.buildsTotal.WithLabelValues(result).Inc()
	m.buildDuration.Observe(duration.Seconds())
}

// Handler returns an HTTP handler exposing the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
