package client

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/polisai/cosmosclient/pkg/handlers"
)

// Metrics holds the Prometheus metrics for client operations.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestErrors   *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates client metrics registered on registry. A nil registry gets a private one.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cosmos_client_requests_total",
				Help: "Total number of client operations by operation, resource type and status code",
			},
			[]string{"operation", "resource_type", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cosmos_client_request_duration_seconds",
				Help:    "Client operation latency in seconds, retries included",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "resource_type"},
		),
		requestErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cosmos_client_request_errors_total",
				Help: "Total number of client operations that failed before a response was received",
			},
			[]string{"operation", "resource_type"},
		),
		registry: registry,
	}

	registry.MustRegister(m.requestsTotal, m.requestDuration, m.requestErrors)

	return m
}

// RecordRequest records one operation. A nil resp counts as a transport error.
func (m *Metrics) RecordRequest(req *handlers.Request, resp *handlers.Response, duration time.Duration) {
	op := string(req.Operation)
	rt := string(req.ResourceType)

	m.requestDuration.WithLabelValues(op, rt).Observe(duration.Seconds())
	if resp == nil {
		m.requestErrors.WithLabelValues(op, rt).Inc()
		return
	}
	m.requestsTotal.WithLabelValues(op, rt, strconv.Itoa(resp.StatusCode)).Inc()
}

// Handler returns an HTTP handler exposing the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
