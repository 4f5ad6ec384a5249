package telemetry

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/polisai/cosmosclient/pkg/handlers"
)

var (
	metricsOnce             sync.Once
	metricsInitErr          error
	requestCounter          metric.Int64Counter
	requestRetryCounter     metric.Int64Counter
	requestThrottledCounter metric.Int64Counter
	requestErrorCounter     metric.Int64Counter
	requestLatencyHistogram metric.Float64Histogram
)

// RequestMetrics captures the fields recorded for one request through the pipeline.
type RequestMetrics struct {
	Operation    handlers.OperationType
	ResourceType handlers.ResourceType
	// StatusCode is zero when the request failed before a response arrived.
	StatusCode int
	Duration   time.Duration
	Retries    int
	Err        error
}

// RecordRequestMetrics emits counters and histograms that describe a request.
func RecordRequestMetrics(ctx context.Context, m RequestMetrics) {
	if err := ensureMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("cosmos.operation", string(m.Operation)),
		attribute.String("cosmos.resource_type", string(m.ResourceType)),
		attribute.Int("http.status_code", m.StatusCode),
	)

	requestCounter.Add(ctx, 1, attrs)

	if m.Duration > 0 {
		requestLatencyHistogram.Record(ctx, float64(m.Duration)/float64(time.Millisecond), attrs)
	}
	if m.Retries > 0 {
		requestRetryCounter.Add(ctx, int64(m.Retries), attrs)
	}
	if m.StatusCode == http.StatusTooManyRequests {
		requestThrottledCounter.Add(ctx, 1, attrs)
	}
	if m.Err != nil {
		requestErrorCounter.Add(ctx, 1, attrs)
	}
}

func ensureMetrics() error {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("cosmos.client")

		requestCounter, metricsInitErr = meter.Int64Counter(
			"cosmos.client.requests_total",
			metric.WithDescription("Requests sent through the pipeline partitioned by status"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		requestRetryCounter, metricsInitErr = meter.Int64Counter(
			"cosmos.client.retries_total",
			metric.WithDescription("Retries performed after throttled responses"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		requestThrottledCounter, metricsInitErr = meter.Int64Counter(
			"cosmos.client.throttled_total",
			metric.WithDescription("Requests that still ended throttled after retries"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		requestErrorCounter, metricsInitErr = meter.Int64Counter(
			"cosmos.client.errors_total",
			metric.WithDescription("Requests that failed without a response"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		requestLatencyHistogram, metricsInitErr = meter.Float64Histogram(
			"cosmos.client.duration_ms",
			metric.WithDescription("Observed request latency including retries"),
			metric.WithUnit("ms"),
		)
	})

	return metricsInitErr
}

// MetricsHandler records RequestMetrics for every request passing through it.
type MetricsHandler struct {
	now func() time.Time
}

// NewMetricsHandler creates a pipeline handler that records request metrics.
func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{now: time.Now}
}

// Inner implements handlers.RequestHandler.
func (h *MetricsHandler) Inner() handlers.RequestHandler { return nil }

// Handle implements handlers.RequestHandler.
func (h *MetricsHandler) Handle(ctx context.Context, req *handlers.Request, next handlers.Next) (*handlers.Response, error) {
	start := h.now()
	resp, err := next(ctx, req)

	m := RequestMetrics{
		Operation:    req.Operation,
		ResourceType: req.ResourceType,
		Duration:     h.now().Sub(start),
		Err:          err,
	}
	if resp != nil {
		m.StatusCode = resp.StatusCode
		m.Retries, _ = strconv.Atoi(resp.Headers.Get(handlers.HeaderThrottleRetryCount))
		RecordRetryEvent(trace.SpanFromContext(ctx), m.Retries, m.StatusCode)
	}
	RecordRequestMetrics(ctx, m)

	return resp, err
}

// RecordRetryEvent attaches a retry summary to the span without exposing request content.
func RecordRetryEvent(span trace.Span, retries int, finalStatus int) {
	if span == nil || !span.IsRecording() || retries == 0 {
		return
	}

	span.AddEvent("cosmos.throttle_retry", trace.WithAttributes(
		attribute.Int("cosmos.retry.count", retries),
		attribute.Int("http.status_code", finalStatus),
	))
}
