package telemetry

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/polisai/cosmosclient/pkg/domain"
	"github.com/polisai/cosmosclient/pkg/handlers"
)

func setupTestMeter(t *testing.T) *sdkmetric.ManualReader {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	prev := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)
	t.Cleanup(func() {
		otel.SetMeterProvider(prev)
		ResetMetricsForTest()
	})
	ResetMetricsForTest()
	return reader
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	metrics := map[string]metricdata.Metrics{}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			metrics[m.Name] = m
		}
	}
	return metrics
}

func sumOf(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	data, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", m.Name)
	var total int64
	for _, dp := range data.DataPoints {
		total += dp.Value
	}
	return total
}

func TestRecordRequestMetrics(t *testing.T) {
	reader := setupTestMeter(t)

	RecordRequestMetrics(context.Background(), RequestMetrics{
		Operation:    handlers.OperationCreate,
		ResourceType: handlers.ResourceUser,
		StatusCode:   http.StatusTooManyRequests,
		Duration:     150 * time.Millisecond,
		Retries:      2,
	})

	metrics := collectMetrics(t, reader)

	assert.Equal(t, int64(1), sumOf(t, metrics["cosmos.client.requests_total"]))
	assert.Equal(t, int64(2), sumOf(t, metrics["cosmos.client.retries_total"]))
	assert.Equal(t, int64(1), sumOf(t, metrics["cosmos.client.throttled_total"]))

	hist, ok := metrics["cosmos.client.duration_ms"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, 150.0, hist.DataPoints[0].Sum)

	attrs := hist.DataPoints[0].Attributes
	op, _ := attrs.Value(attribute.Key("cosmos.operation"))
	assert.Equal(t, "Create", op.AsString())
}

func TestMetricsHandler(t *testing.T) {
	reader := setupTestMeter(t)

	clock := time.Unix(0, 0)
	h := NewMetricsHandler()
	h.now = func() time.Time {
		clock = clock.Add(10 * time.Millisecond)
		return clock
	}

	transport := handlers.TransportFunc(func(context.Context, *handlers.Request) (*handlers.Response, error) {
		hdr := http.Header{}
		hdr.Set(handlers.HeaderThrottleRetryCount, "3")
		return &handlers.Response{StatusCode: http.StatusOK, Headers: hdr}, nil
	})
	p, err := handlers.Chain(transport, nil, h)
	require.NoError(t, err)

	_, err = p.Send(context.Background(), &handlers.Request{Operation: handlers.OperationRead, ResourceType: handlers.ResourceUser})
	require.NoError(t, err)

	failing := p.WithTransport(handlers.TransportFunc(func(context.Context, *handlers.Request) (*handlers.Response, error) {
		return nil, errors.New("connection refused")
	}))
	_, err = failing.Send(context.Background(), &handlers.Request{Operation: handlers.OperationRead})
	require.Error(t, err)

	metrics := collectMetrics(t, reader)
	assert.Equal(t, int64(2), sumOf(t, metrics["cosmos.client.requests_total"]))
	assert.Equal(t, int64(3), sumOf(t, metrics["cosmos.client.retries_total"]))
	assert.Equal(t, int64(1), sumOf(t, metrics["cosmos.client.errors_total"]))
}

func TestRecordRetryEvent(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	_, span := tp.Tracer("test").Start(context.Background(), "request")
	RecordRetryEvent(span, 0, http.StatusOK)
	RecordRetryEvent(span, 2, http.StatusCreated)
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	events := spans[0].Events()
	require.Len(t, events, 1)
	assert.Equal(t, "cosmos.throttle_retry", events[0].Name)

	attrs := attribute.NewSet(events[0].Attributes...)
	count, ok := attrs.Value("cosmos.retry.count")
	require.True(t, ok)
	assert.Equal(t, int64(2), count.AsInt64())
}

func TestRecordConnectionPolicy(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	policy := domain.NewConnectionPolicy(domain.ConnectionPolicyFields{
		ConnectionMode:            domain.ConnectionModeGateway,
		Protocol:                  domain.ProtocolHTTPS,
		MaxConnectionLimit:        9001,
		RequestTimeout:            time.Minute,
		PreferredLocations:        []string{"West Central US"},
		UseMultipleWriteLocations: true,
		RetryOptions:              domain.RetryOptions{MaxRetryAttemptsOnThrottledRequests: 9, MaxRetryWaitTimeInSeconds: 30},
	})

	_, span := tp.Tracer("test").Start(context.Background(), "build")
	RecordConnectionPolicy(span, policy)
	span.End()

	attrs := attribute.NewSet(recorder.Ended()[0].Attributes()...)
	mode, _ := attrs.Value("cosmos.connection_mode")
	assert.Equal(t, "Gateway", mode.AsString())
	limit, _ := attrs.Value("cosmos.max_connection_limit")
	assert.Equal(t, int64(9001), limit.AsInt64())
	locations, _ := attrs.Value("cosmos.preferred_locations")
	assert.Equal(t, []string{"West Central US"}, locations.AsStringSlice())
}

func TestRecordConfigError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	_, span := tp.Tracer("test").Start(context.Background(), "build")
	RecordConfigError(span, nil)
	RecordConfigError(span, domain.ErrMissingEndpoint)
	span.End()

	ended := recorder.Ended()[0]
	assert.Equal(t, codes.Error, ended.Status().Code)
	assert.Equal(t, "MISSING_FIELD", ended.Status().Description)
	assert.Len(t, ended.Events(), 1)
}
