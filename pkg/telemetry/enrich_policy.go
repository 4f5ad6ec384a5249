package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/polisai/cosmosclient/pkg/domain"
)

// RecordConnectionPolicy annotates the span with the resolved connection policy.
func RecordConnectionPolicy(span trace.Span, policy domain.ConnectionPolicy) {
	if !span.IsRecording() {
		return
	}

	retry := policy.RetryOptions()
	span.SetAttributes(
		attribute.String("cosmos.connection_mode", policy.ConnectionMode().String()),
		attribute.String("cosmos.protocol", policy.Protocol().String()),
		attribute.Int("cosmos.max_connection_limit", policy.MaxConnectionLimit()),
		attribute.Int64("cosmos.request_timeout_ms", policy.RequestTimeout().Milliseconds()),
		attribute.Bool("cosmos.multiple_write_locations", policy.UseMultipleWriteLocations()),
		attribute.StringSlice("cosmos.preferred_locations", policy.PreferredLocations()),
		attribute.Int("cosmos.retry.max_attempts", retry.MaxRetryAttemptsOnThrottledRequests),
		attribute.Int("cosmos.retry.max_wait_seconds", retry.MaxRetryWaitTimeInSeconds),
	)
}

// RecordConfigError marks the span failed with the error kind as a coarse code.
func RecordConfigError(span trace.Span, err error) {
	if err == nil || !span.IsRecording() {
		return
	}

	kind := domain.KindOf(err)
	if kind == "" {
		kind = "UNKNOWN"
	}
	span.SetAttributes(attribute.String("cosmos.config.error_kind", string(kind)))
	span.RecordError(err)
	span.SetStatus(codes.Error, string(kind))
}
