package telemetry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc/credentials"
)

const exporterDialTimeout = 10 * time.Second

// Config selects where spans go and how the process identifies itself.
// An empty Endpoint leaves the global no-op tracer provider in place.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	Insecure       bool
	Headers        map[string]string
	// SampleRatio is the fraction of root spans kept; zero keeps all of them.
	SampleRatio float64
	Attributes  map[string]string
}

// SetupProvider installs a batching OTLP/gRPC tracer provider as the global
// provider. The returned function flushes and stops it.
func SetupProvider(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	if cfg.Endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, exporterDialTimeout)
	defer cancel()
	exporter, err := otlptrace.New(dialCtx, otlptracegrpc.NewClient(exporterOptions(cfg)...))
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	res, err := serviceResource(ctx, cfg)
	if err != nil {
		_ = exporter.Shutdown(ctx)
		return nil, fmt.Errorf("create resource: %w", err)
	}

	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRatio > 0 && cfg.SampleRatio < 1 {
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRatio)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
	)
	otel.SetTracerProvider(provider)
	return provider.Shutdown, nil
}

func exporterOptions(cfg Config) []otlptracegrpc.Option {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	} else {
		opts = append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewClientTLSFromCert(nil, "")))
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
	}
	return opts
}

func serviceResource(ctx context.Context, cfg Config) (*resource.Resource, error) {
	name := cfg.ServiceName
	if name == "" {
		name = "cosmosclient"
	}
	attrs := make([]attribute.KeyValue, 0, 2+len(cfg.Attributes))
	attrs = append(attrs, semconv.ServiceName(name))
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.ServiceVersion))
	}
	for k, v := range cfg.Attributes {
		attrs = append(attrs, attribute.String(k, v))
	}
	return resource.New(ctx,
		resource.WithSchemaURL(semconv.SchemaURL),
		resource.WithAttributes(attrs...),
	)
}

// Redaction strategies accepted by RedactAttributes.
const (
	RedactDrop = "drop"
	RedactMask = "mask"
	RedactHash = "hash"
)

// defaultDropKeys never leave the process.
var defaultDropKeys = map[string]struct{}{
	"cosmos.account_key":                {},
	"cosmos.connection_string":          {},
	"http.request.header.authorization": {},
	"request.body":                      {},
	"response.body":                     {},
}

// RedactAttributes filters attributes before they are attached to a span.
// Secret-bearing keys are always dropped. strategies maps further keys onto
// RedactDrop, RedactMask or RedactHash; any other strategy replaces the value
// with a placeholder.
func RedactAttributes(attrs []attribute.KeyValue, strategies map[string]string) []attribute.KeyValue {
	out := attrs[:0:0]
	for _, kv := range attrs {
		key := string(kv.Key)
		if _, secret := defaultDropKeys[key]; secret {
			continue
		}

		strategy, ok := strategies[key]
		if !ok {
			out = append(out, kv)
			continue
		}

		switch strings.ToLower(strategy) {
		case RedactDrop:
		case RedactMask:
			out = append(out, attribute.String(key, maskValue(kv.Value.Emit())))
		case RedactHash:
			out = append(out, attribute.String(key, hashValue(kv.Value.Emit())))
		default:
			out = append(out, attribute.String(key, "[REDACTED]"))
		}
	}
	return out
}

// maskValue keeps four characters at each end: "https://acct.example/" becomes "http***ple/".
func maskValue(s string) string {
	const keep = 4
	if len(s) <= 2*keep {
		return "***"
	}
	return s[:keep] + "***" + s[len(s)-keep:]
}

func hashValue(s string) string {
	if s == "" {
		return "[REDACTED:hash]"
	}
	sum := sha256.Sum256([]byte(s))
	return "[REDACTED:sha256:" + hex.EncodeToString(sum[:8]) + "]"
}
