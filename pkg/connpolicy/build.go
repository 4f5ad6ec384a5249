package connpolicy

import (
	"context"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/polisai/cosmosclient/pkg/config"
	"github.com/polisai/cosmosclient/pkg/connstr"
	"github.com/polisai/cosmosclient/pkg/domain"
	"github.com/polisai/cosmosclient/pkg/handlers"
	"github.com/polisai/cosmosclient/pkg/serialization"
	"github.com/polisai/cosmosclient/pkg/telemetry"
	"github.com/polisai/cosmosclient/pkg/useragent"
)

// Resolution is the outcome of a successful build.
type Resolution struct {
	Credentials connstr.Credentials
	Policy      domain.ConnectionPolicy
	Serializer  *serialization.EffectiveSerializer
	Pipeline    *handlers.Pipeline
	// Configuration is a snapshot of the input; changing it has no effect on the resolution.
	Configuration *config.ClientConfiguration
}

// Build resolves cfg. See BuildContext.
func Build(cfg *config.ClientConfiguration, opts ...Option) (*Resolution, error) {
	return BuildContext(context.Background(), cfg, opts...)
}

// BuildContext resolves cfg, recording the build as a span under ctx.
func BuildContext(ctx context.Context, cfg *config.ClientConfiguration, opts ...Option) (*Resolution, error) {
	o := newOptions(opts)
	start := time.Now()

	_, span := o.tracer.Start(ctx, "connpolicy.build")
	defer span.End()

	res, err := build(cfg, o)

	if o.metrics != nil {
		o.metrics.RecordBuild(err, time.Since(start))
	}
	if err != nil {
		telemetry.RecordConfigError(span, err)
		o.logger.Debug("connection policy build failed", "kind", domain.KindOf(err), "error", err)
		return nil, err
	}

	telemetry.RecordConnectionPolicy(span, res.Policy)
	span.SetAttributes(telemetry.RedactAttributes([]attribute.KeyValue{
		attribute.String("cosmos.endpoint", res.Credentials.Endpoint),
		attribute.String("cosmos.user_agent", res.Policy.UserAgentSuffix()),
	}, map[string]string{"cosmos.endpoint": telemetry.RedactMask})...)

	o.logger.Debug("connection policy resolved",
		"endpoint", res.Credentials.Endpoint,
		"mode", res.Policy.ConnectionMode().String(),
		"protocol", res.Policy.Protocol().String(),
		"custom_handlers", len(res.Pipeline.Custom()),
		"serializer", res.Configuration.SerializerChoice().String(),
	)
	return res, nil
}

func build(cfg *config.ClientConfiguration, o *options) (*Resolution, error) {
	if cfg == nil {
		return nil, domain.NewConfigError(domain.KindInvalidArgument, "ClientConfiguration", "configuration is nil")
	}
	if err := cfg.Err(); err != nil {
		return nil, err
	}
	snapshot := cfg.Clone()

	creds, err := resolveCredentials(snapshot)
	if err != nil {
		return nil, err
	}

	mode := snapshot.ConnectionMode
	if mode != domain.ConnectionModeDirect && mode != domain.ConnectionModeGateway {
		return nil, domain.NewConfigError(domain.KindInvalidArgument, "ConnectionMode", "unknown connection mode %s", mode)
	}

	var locations []string
	multiWrite := false
	if snapshot.ApplicationRegion != "" {
		locations = []string{snapshot.ApplicationRegion}
		multiWrite = true
	}

	custom, err := handlers.ValidateChain(snapshot.CustomHandlers)
	if err != nil {
		return nil, err
	}

	serializer, err := serialization.Resolve(snapshot.SerializerChoice())
	if err != nil {
		return nil, err
	}

	retry := domain.RetryOptions{
		MaxRetryAttemptsOnThrottledRequests: snapshot.MaxRetryAttemptsOnThrottledRequests,
		// Sub-second remainders are truncated.
		MaxRetryWaitTimeInSeconds: int(snapshot.MaxRetryWaitTimeOnThrottledRequests / time.Second),
	}

	policy := domain.NewConnectionPolicy(domain.ConnectionPolicyFields{
		ConnectionMode:            mode,
		Protocol:                  domain.ProtocolFor(mode),
		MaxConnectionLimit:        snapshot.GatewayModeMaxConnectionLimit,
		RequestTimeout:            snapshot.RequestTimeout,
		PreferredLocations:        locations,
		UseMultipleWriteLocations: multiWrite,
		UserAgentSuffix:           useragent.Compose(o.env, snapshot.ApplicationName),
		RetryOptions:              retry,
	})

	pipeline, err := handlers.Chain(o.transport, custom, builtinHandlers(policy, o)...)
	if err != nil {
		return nil, err
	}

	return &Resolution{
		Credentials:   creds,
		Policy:        policy,
		Serializer:    serializer,
		Pipeline:      pipeline,
		Configuration: snapshot,
	}, nil
}

// resolveCredentials picks the connection string when present, else the endpoint and key.
func resolveCredentials(cfg *config.ClientConfiguration) (connstr.Credentials, error) {
	var creds connstr.Credentials
	if cfg.ConnectionString != "" {
		parsed, err := connstr.Parse(cfg.ConnectionString)
		if err != nil {
			return connstr.Credentials{}, err
		}
		creds = parsed
	} else {
		creds = connstr.Credentials{Endpoint: strings.TrimSpace(cfg.Endpoint), Key: cfg.AccountKey}
	}

	if creds.Endpoint == "" {
		return connstr.Credentials{}, domain.ErrMissingEndpoint
	}
	u, err := url.Parse(creds.Endpoint)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return connstr.Credentials{}, domain.NewConfigError(domain.KindInvalidArgument, connstr.EndpointKey,
			"endpoint %q is not an absolute URI", creds.Endpoint)
	}
	if creds.Key == "" {
		return connstr.Credentials{}, domain.NewConfigError(domain.KindMissingField, connstr.AccountKeyKey, "account key is required")
	}
	return creds, nil
}

// builtinHandlers returns the handlers that follow the custom chain, outermost first.
func builtinHandlers(policy domain.ConnectionPolicy, o *options) []handlers.RequestHandler {
	hs := []handlers.RequestHandler{
		handlers.NewTracingHandler(o.tracer),
		handlers.NewUserAgentHandler(policy.UserAgentSuffix()),
		telemetry.NewMetricsHandler(),
	}
	if o.breaker != nil {
		hs = append(hs, handlers.NewCircuitBreakerHandler(*o.breaker, o.logger))
	}
	return append(hs,
		handlers.NewThrottleRetryHandler(policy.RetryOptions(), o.logger),
		handlers.NewTimeoutHandler(policy.RequestTimeout()),
	)
}
