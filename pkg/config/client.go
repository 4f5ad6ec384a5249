package config

import (
	"slices"
	"strings"
	"time"

	"github.com/polisai/cosmosclient/pkg/connstr"
	"github.com/polisai/cosmosclient/pkg/domain"
	"github.com/polisai/cosmosclient/pkg/handlers"
	"github.com/polisai/cosmosclient/pkg/serialization"
)

// Client configuration defaults.
const (
	DefaultRequestTimeout                      = 60 * time.Second
	DefaultGatewayModeMaxConnectionLimit       = 50
	DefaultMaxRetryAttemptsOnThrottledRequests = 9
	DefaultMaxRetryWaitTimeOnThrottledRequests = 30 * time.Second
)

// ClientConfiguration accumulates the options a client is built from. It is
// owned by a single goroutine during setup and consumed by connpolicy.Build,
// which snapshots it; later changes never affect a built policy.
//
// The With* methods chain and record the first failure, which Err reports and
// Build refuses. The Set*/Add* methods return failures directly.
type ClientConfiguration struct {
	Endpoint   string
	AccountKey string
	// ConnectionString is set on the connection-string path and takes
	// precedence over Endpoint and AccountKey at build time.
	ConnectionString string

	ConnectionMode                domain.ConnectionMode
	RequestTimeout                time.Duration
	GatewayModeMaxConnectionLimit int
	ApplicationRegion             string
	ApplicationName               string
	CustomHandlers                []handlers.RequestHandler
	APIType                       domain.APIType

	MaxRetryAttemptsOnThrottledRequests int
	MaxRetryWaitTimeOnThrottledRequests time.Duration

	serializer serialization.Choice
	err        error
}

// NewClientConfiguration returns a configuration holding only defaults.
func NewClientConfiguration() *ClientConfiguration {
	return &ClientConfiguration{
		ConnectionMode:                      domain.ConnectionModeDirect,
		RequestTimeout:                      DefaultRequestTimeout,
		GatewayModeMaxConnectionLimit:       DefaultGatewayModeMaxConnectionLimit,
		MaxRetryAttemptsOnThrottledRequests: DefaultMaxRetryAttemptsOnThrottledRequests,
		MaxRetryWaitTimeOnThrottledRequests: DefaultMaxRetryWaitTimeOnThrottledRequests,
	}
}

// New creates a configuration for an account endpoint and key.
func New(endpoint, accountKey string) (*ClientConfiguration, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, domain.NewConfigError(domain.KindInvalidArgument, "Endpoint", "endpoint must not be empty")
	}
	if strings.TrimSpace(accountKey) == "" {
		return nil, domain.NewConfigError(domain.KindInvalidArgument, "AccountKey", "account key must not be empty")
	}

	cfg := NewClientConfiguration()
	cfg.Endpoint = endpoint
	cfg.AccountKey = accountKey
	return cfg, nil
}

// FromConnectionString creates a configuration from a connection string of the
// form "AccountEndpoint=...;AccountKey=...;". The string is parsed eagerly so
// malformed input fails here; Build parses it again and fails the same way.
func FromConnectionString(s string) (*ClientConfiguration, error) {
	if s == "" {
		return nil, domain.NewConfigError(domain.KindInvalidArgument, "ConnectionString", "connection string must not be empty")
	}
	if _, err := connstr.Parse(s); err != nil {
		return nil, err
	}

	cfg := NewClientConfiguration()
	cfg.ConnectionString = s
	return cfg, nil
}

// Err returns the first error recorded by a With* method.
func (c *ClientConfiguration) Err() error {
	return c.err
}

func (c *ClientConfiguration) record(err error) *ClientConfiguration {
	if c.err == nil {
		c.err = err
	}
	return c
}

// WithConnectionModeDirect selects direct (TCP) connectivity.
func (c *ClientConfiguration) WithConnectionModeDirect() *ClientConfiguration {
	c.ConnectionMode = domain.ConnectionModeDirect
	return c
}

// WithConnectionModeGateway selects gateway (HTTPS) connectivity with the given connection limit.
func (c *ClientConfiguration) WithConnectionModeGateway(maxConnectionLimit int) *ClientConfiguration {
	if maxConnectionLimit <= 0 {
		return c.record(domain.NewConfigError(domain.KindInvalidArgument, "GatewayModeMaxConnectionLimit",
			"must be positive, got %d", maxConnectionLimit))
	}
	c.ConnectionMode = domain.ConnectionModeGateway
	c.GatewayModeMaxConnectionLimit = maxConnectionLimit
	return c
}

// WithRequestTimeout sets the per-request timeout.
func (c *ClientConfiguration) WithRequestTimeout(d time.Duration) *ClientConfiguration {
	if d < 0 {
		return c.record(domain.NewConfigError(domain.KindInvalidArgument, "RequestTimeout", "must not be negative, got %s", d))
	}
	c.RequestTimeout = d
	return c
}

// WithApplicationRegion sets the region the application runs in.
func (c *ClientConfiguration) WithApplicationRegion(region string) *ClientConfiguration {
	c.ApplicationRegion = region
	return c
}

// WithApplicationName sets the suffix appended to the user agent.
func (c *ClientConfiguration) WithApplicationName(name string) *ClientConfiguration {
	c.ApplicationName = name
	return c
}

// WithAPIType tags the account API the client targets.
func (c *ClientConfiguration) WithAPIType(t domain.APIType) *ClientConfiguration {
	c.APIType = t
	return c
}

// WithThrottlingRetryOptions sets the wait and attempt budget for throttled requests.
func (c *ClientConfiguration) WithThrottlingRetryOptions(maxWait time.Duration, maxAttempts int) *ClientConfiguration {
	if maxWait < 0 {
		return c.record(domain.NewConfigError(domain.KindInvalidArgument, "MaxRetryWaitTimeOnThrottledRequests",
			"must not be negative, got %s", maxWait))
	}
	if maxAttempts < 0 {
		return c.record(domain.NewConfigError(domain.KindInvalidArgument, "MaxRetryAttemptsOnThrottledRequests",
			"must not be negative, got %d", maxAttempts))
	}
	c.MaxRetryWaitTimeOnThrottledRequests = maxWait
	c.MaxRetryAttemptsOnThrottledRequests = maxAttempts
	return c
}

// WithCustomHandlers appends handlers to the custom chain, recording a failure if any is invalid.
func (c *ClientConfiguration) WithCustomHandlers(hs ...handlers.RequestHandler) *ClientConfiguration {
	if err := c.AddCustomHandlers(hs...); err != nil {
		return c.record(err)
	}
	return c
}

// AddCustomHandlers appends handlers to the custom chain. Nothing is appended when any handler is invalid.
func (c *ClientConfiguration) AddCustomHandlers(hs ...handlers.RequestHandler) error {
	if _, err := handlers.ValidateChain(hs); err != nil {
		return err
	}
	c.CustomHandlers = append(c.CustomHandlers, hs...)
	return nil
}

// WithSerializer selects a custom serializer, recording a failure on conflict.
func (c *ClientConfiguration) WithSerializer(s serialization.RawSerializer) *ClientConfiguration {
	if err := c.SetSerializer(s); err != nil {
		return c.record(err)
	}
	return c
}

// SetSerializer selects a custom serializer. It fails when serializer options are already set.
func (c *ClientConfiguration) SetSerializer(s serialization.RawSerializer) error {
	if s == nil {
		return domain.NewConfigError(domain.KindInvalidArgument, "Serializer", "serializer must not be nil")
	}
	if _, ok := c.serializer.Options(); ok {
		return domain.NewConfigError(domain.KindConflictingSerializer, "Serializer",
			"serializer options are already set; a custom serializer cannot also be used")
	}
	c.serializer = serialization.Custom(s)
	return nil
}

// WithSerializerOptions configures the built-in serializer, recording a failure on conflict.
func (c *ClientConfiguration) WithSerializerOptions(opts serialization.Options) *ClientConfiguration {
	if err := c.SetSerializerOptions(opts); err != nil {
		return c.record(err)
	}
	return c
}

// SetSerializerOptions configures the built-in serializer. It fails when a custom serializer is already set.
func (c *ClientConfiguration) SetSerializerOptions(opts serialization.Options) error {
	if _, ok := c.serializer.Custom(); ok {
		return domain.NewConfigError(domain.KindConflictingSerializer, "SerializerOptions",
			"a custom serializer is already set; serializer options cannot also be used")
	}
	c.serializer = serialization.WithOptions(opts)
	return nil
}

// SerializerChoice returns the current serializer selection.
func (c *ClientConfiguration) SerializerChoice() serialization.Choice {
	return c.serializer
}

// Clone returns an independent copy, including the handler slice.
func (c *ClientConfiguration) Clone() *ClientConfiguration {
	out := *c
	out.CustomHandlers = slices.Clone(c.CustomHandlers)
	return &out
}
