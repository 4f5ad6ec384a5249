// Package config provides the client configuration builder and the file and
// environment loading logic that feeds it.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/polisai/cosmosclient/pkg/domain"
	"github.com/polisai/cosmosclient/pkg/serialization"
)

// FileConfig is the on-disk form of a client configuration.
type FileConfig struct {
	Account     AccountConfig     `yaml:"account"`
	Connection  ConnectionConfig  `yaml:"connection"`
	Application ApplicationConfig `yaml:"application"`
	Retry       RetryConfig       `yaml:"retry"`
	Serializer  *SerializerConfig `yaml:"serializer,omitempty"`
	Logging     LoggingConfig     `yaml:"logging"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
}

// AccountConfig identifies the account, either by endpoint and key or by connection string.
type AccountConfig struct {
	Endpoint         string `yaml:"endpoint" validate:"required_without=ConnectionString,excluded_with=ConnectionString"`
	Key              string `yaml:"key" validate:"required_with=Endpoint"`
	ConnectionString string `yaml:"connection_string"`
}

// ConnectionConfig holds transport settings.
type ConnectionConfig struct {
	Mode                      string        `yaml:"mode" validate:"omitempty,oneof=direct gateway"`
	RequestTimeout            time.Duration `yaml:"request_timeout" validate:"gte=0"`
	GatewayMaxConnectionLimit int           `yaml:"gateway_max_connection_limit" validate:"gte=0"`
}

// ApplicationConfig holds application identity settings.
type ApplicationConfig struct {
	Region  string `yaml:"region"`
	Name    string `yaml:"name"`
	APIType string `yaml:"api_type" validate:"omitempty,oneof=none sql mongodb gremlin cassandra table"`
}

// RetryConfig holds the throttling retry budget. Unset values keep the defaults.
type RetryConfig struct {
	MaxAttempts *int          `yaml:"max_attempts" validate:"omitempty,gte=0"`
	MaxWait     time.Duration `yaml:"max_wait" validate:"gte=0"`
}

// SerializerConfig selects built-in serializer options.
type SerializerConfig struct {
	IgnoreNullValues bool   `yaml:"ignore_null_values"`
	Indented         bool   `yaml:"indented"`
	NamingPolicy     string `yaml:"naming_policy" validate:"omitempty,oneof=default camelcase"`
}

// LoggingConfig holds configuration for logging.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Pretty bool   `yaml:"pretty"`
}

// TelemetryConfig holds configuration for OpenTelemetry export.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Insecure     bool   `yaml:"insecure"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads configuration from a YAML file and applies COSMOS_* environment
// overrides. An empty path loads from the environment alone.
func Load(path string) (*FileConfig, error) {
	cfg := &FileConfig{
		Logging: LoggingConfig{Level: "info"},
	}

	if path != "" {
		//nolint:gosec // Config file path is supplied by the operator
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, domain.NewConfigError(domain.KindMalformedInput, path, "failed to parse config file: %v", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *FileConfig) error {
	if val := os.Getenv("COSMOS_ENDPOINT"); val != "" {
		cfg.Account.Endpoint = val
		cfg.Account.ConnectionString = ""
	}
	if val := os.Getenv("COSMOS_KEY"); val != "" {
		cfg.Account.Key = val
	}
	// A connection string replaces endpoint and key entirely.
	if val := os.Getenv("COSMOS_CONNECTION_STRING"); val != "" {
		cfg.Account.ConnectionString = val
		cfg.Account.Endpoint = ""
		cfg.Account.Key = ""
	}

	if val := os.Getenv("COSMOS_CONNECTION_MODE"); val != "" {
		cfg.Connection.Mode = val
	}
	if val := os.Getenv("COSMOS_REQUEST_TIMEOUT"); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return envError("COSMOS_REQUEST_TIMEOUT", err)
		}
		cfg.Connection.RequestTimeout = d
	}
	if val := os.Getenv("COSMOS_GATEWAY_MAX_CONNECTIONS"); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return envError("COSMOS_GATEWAY_MAX_CONNECTIONS", err)
		}
		cfg.Connection.GatewayMaxConnectionLimit = n
	}

	if val := os.Getenv("COSMOS_APPLICATION_REGION"); val != "" {
		cfg.Application.Region = val
	}
	if val := os.Getenv("COSMOS_APPLICATION_NAME"); val != "" {
		cfg.Application.Name = val
	}
	if val := os.Getenv("COSMOS_API_TYPE"); val != "" {
		cfg.Application.APIType = val
	}

	if val := os.Getenv("COSMOS_MAX_RETRY_ATTEMPTS"); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return envError("COSMOS_MAX_RETRY_ATTEMPTS", err)
		}
		cfg.Retry.MaxAttempts = &n
	}
	if val := os.Getenv("COSMOS_MAX_RETRY_WAIT"); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return envError("COSMOS_MAX_RETRY_WAIT", err)
		}
		cfg.Retry.MaxWait = d
	}

	if val := os.Getenv("COSMOS_LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv("COSMOS_OTLP_ENDPOINT"); val != "" {
		cfg.Telemetry.OTLPEndpoint = val
	}
	if val := os.Getenv("COSMOS_OTLP_INSECURE"); val == "true" {
		cfg.Telemetry.Insecure = true
	}

	return nil
}

func envError(name string, err error) error {
	return &domain.ConfigError{Kind: domain.KindMalformedInput, Field: name, Message: "invalid environment value", Err: err}
}

// Validate normalizes enumerations and checks the configuration's structure.
func (c *FileConfig) Validate() error {
	c.Connection.Mode = strings.ToLower(strings.TrimSpace(c.Connection.Mode))
	c.Application.APIType = strings.ToLower(strings.TrimSpace(c.Application.APIType))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Serializer != nil {
		c.Serializer.NamingPolicy = strings.ToLower(strings.TrimSpace(c.Serializer.NamingPolicy))
	}

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &domain.ConfigError{
				Kind:    domain.KindInvalidArgument,
				Field:   fe.Namespace(),
				Message: fmt.Sprintf("failed %q validation", fe.Tag()),
				Err:     err,
			}
		}
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}

// ToClientConfiguration converts the file form into a builder, applying defaults for unset values.
func (c *FileConfig) ToClientConfiguration() (*ClientConfiguration, error) {
	var (
		cfg *ClientConfiguration
		err error
	)
	if c.Account.ConnectionString != "" {
		cfg, err = FromConnectionString(c.Account.ConnectionString)
	} else {
		cfg, err = New(c.Account.Endpoint, c.Account.Key)
	}
	if err != nil {
		return nil, err
	}

	mode, err := domain.ParseConnectionMode(c.Connection.Mode)
	if err != nil {
		return nil, err
	}
	if mode == domain.ConnectionModeGateway {
		limit := c.Connection.GatewayMaxConnectionLimit
		if limit == 0 {
			limit = DefaultGatewayModeMaxConnectionLimit
		}
		cfg.WithConnectionModeGateway(limit)
	}
	if c.Connection.RequestTimeout > 0 {
		cfg.WithRequestTimeout(c.Connection.RequestTimeout)
	}

	apiType, err := domain.ParseAPIType(c.Application.APIType)
	if err != nil {
		return nil, err
	}
	cfg.WithAPIType(apiType).
		WithApplicationRegion(c.Application.Region).
		WithApplicationName(c.Application.Name)

	maxAttempts := cfg.MaxRetryAttemptsOnThrottledRequests
	if c.Retry.MaxAttempts != nil {
		maxAttempts = *c.Retry.MaxAttempts
	}
	maxWait := cfg.MaxRetryWaitTimeOnThrottledRequests
	if c.Retry.MaxWait > 0 {
		maxWait = c.Retry.MaxWait
	}
	cfg.WithThrottlingRetryOptions(maxWait, maxAttempts)

	if c.Serializer != nil {
		opts := serialization.Options{
			IgnoreNullValues: c.Serializer.IgnoreNullValues,
			Indented:         c.Serializer.Indented,
		}
		if c.Serializer.NamingPolicy == "camelcase" {
			opts.PropertyNamingPolicy = serialization.NamingCamelCase
		}
		cfg.WithSerializerOptions(opts)
	}

	if err := cfg.Err(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadClientConfiguration loads a file and converts it in one step.
func LoadClientConfiguration(path string) (*ClientConfiguration, error) {
	fc, err := Load(path)
	if err != nil {
		return nil, err
	}
	return fc.ToClientConfiguration()
}
