package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/polisai/cosmosclient/pkg/config"
	"github.com/polisai/cosmosclient/pkg/connpolicy"
	"github.com/polisai/cosmosclient/pkg/domain"
)

// connectionFlags are the client settings accepted on the command line.
// Flags that were set override values from the file or environment.
type connectionFlags struct {
	endpoint         string
	key              string
	connectionString string
	mode             string
	maxConnections   int
	requestTimeout   time.Duration
	region           string
	appName          string
	maxRetryAttempts int
	maxRetryWait     time.Duration
}

func (f *connectionFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.endpoint, "endpoint", "", "Account endpoint; defaults to COSMOS_ENDPOINT")
	flags.StringVar(&f.key, "key", "", "Account key; defaults to COSMOS_KEY")
	flags.StringVar(&f.connectionString, "connection-string", "", "Connection string; defaults to COSMOS_CONNECTION_STRING")
	flags.StringVar(&f.mode, "mode", "direct", "Connection mode (direct, gateway)")
	flags.IntVar(&f.maxConnections, "max-connections", config.DefaultGatewayModeMaxConnectionLimit, "Gateway mode connection limit")
	flags.DurationVar(&f.requestTimeout, "request-timeout", config.DefaultRequestTimeout, "Per-request timeout")
	flags.StringVar(&f.region, "region", "", "Region the application runs in")
	flags.StringVar(&f.appName, "app-name", "", "Application name appended to the user agent")
	flags.IntVar(&f.maxRetryAttempts, "max-retry-attempts", config.DefaultMaxRetryAttemptsOnThrottledRequests, "Retries on throttled requests")
	flags.DurationVar(&f.maxRetryWait, "max-retry-wait", config.DefaultMaxRetryWaitTimeOnThrottledRequests, "Cumulative wait budget for throttled requests")
}

// configuration assembles a ClientConfiguration from the config file, the
// connection string, or the endpoint and key, in that order of preference.
// fallbackEndpoint and fallbackKey apply when nothing else names an account.
// Only flags set on the command line override loaded values.
func (a *app) configuration(cmd *cobra.Command, f *connectionFlags, fallbackEndpoint, fallbackKey string) (*config.ClientConfiguration, error) {
	var (
		cfg *config.ClientConfiguration
		err error
	)

	connectionString := firstNonEmpty(f.connectionString, os.Getenv("COSMOS_CONNECTION_STRING"))
	switch {
	case a.configPath != "":
		cfg, err = config.LoadClientConfiguration(a.configPath)
	case connectionString != "":
		cfg, err = config.FromConnectionString(connectionString)
	default:
		cfg, err = config.New(
			firstNonEmpty(f.endpoint, os.Getenv("COSMOS_ENDPOINT"), fallbackEndpoint),
			firstNonEmpty(f.key, os.Getenv("COSMOS_KEY"), fallbackKey),
		)
	}
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if a.configPath != "" && flags.Changed("endpoint") {
		cfg.Endpoint, cfg.ConnectionString = f.endpoint, ""
	}
	if a.configPath != "" && flags.Changed("key") {
		cfg.AccountKey = f.key
	}
	if flags.Changed("mode") || flags.Changed("max-connections") {
		mode, limit := cfg.ConnectionMode, cfg.GatewayModeMaxConnectionLimit
		if flags.Changed("mode") {
			if mode, err = domain.ParseConnectionMode(f.mode); err != nil {
				return nil, err
			}
		}
		if flags.Changed("max-connections") {
			if f.maxConnections <= 0 {
				return nil, domain.NewConfigError(domain.KindInvalidArgument, "GatewayModeMaxConnectionLimit",
					"must be positive, got %d", f.maxConnections)
			}
			limit = f.maxConnections
		}
		if mode == domain.ConnectionModeGateway {
			cfg.WithConnectionModeGateway(limit)
		} else {
			cfg.WithConnectionModeDirect()
			cfg.GatewayModeMaxConnectionLimit = limit
		}
	}
	if flags.Changed("request-timeout") {
		cfg.WithRequestTimeout(f.requestTimeout)
	}
	if flags.Changed("region") {
		cfg.WithApplicationRegion(f.region)
	}
	if flags.Changed("app-name") {
		cfg.WithApplicationName(f.appName)
	}
	if flags.Changed("max-retry-attempts") || flags.Changed("max-retry-wait") {
		wait, attempts := cfg.MaxRetryWaitTimeOnThrottledRequests, cfg.MaxRetryAttemptsOnThrottledRequests
		if flags.Changed("max-retry-wait") {
			wait = f.maxRetryWait
		}
		if flags.Changed("max-retry-attempts") {
			attempts = f.maxRetryAttempts
		}
		cfg.WithThrottlingRetryOptions(wait, attempts)
	}

	if err := cfg.Err(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// policyView is the printable form of a resolution. It never carries the account key.
type policyView struct {
	Endpoint                            string   `json:"endpoint" yaml:"endpoint"`
	ConnectionMode                      string   `json:"connectionMode" yaml:"connection_mode"`
	Protocol                            string   `json:"protocol" yaml:"protocol"`
	MaxConnectionLimit                  int      `json:"maxConnectionLimit" yaml:"max_connection_limit"`
	RequestTimeout                      string   `json:"requestTimeout" yaml:"request_timeout"`
	PreferredLocations                  []string `json:"preferredLocations" yaml:"preferred_locations"`
	UseMultipleWriteLocations           bool     `json:"useMultipleWriteLocations" yaml:"use_multiple_write_locations"`
	UserAgentSuffix                     string   `json:"userAgentSuffix" yaml:"user_agent_suffix"`
	MaxRetryAttemptsOnThrottledRequests int      `json:"maxRetryAttemptsOnThrottledRequests" yaml:"max_retry_attempts_on_throttled_requests"`
	MaxRetryWaitTimeInSeconds           int      `json:"maxRetryWaitTimeInSeconds" yaml:"max_retry_wait_time_in_seconds"`
	Serializer                          string   `json:"serializer" yaml:"serializer"`
	CustomHandlers                      int      `json:"customHandlers" yaml:"custom_handlers"`
}

func newPolicyView(res *connpolicy.Resolution) policyView {
	p := res.Policy
	locations := p.PreferredLocations()
	if locations == nil {
		locations = []string{}
	}
	return policyView{
		Endpoint:                            res.Credentials.Endpoint,
		ConnectionMode:                      p.ConnectionMode().String(),
		Protocol:                            p.Protocol().String(),
		MaxConnectionLimit:                  p.MaxConnectionLimit(),
		RequestTimeout:                      p.RequestTimeout().String(),
		PreferredLocations:                  locations,
		UseMultipleWriteLocations:           p.UseMultipleWriteLocations(),
		UserAgentSuffix:                     p.UserAgentSuffix(),
		MaxRetryAttemptsOnThrottledRequests: p.RetryOptions().MaxRetryAttemptsOnThrottledRequests,
		MaxRetryWaitTimeInSeconds:           p.RetryOptions().MaxRetryWaitTimeInSeconds,
		Serializer:                          res.Configuration.SerializerChoice().String(),
		CustomHandlers:                      len(res.Pipeline.Custom()),
	}
}

func writeView(w io.Writer, format string, view policyView) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	case "yaml", "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(view); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported output format %q (use yaml or json)", format)
	}
}

func newResolveCmd(a *app) *cobra.Command {
	var (
		f      connectionFlags
		output string
	)

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve settings into a connection policy and print it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if output != "yaml" && output != "json" {
				return fmt.Errorf("unsupported output format %q (use yaml or json)", output)
			}

			cfg, err := a.configuration(cmd, &f, "", "")
			if err != nil {
				return err
			}

			res, err := connpolicy.BuildContext(cmd.Context(), cfg, connpolicy.WithLogger(a.logger))
			if err != nil {
				return err
			}

			return writeView(cmd.OutOrStdout(), output, newPolicyView(res))
		},
	}

	f.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "yaml", "Output format (yaml, json)")

	return cmd
}
