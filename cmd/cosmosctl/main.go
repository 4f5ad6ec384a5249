// Package main is the entry point for the cosmosctl binary.
// It resolves client configurations and exercises them against the in-memory emulator.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/polisai/cosmosclient/pkg/logging"
	"github.com/polisai/cosmosclient/pkg/telemetry"
	"github.com/polisai/cosmosclient/pkg/useragent"
)

const (
	defaultEnvFile           = ".env"
	defaultServiceName       = "cosmosctl"
	telemetryShutdownTimeout = 5 * time.Second
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app carries state shared by every subcommand.
type app struct {
	envFile      string
	configPath   string
	logLevel     string
	otlpEndpoint string
	otlpInsecure bool

	logger   *slog.Logger
	shutdown func(context.Context) error
}

// newRootCmd creates the root command for cosmosctl
func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "cosmosctl",
		Short: "Resolve and exercise document database client configurations",
		Long: `cosmosctl turns client settings into the connection policy a client runs with.

Settings come from a YAML file (--config), a connection string, or individual
flags, with COSMOS_* environment variables applied on top. A .env file in the
working directory is loaded first when present.

Example:
  cosmosctl resolve --connection-string "AccountEndpoint=https://localhost:8081/;AccountKey=..." --mode gateway -o json`,
		SilenceUsage:       true,
		PersistentPreRunE:  a.setup,
		PersistentPostRunE: a.teardown,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.envFile, "env-file", defaultEnvFile, "Path to a .env file loaded before anything else")
	flags.StringVarP(&a.configPath, "config", "c", "", "Path to configuration file (YAML)")
	flags.StringVarP(&a.logLevel, "log-level", "l", "", "Log level (debug, info, warn, error); defaults to COSMOS_LOG_LEVEL or info")
	flags.StringVar(&a.otlpEndpoint, "otlp-endpoint", "", "OTLP gRPC endpoint for traces; defaults to COSMOS_OTLP_ENDPOINT")
	flags.BoolVar(&a.otlpInsecure, "otlp-insecure", false, "Disable TLS for the OTLP exporter")

	rootCmd.AddCommand(
		newResolveCmd(a),
		newUsersCmd(a),
		newWatchCmd(a),
		newVersionCmd(),
	)

	return rootCmd
}

// setup loads the .env file, then configures logging and tracing.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if a.envFile != "" {
		if err := godotenv.Load(a.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load env file %s: %w", a.envFile, err)
		}
	}

	level := a.logLevel
	if level == "" {
		level = os.Getenv("COSMOS_LOG_LEVEL")
	}
	a.logger = logging.NewLogger(logging.Config{
		Level:  level,
		Pretty: true,
		Output: cmd.ErrOrStderr(),
	})
	slog.SetDefault(a.logger)

	endpoint := a.otlpEndpoint
	if endpoint == "" {
		endpoint = os.Getenv("COSMOS_OTLP_ENDPOINT")
	}
	shutdown, err := telemetry.SetupProvider(cmd.Context(), telemetry.Config{
		ServiceName:    defaultServiceName,
		ServiceVersion: useragent.SDKVersion,
		Endpoint:       endpoint,
		Insecure:       a.otlpInsecure,
	})
	if err != nil {
		return fmt.Errorf("telemetry initialization failed: %w", err)
	}
	a.shutdown = shutdown
	return nil
}

func (a *app) teardown(_ *cobra.Command, _ []string) error {
	if a.shutdown == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
	defer cancel()
	if err := a.shutdown(ctx); err != nil {
		a.logger.Warn("Telemetry shutdown failed", "error", err)
	}
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the client version and runtime descriptor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), useragent.DetectEnvironment().String())
			return err
		},
	}
}
