package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/polisai/cosmosclient/pkg/connpolicy"
)

const gracefulShutdownTimeout = 5 * time.Second

func newWatchCmd(a *app) *cobra.Command {
	var (
		output      string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Resolve the config file and print the policy again whenever it changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.configPath == "" {
				return errors.New("watch requires --config")
			}

			registry := prometheus.NewRegistry()
			w, err := connpolicy.Watch(a.configPath,
				connpolicy.WithLogger(a.logger),
				connpolicy.WithMetrics(connpolicy.NewMetrics(registry)),
			)
			if err != nil {
				return err
			}
			defer w.Close()

			ctx, stop := notifyContext(cmd.Context())
			defer stop()

			if metricsAddr != "" {
				go func() {
					if err := serveMetrics(ctx, metricsAddr, registry, a.logger); err != nil {
						a.logger.Error("Metrics server failed", "error", err)
					}
				}()
			}

			updates := w.Subscribe()
			for {
				select {
				case <-ctx.Done():
					return nil
				case res, ok := <-updates:
					if !ok {
						return nil
					}
					if output == "yaml" {
						fmt.Fprintln(cmd.OutOrStdout(), "---")
					}
					if err := writeView(cmd.OutOrStdout(), output, newPolicyView(res)); err != nil {
						return err
					}
				}
			}
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "yaml", "Output format (yaml, json)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus build metrics on this address")

	return cmd
}

// notifyContext is cancelled on SIGINT or SIGTERM.
func notifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// serveMetrics exposes registry on addr under /metrics until ctx is done.
func serveMetrics(ctx context.Context, addr string, registry *prometheus.Registry, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Serving metrics", "addr", addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
