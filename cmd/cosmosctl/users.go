package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/polisai/cosmosclient/pkg/client"
	"github.com/polisai/cosmosclient/pkg/connpolicy"
	"github.com/polisai/cosmosclient/pkg/emulator"
)

func newUsersCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "User resource operations",
	}
	cmd.AddCommand(newUsersDemoCmd(a))
	return cmd
}

type demoOptions struct {
	database    string
	user        string
	renameTo    string
	throttle    int
	requestRate int
	metricsAddr string
}

func newUsersDemoCmd(a *app) *cobra.Command {
	var (
		f    connectionFlags
		opts demoOptions
	)

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Create, replace, read and delete a user against the in-memory emulator",
		Long: `Runs the user lifecycle through the full request pipeline against an
in-memory emulator and prints each status code. Without account settings the
emulator's well-known endpoint and key are used.

With --metrics-addr the Prometheus metrics stay available until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.configuration(cmd, &f, emulator.DefaultEndpoint, emulator.WellKnownKey)
			if err != nil {
				return err
			}

			registry := prometheus.NewRegistry()
			var emuOpts []emulator.Option
			if opts.requestRate > 0 {
				emuOpts = append(emuOpts, emulator.WithRateLimit(opts.requestRate, opts.requestRate))
			}
			emu := emulator.New(emuOpts...)
			if opts.throttle > 0 {
				emu.ThrottleNext(opts.throttle, 10*time.Millisecond)
			}

			c, err := client.New(cfg,
				client.WithTransport(emu),
				client.WithLogger(a.logger),
				client.WithMetrics(client.NewMetrics(registry)),
				client.WithBuildOptions(connpolicy.WithMetrics(connpolicy.NewMetrics(registry))),
			)
			if err != nil {
				return err
			}

			if err := runUserDemo(cmd.Context(), cmd.OutOrStdout(), c, opts); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "requests sent: %d\n", emu.Requests())

			if opts.metricsAddr == "" {
				return nil
			}
			ctx, stop := notifyContext(cmd.Context())
			defer stop()
			return serveMetrics(ctx, opts.metricsAddr, registry, a.logger)
		},
	}

	f.register(cmd)
	cmd.Flags().StringVar(&opts.database, "database", "demo", "Database id")
	cmd.Flags().StringVar(&opts.user, "user", "demo-user", "User id")
	cmd.Flags().StringVar(&opts.renameTo, "rename-to", "demo-user-renamed", "Id the user is replaced with")
	cmd.Flags().IntVar(&opts.throttle, "throttle", 0, "Number of initial requests the emulator throttles")
	cmd.Flags().IntVar(&opts.requestRate, "request-rate", 0, "Requests per second the emulator admits per database; 0 disables the limit")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address after the demo")

	return cmd
}

func runUserDemo(ctx context.Context, out io.Writer, c *client.Client, opts demoOptions) error {
	dbResp, err := c.CreateDatabaseIfNotExists(ctx, opts.database)
	if err != nil {
		return fmt.Errorf("create database: %w", err)
	}
	fmt.Fprintf(out, "create database %s: %d\n", opts.database, dbResp.StatusCode)

	created, err := dbResp.Database.CreateUser(ctx, opts.user)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	fmt.Fprintf(out, "create user %s: %d\n", opts.user, created.StatusCode)

	replaced, err := created.User.Replace(ctx, client.UserProperties{ID: opts.renameTo})
	if err != nil {
		return fmt.Errorf("replace user: %w", err)
	}
	fmt.Fprintf(out, "replace user %s -> %s: %d\n", opts.user, replaced.User.ID(), replaced.StatusCode)

	read, err := replaced.User.Read(ctx)
	if err != nil {
		return fmt.Errorf("read user: %w", err)
	}
	fmt.Fprintf(out, "read user %s: %d\n", read.User.ID(), read.StatusCode)

	deleted, err := read.User.Delete(ctx)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	fmt.Fprintf(out, "delete user %s: %d\n", read.User.ID(), deleted.StatusCode)

	return nil
}
