// Package cmd defines the CLI commands for the recipecrawl executable.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/probekit/recipecrawl/internal/app"
	"github.com/probekit/recipecrawl/internal/config"
	"github.com/probekit/recipecrawl/internal/dispatcher"
	"github.com/probekit/recipecrawl/internal/runs"
)

var cfgFile string

// appServices is the slice of app.App the commands rely on, split out so
// tests can substitute a lighter implementation.
type appServices interface {
	Runs() *runs.Registry
	Dispatcher() *dispatcher.Dispatcher
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recipecrawl",
		Short: "Sparse-ID permalink discovery for recipe sites",
		Long: `recipecrawl walks a site's numeric ID space with concurrent HEAD
probes, collecting the permalinks that exist and stopping once a
configurable streak of consecutive misses says the range is exhausted.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")

	cmd.AddCommand(newDiscoverCmd())
	cmd.AddCommand(newServeCmd())
	return cmd
}

// Execute runs the CLI, canceling work on SIGINT/SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func buildApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	a, err := app.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init services: %w", err)
	}
	return a, nil
}
