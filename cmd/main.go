package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var version = "0.1.0-dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	c := &cli{}

	rootCmd := &cobra.Command{
		Use:           "wiki_harvester",
		Short:         "Harvest Wikipedia pages and revision histories into MongoDB",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return c.teardown(cmd.Context())
		},
	}

	rootCmd.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "Path to YAML config file")
	rootCmd.PersistentFlags().BoolVar(&c.dryRun, "dry-run", false, "Use in-memory store and queue instead of MongoDB")
	rootCmd.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "Override log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		newRunCmd(c),
		newEnqueueCmd(c),
		newStatusCmd(c),
		newWorkerCmd(c),
		newPrefetchCmd(c),
		newResolveCmd(c),
		newLangLinksCmd(c),
		newPageViewsCmd(c),
	)

	return rootCmd.ExecuteContext(ctx)
}
