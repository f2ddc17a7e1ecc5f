package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"wiki_harvester/internal/app"
	"wiki_harvester/internal/db"
	"wiki_harvester/internal/queue"
)

func newWorkerCmd(c *cli) *cobra.Command {
	var (
		concurrency int
		name        string
	)

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Claim and run queued tasks until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if concurrency > 0 {
				c.cfg.Worker.Concurrency = concurrency
			}
			if name != "" {
				c.cfg.Worker.Name = name
			}

			ctx := cmd.Context()
			stopMetrics := c.serveMetrics()
			defer stopMetrics()

			return c.withBackend(ctx, func(store db.Store, q queue.Queue) error {
				return app.NewWorkerApp(c.cfg, q, c.env(store), c.logger).Run(ctx)
			})
		},
	}

	cmd.Flags().IntVarP(&concurrency, "concurrency", "n", 0, "Number of parallel tasks (default from config)")
	cmd.Flags().StringVar(&name, "name", "", "Worker name recorded on claimed tasks")
	return cmd
}

// serveMetrics exposes /metrics on the configured address and returns a
// function that stops the server.
func (c *cli) serveMetrics() func() {
	addr := c.cfg.Metrics.Listen
	if addr == "" {
		return func() {}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		c.logger.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.logger.Error("metrics server", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
