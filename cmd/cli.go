package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"wiki_harvester/internal/archive"
	"wiki_harvester/internal/config"
	"wiki_harvester/internal/db"
	"wiki_harvester/internal/mediawiki"
	"wiki_harvester/internal/queue"
	"wiki_harvester/internal/tasks"
	"wiki_harvester/internal/tracing"
)

type cli struct {
	configPath string
	dryRun     bool
	logLevel   string

	cfg      *config.Config
	logger   *slog.Logger
	shutdown func(context.Context) error
}

func (c *cli) setup(ctx context.Context) error {
	cfg, err := config.LoadConfig(c.configPath)
	if err != nil {
		return err
	}
	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
	}
	c.cfg = cfg
	c.logger = newLogger(os.Stderr, cfg.Log)
	slog.SetDefault(c.logger)

	shutdown, err := tracing.Setup(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	c.shutdown = shutdown
	return nil
}

func (c *cli) teardown(ctx context.Context) error {
	if c.shutdown == nil {
		return nil
	}
	return c.shutdown(context.WithoutCancel(ctx))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func (c *cli) client() *mediawiki.Client {
	return mediawiki.NewClient(c.cfg.API.Endpoint, c.cfg.API.UserAgent, c.cfg.Timeout(), c.logger)
}

// withBackend opens the store and task queue for the duration of fn.
func (c *cli) withBackend(ctx context.Context, fn func(db.Store, queue.Queue) error) error {
	if c.dryRun {
		return fn(db.NewMemoryStore(), queue.NewMemoryQueue())
	}

	mongoDB, err := db.NewMongoDB(ctx, c.cfg.DB, c.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := mongoDB.Close(); err != nil {
			c.logger.Warn("closing MongoDB", "error", err)
		}
	}()
	return fn(mongoDB, mongoDB)
}

func (c *cli) env(store db.Store) *tasks.Env {
	return tasks.NewEnv(c.cfg, store, c.client(), archive.DirArchiver{Dir: c.cfg.Export.ArchiveDir}, c.logger)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
