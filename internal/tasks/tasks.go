// Package tasks holds the named units of work a worker can run. Each task
// takes one string argument (a page URL or a store key) and everything else
// from the Env it is handed.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"wiki_harvester/internal/archive"
	"wiki_harvester/internal/config"
	"wiki_harvester/internal/db"
	"wiki_harvester/internal/models"
	"wiki_harvester/internal/page"
)

const (
	StoreRevisions     = "store_revisions"
	StoreLastRevisions = "store_last_revisions"
	DatasetTimeline    = "dataset_timeline"
	DatasetBlocks      = "dataset_blocks"
	DatasetDiffs       = "dataset_diffs"
	ExportArchive      = "export_archive"
	StorePage          = "store_page"
)

var ErrUnknownTask = errors.New("unknown task")

// Progress reports how far a task got. It is called after each unit of
// work is persisted.
type Progress func(current, total int) error

type Func func(ctx context.Context, env *Env, arg string, progress Progress) (interface{}, error)

// Env is built once per worker and shared by every task it runs.
type Env struct {
	Store    db.Store
	Client   page.APIClient
	Archiver archive.Archiver
	Export   config.ExportConfig
	Logger   *slog.Logger

	pageOpts []page.Option
	now      func() time.Time
}

func NewEnv(cfg *config.Config, store db.Store, client page.APIClient, archiver archive.Archiver, logger *slog.Logger) *Env {
	return &Env{
		Store:    store,
		Client:   client,
		Archiver: archiver,
		Export:   cfg.Export,
		Logger:   logger,
		pageOpts: []page.Option{
			page.WithPageViewsEndpoint(cfg.API.PageViewsEndpoint),
			page.WithLogger(logger),
		},
		now: time.Now,
	}
}

// Page returns a fresh accessor for id.
func (e *Env) Page(id models.PageIdentity) *page.Accessor {
	return page.New(e.Client, id, e.pageOpts...)
}

var registry = map[string]Func{
	StoreRevisions:     storeRevisions,
	StoreLastRevisions: storeLastRevisions,
	DatasetTimeline:    datasetTimeline,
	DatasetBlocks:      datasetBlocks,
	DatasetDiffs:       datasetDiffs,
	ExportArchive:      exportArchive,
	StorePage:          storePage,
}

func Lookup(name string) (Func, error) {
	fn, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTask, name)
	}
	return fn, nil
}

// Names lists the registered task names in order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NoProgress discards progress reports.
func NoProgress(int, int) error { return nil }

// Run executes the named task in the caller's goroutine.
func Run(ctx context.Context, env *Env, name, arg string, progress Progress) (interface{}, error) {
	fn, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	if progress == nil {
		progress = NoProgress
	}
	return fn(ctx, env, arg, progress)
}
