package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"wiki_harvester/internal/config"
	"wiki_harvester/internal/metrics"
	"wiki_harvester/internal/models"
	"wiki_harvester/internal/queue"
	"wiki_harvester/internal/tasks"
	"wiki_harvester/internal/tracing"
)

// WorkerApp claims tasks from the queue and runs them on a fixed number of
// goroutines. Tasks never share state; each one reads its inputs from the
// Env and writes its outcome back to its queue record.
type WorkerApp struct {
	queue        queue.Queue
	env          *tasks.Env
	name         string
	concurrency  int
	pollInterval time.Duration
	logger       *slog.Logger

	lookup func(string) (tasks.Func, error)
}

func NewWorkerApp(cfg *config.Config, q queue.Queue, env *tasks.Env, logger *slog.Logger) *WorkerApp {
	name := cfg.Worker.Name
	if name == "" {
		host, _ := os.Hostname()
		name = fmt.Sprintf("%s-%d", host, os.Getpid())
	}
	return &WorkerApp{
		queue:        q,
		env:          env,
		name:         name,
		concurrency:  cfg.Worker.Concurrency,
		pollInterval: cfg.PollInterval(),
		logger:       logger,
		lookup:       tasks.Lookup,
	}
}

// Run blocks until ctx is cancelled.
func (a *WorkerApp) Run(ctx context.Context) error {
	a.logger.Info("starting workers", "name", a.name, "concurrency", a.concurrency)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < a.concurrency; i++ {
		workerID := fmt.Sprintf("%s/%d", a.name, i)
		g.Go(func() error {
			a.worker(gctx, workerID)
			return nil
		})
	}

	err := g.Wait()
	a.logger.Info("workers stopped", "name", a.name)
	return err
}

func (a *WorkerApp) worker(ctx context.Context, workerID string) {
	for {
		if ctx.Err() != nil {
			return
		}

		ran, err := a.RunOnce(ctx, workerID)
		if err != nil {
			a.logger.Error("claiming task", "worker", workerID, "error", err)
		}
		if ran {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(a.pollInterval):
		}
	}
}

// RunOnce claims and runs at most one task. It reports false when the
// queue was empty. Task failures are recorded on the task, not returned.
func (a *WorkerApp) RunOnce(ctx context.Context, workerID string) (bool, error) {
	task, err := a.queue.Claim(ctx, workerID)
	if errors.Is(err, queue.ErrEmpty) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	a.execute(ctx, task)
	return true, nil
}

// Drain runs pending tasks one after another until the queue is empty.
func (a *WorkerApp) Drain(ctx context.Context) (int, error) {
	n := 0
	for {
		ran, err := a.RunOnce(ctx, a.name)
		if err != nil || !ran {
			return n, err
		}
		n++
	}
}

func (a *WorkerApp) execute(ctx context.Context, task *models.Task) {
	log := a.logger.With("task", task.Name, "id", task.ID, "arg", task.Arg)
	log.Info("task started")

	ctx, span := tracing.StartSpan(ctx, "task."+task.Name,
		attribute.String("task.id", task.ID),
		attribute.String("task.arg", task.Arg))

	metrics.TasksInFlight.WithLabelValues(task.Name).Inc()
	start := time.Now()

	result, err := a.run(ctx, task)

	metrics.TasksInFlight.WithLabelValues(task.Name).Dec()
	metrics.RecordTask(task.Name, time.Since(start).Seconds(), err == nil)
	tracing.End(span, err)

	// the record must be written even if the worker is shutting down
	recordCtx := context.WithoutCancel(ctx)
	if err != nil {
		log.Error("task failed", "error", err, "duration", time.Since(start))
		if ferr := a.queue.Fail(recordCtx, task.ID, err); ferr != nil {
			log.Error("recording failure", "error", ferr)
		}
		return
	}

	log.Info("task succeeded", "duration", time.Since(start))
	if cerr := a.queue.Complete(recordCtx, task.ID, result); cerr != nil {
		log.Error("recording result", "error", cerr)
	}
}

func (a *WorkerApp) run(ctx context.Context, task *models.Task) (result interface{}, err error) {
	fn, err := a.lookup(task.Name)
	if err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", task.Name, r)
		}
	}()

	progress := func(current, total int) error {
		return a.queue.Progress(ctx, task.ID, current, total)
	}
	return fn(ctx, a.env, task.Arg, progress)
}
