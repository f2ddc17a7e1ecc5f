package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"wiki_harvester/internal/app"
	"wiki_harvester/internal/db"
	"wiki_harvester/internal/models"
	"wiki_harvester/internal/queue"
	"wiki_harvester/internal/tasks"
)

func taskList() string {
	return strings.Join(tasks.Names(), ", ")
}

func newRunCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "run <task> <arg>",
		Short: "Run one task in the foreground",
		Long:  "Runs a task immediately without going through the queue. Tasks: " + taskList(),
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return c.withBackend(ctx, func(store db.Store, _ queue.Queue) error {
				progress := func(current, total int) error {
					c.logger.Info("progress", "task", args[0], "current", current, "total", total)
					return nil
				}
				result, err := tasks.Run(ctx, c.env(store), args[0], args[1], progress)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}
}

func newEnqueueCmd(c *cli) *cobra.Command {
	var drain bool

	cmd := &cobra.Command{
		Use:   "enqueue <task> <arg>...",
		Short: "Queue a task once per argument",
		Long:  "Queues tasks for workers to pick up. Tasks: " + taskList(),
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if _, err := tasks.Lookup(name); err != nil {
				return err
			}

			ctx := cmd.Context()
			return c.withBackend(ctx, func(store db.Store, q queue.Queue) error {
				for _, arg := range args[1:] {
					task, err := q.Enqueue(ctx, name, arg)
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), task.ID)
				}

				if !drain {
					return nil
				}
				n, err := app.NewWorkerApp(c.cfg, q, c.env(store), c.logger).Drain(ctx)
				c.logger.Info("queue drained", "tasks", n)
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&drain, "drain", false, "Run the queued tasks in this process before exiting")
	return cmd
}

func newStatusCmd(c *cli) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "status [task-id]",
		Short: "Show a task record, or a summary of recent tasks",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return c.withBackend(ctx, func(_ db.Store, q queue.Queue) error {
				if len(args) == 1 {
					task, err := q.Get(ctx, args[0])
					if errors.Is(err, queue.ErrTaskNotFound) {
						return fmt.Errorf("no task with id %s", args[0])
					}
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), task)
				}

				counts, err := q.Counts(ctx)
				if err != nil {
					return err
				}
				recent, err := q.List(ctx, limit)
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintf(w, "PENDING\t%d\nRUNNING\t%d\nSUCCESS\t%d\nFAILURE\t%d\n\n",
					counts[models.TaskPending], counts[models.TaskStarted]+counts[models.TaskProgress],
					counts[models.TaskSuccess], counts[models.TaskFailure])
				fmt.Fprintln(w, "ID\tTASK\tSTATUS\tPROGRESS\tARG")
				for _, t := range recent {
					fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\n", t.ID, t.Name, t.Status, t.Current, t.Total, t.Arg)
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "Number of recent tasks to list")
	return cmd
}

func readLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "#") {
			lines = append(lines, line)
		}
	}
	return lines, nil
}
