// Package queue holds the task queue contract shared by the MongoDB-backed
// queue and the in-memory one.
package queue

import (
	"context"
	"errors"

	"wiki_harvester/internal/models"
)

var (
	// ErrEmpty is returned by Claim when no task is pending.
	ErrEmpty        = errors.New("no pending task")
	ErrTaskNotFound = errors.New("task not found")
)

// Queue stores task records and their progress. Claim hands each pending
// task to exactly one caller, oldest first.
type Queue interface {
	Enqueue(ctx context.Context, name, arg string) (*models.Task, error)
	Claim(ctx context.Context, worker string) (*models.Task, error)
	Progress(ctx context.Context, id string, current, total int) error
	Complete(ctx context.Context, id string, result interface{}) error
	Fail(ctx context.Context, id string, cause error) error
	Get(ctx context.Context, id string) (*models.Task, error)
	List(ctx context.Context, limit int) ([]*models.Task, error)
	// Counts returns the number of tasks per status.
	Counts(ctx context.Context) (map[models.TaskStatus]int64, error)
}
