package queue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"wiki_harvester/internal/models"
)

// MemoryQueue is a process-local Queue.
type MemoryQueue struct {
	mu      sync.Mutex
	tasks   map[string]*models.Task
	pending []string
	now     func() time.Time
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		tasks:   make(map[string]*models.Task),
		pending: make([]string, 0),
		now:     time.Now,
	}
}

func (q *MemoryQueue) Enqueue(_ context.Context, name, arg string) (*models.Task, error) {
	if name == "" {
		return nil, fmt.Errorf("task name is required")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	task := &models.Task{
		ID:        uuid.NewString(),
		Name:      name,
		Arg:       arg,
		Status:    models.TaskPending,
		CreatedAt: q.now().UnixNano(),
	}
	q.tasks[task.ID] = task
	q.pending = append(q.pending, task.ID)

	clone := *task
	return &clone, nil
}

func (q *MemoryQueue) Claim(_ context.Context, worker string) (*models.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return nil, ErrEmpty
	}
	id := q.pending[0]
	q.pending = q.pending[1:]

	task := q.tasks[id]
	task.Status = models.TaskStarted
	task.Worker = worker
	task.StartedAt = q.now().UnixNano()

	clone := *task
	return &clone, nil
}

func (q *MemoryQueue) update(id string, fn func(*models.Task)) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, ok := q.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	fn(task)
	return nil
}

func (q *MemoryQueue) Progress(_ context.Context, id string, current, total int) error {
	return q.update(id, func(t *models.Task) {
		t.Status = models.TaskProgress
		t.Current = current
		t.Total = total
	})
}

func (q *MemoryQueue) Complete(_ context.Context, id string, result interface{}) error {
	return q.update(id, func(t *models.Task) {
		t.Status = models.TaskSuccess
		t.Result = result
		t.FinishedAt = q.now().UnixNano()
	})
}

func (q *MemoryQueue) Fail(_ context.Context, id string, cause error) error {
	return q.update(id, func(t *models.Task) {
		t.Status = models.TaskFailure
		t.Error = cause.Error()
		t.FinishedAt = q.now().UnixNano()
	})
}

func (q *MemoryQueue) Get(_ context.Context, id string) (*models.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, ok := q.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	clone := *task
	return &clone, nil
}

// List returns the most recently created tasks first.
func (q *MemoryQueue) List(_ context.Context, limit int) ([]*models.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	tasks := make([]*models.Task, 0, len(q.tasks))
	for _, t := range q.tasks {
		clone := *t
		tasks = append(tasks, &clone)
	}
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt > tasks[j].CreatedAt
	})
	if limit > 0 && len(tasks) > limit {
		tasks = tasks[:limit]
	}
	return tasks, nil
}

func (q *MemoryQueue) Counts(_ context.Context) (map[models.TaskStatus]int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	counts := make(map[models.TaskStatus]int64)
	for _, t := range q.tasks {
		counts[t.Status]++
	}
	return counts, nil
}

// Size returns the number of tasks still waiting to be claimed.
func (q *MemoryQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
