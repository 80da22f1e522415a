package ports

import (
	"context"

	"github.com/taskflow/core/internal/domain/entities"
)

// KeyValueStore is the durable backing for the task collection: a set of
// named records, each an opaque document. It plays the role of browser
// local storage and is implemented over a file, Redis or Postgres.
type KeyValueStore interface {
	// Get returns the record and true, or nil and false if the key is absent.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// TaskRepository defines the interface for task data operations.
//
// Not-found is never an error: lookups and single-task mutations return a
// nil task, Delete returns true. Errors signal storage faults only.
type TaskRepository interface {
	GetAll(ctx context.Context) ([]entities.Task, error)
	GetByID(ctx context.Context, id int) (*entities.Task, error)
	Create(ctx context.Context, req CreateTaskRequest) (*entities.Task, error)
	Update(ctx context.Context, id int, req UpdateTaskRequest) (*entities.Task, error)
	ToggleComplete(ctx context.Context, id int) (*entities.Task, error)
	Delete(ctx context.Context, id int) (bool, error)
	ClearCompleted(ctx context.Context) (bool, error)
	ReorderTasks(ctx context.Context, newOrder []entities.Task) ([]entities.Task, error)
	ReorderByIDs(ctx context.Context, ids []int) ([]entities.Task, error)
}

// Request types for repository mutations

type CreateTaskRequest struct {
	Text     string            `json:"text" validate:"required"`
	Priority entities.Priority `json:"priority,omitempty" validate:"omitempty,oneof=High Medium Low"`
	Category entities.Category `json:"category,omitempty" validate:"omitempty,oneof=Work Personal Shopping Health"`
	DueDate  *entities.Date    `json:"dueDate,omitempty"`
}

// UpdateTaskRequest merges the non-nil fields into an existing task.
// CreatedAt and ID are not updatable.
type UpdateTaskRequest struct {
	Text         *string            `json:"text,omitempty"`
	Completed    *bool              `json:"completed,omitempty"`
	Priority     *entities.Priority `json:"priority,omitempty" validate:"omitempty,oneof=High Medium Low"`
	Category     *entities.Category `json:"category,omitempty" validate:"omitempty,oneof=Work Personal Shopping Health"`
	DueDate      *entities.Date     `json:"dueDate,omitempty"`
	ClearDueDate bool               `json:"clearDueDate,omitempty"`
}
