package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/taskflow/core/internal/domain/entities"
)

// TaskManager is the interface presentation adapters drive. It owns the
// view state and the in-memory task cache and routes every mutation
// through a TaskRepository.
type TaskManager interface {
	Load(ctx context.Context) error
	RetryLoad(ctx context.Context) error

	AddTask(ctx context.Context, req CreateTaskRequest) (*entities.Task, error)
	ToggleTask(ctx context.Context, id int) (*entities.Task, error)
	UpdateTask(ctx context.Context, id int, req UpdateTaskRequest) (*entities.Task, error)
	DeleteTask(ctx context.Context, id int) error
	ClearCompleted(ctx context.Context, confirm Confirmer) (int, error)
	ReorderTasks(ctx context.Context, orderedIDs []int) error

	SetCategoryFilter(c entities.Category) error
	SetSearchQuery(q string)
	SetSort(key entities.SortKey, dir entities.SortDirection) error
	ToggleSortDirection() entities.SortDirection

	View() TaskView
	DismissNotification(id uuid.UUID) bool
}

// Confirmer is asked before a destructive operation. It receives the
// number of tasks that would be removed and returns true to proceed.
type Confirmer func(count int) bool

// AlwaysConfirm approves every destructive operation.
func AlwaysConfirm(int) bool { return true }

// TaskView is the observable state rendered by a presentation layer
type TaskView struct {
	Loading bool `json:"loading"`

	// Error is set when the collection could not be loaded. Tasks is
	// empty while it is set.
	Error string `json:"error,omitempty"`

	Tasks     []entities.Task `json:"tasks"`
	Active    []entities.Task `json:"active"`
	Completed []entities.Task `json:"completed"`

	Counts            entities.TaskCounts `json:"counts"`
	CompletionPercent int                 `json:"completionPercent"`
	ViewState         entities.ViewState  `json:"viewState"`
	Today             entities.Date       `json:"today"`

	Notifications []Notification `json:"notifications"`
}

type NotificationLevel string

const (
	NotificationSuccess NotificationLevel = "success"
	NotificationInfo    NotificationLevel = "info"
	NotificationError   NotificationLevel = "error"
)

// Notification is a transient, dismissible message about an operation
type Notification struct {
	ID        uuid.UUID         `json:"id"`
	Level     NotificationLevel `json:"level"`
	Message   string            `json:"message"`
	CreatedAt time.Time         `json:"createdAt"`
}

// UpdateViewRequest changes any subset of the view state
type UpdateViewRequest struct {
	Category  *string `json:"category,omitempty"`
	Search    *string `json:"search,omitempty"`
	SortBy    *string `json:"sortBy,omitempty"`
	Direction *string `json:"direction,omitempty"`
}

// ReorderRequest carries the new visible order
type ReorderRequest struct {
	IDs []int `json:"ids" validate:"required,min=1,dive,gt=0"`
}

// ClearCompletedRequest must carry an explicit confirmation
type ClearCompletedRequest struct {
	Confirm bool `json:"confirm"`
}

// ClearCompletedResponse reports how many tasks were removed
type ClearCompletedResponse struct {
	Removed int `json:"removed"`
}
