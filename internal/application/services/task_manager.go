package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/taskflow/core/internal/application/query"
	"github.com/taskflow/core/internal/domain/entities"
	"github.com/taskflow/core/internal/infrastructure/clock"
	"github.com/taskflow/core/internal/infrastructure/logger"
	"github.com/taskflow/core/internal/ports"
)

// TaskManager owns the view state and the in-memory task cache, and
// bridges user intents to the task repository.
//
// One operation is in flight at a time. State is never locked across a
// repository call, so View can report Loading while a load is pending.
type TaskManager struct {
	repo   ports.TaskRepository
	logger *logger.Logger
	clock  clock.Clock

	op sync.Mutex

	mu      sync.RWMutex
	tasks   []entities.Task
	loading bool
	loadErr string
	view    entities.ViewState
	notes   notifications
}

var _ ports.TaskManager = (*TaskManager)(nil)

// NewTaskManager creates a task manager over repo. The manager starts in
// the loading state until Load is called.
func NewTaskManager(repo ports.TaskRepository, log *logger.Logger, clk clock.Clock) *TaskManager {
	if log == nil {
		log = logger.NewNop()
	}
	if clk == nil {
		clk = clock.Real()
	}

	return &TaskManager{
		repo:    repo,
		logger:  log.WithComponent("task_manager"),
		clock:   clk,
		loading: true,
		view:    entities.DefaultViewState(),
		notes:   notifications{clock: clk},
	}
}

// Load fetches the full collection into the cache. On failure the cache
// is emptied and the view reports an error until a later load succeeds.
func (m *TaskManager) Load(ctx context.Context) error {
	m.op.Lock()
	defer m.op.Unlock()

	return m.load(ctx)
}

// RetryLoad is the retry action offered by the error state
func (m *TaskManager) RetryLoad(ctx context.Context) error {
	m.logger.LogUserAction("retry_load", nil)
	return m.Load(ctx)
}

func (m *TaskManager) load(ctx context.Context) error {
	m.mu.Lock()
	m.loading = true
	m.loadErr = ""
	m.mu.Unlock()

	tasks, err := m.repo.GetAll(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.loading = false
	if err != nil {
		m.tasks = nil
		m.loadErr = msgLoadErrorDetail
		m.notes.failure(msgLoadFailed)
		m.logger.WithError(err).Error("Failed to load tasks")
		return fmt.Errorf("failed to load tasks: %w", err)
	}

	m.tasks = tasks
	m.logger.Debugw("Tasks loaded", "count", len(tasks))
	return nil
}

// AddTask validates req, creates the task and appends it to the cache.
// Validation errors are returned without touching the repository.
func (m *TaskManager) AddTask(ctx context.Context, req ports.CreateTaskRequest) (*entities.Task, error) {
	req, err := normalizeCreate(req)
	if err != nil {
		return nil, err
	}

	m.op.Lock()
	defer m.op.Unlock()

	task, err := m.repo.Create(ctx, req)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		m.notes.failure(msgAddFailed)
		m.logger.WithError(err).Error("Failed to add task")
		return nil, fmt.Errorf("failed to add task: %w", err)
	}

	m.tasks = append(m.tasks, task.Clone())
	m.notes.success(msgTaskAdded)
	m.logger.LogUserAction("add_task", map[string]interface{}{"task_id": task.ID})

	return task, nil
}

// ToggleTask flips a task's completed flag. Returns nil if the task no
// longer exists.
func (m *TaskManager) ToggleTask(ctx context.Context, id int) (*entities.Task, error) {
	m.op.Lock()
	defer m.op.Unlock()

	task, err := m.repo.ToggleComplete(ctx, id)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		m.notes.failure(msgUpdateFailed)
		m.logger.WithError(err).Errorw("Failed to toggle task", "task_id", id)
		return nil, fmt.Errorf("failed to toggle task: %w", err)
	}
	if task == nil {
		m.logger.Debugw("Toggle of missing task ignored", "task_id", id)
		return nil, nil
	}

	m.replaceCached(*task)
	if task.Completed {
		m.notes.success(msgTaskCompleted)
	} else {
		m.notes.info(msgTaskReopened)
	}
	m.logger.LogUserAction("toggle_task", map[string]interface{}{"task_id": id, "completed": task.Completed})

	return task, nil
}

// UpdateTask merges req into a task. Returns nil if the task no longer
// exists.
func (m *TaskManager) UpdateTask(ctx context.Context, id int, req ports.UpdateTaskRequest) (*entities.Task, error) {
	req, err := normalizeUpdate(req)
	if err != nil {
		return nil, err
	}

	m.op.Lock()
	defer m.op.Unlock()

	task, err := m.repo.Update(ctx, id, req)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		m.notes.failure(msgUpdateFailed)
		m.logger.WithError(err).Errorw("Failed to update task", "task_id", id)
		return nil, fmt.Errorf("failed to update task: %w", err)
	}
	if task == nil {
		return nil, nil
	}

	m.replaceCached(*task)
	m.notes.success(msgTaskUpdated)
	m.logger.LogUserAction("update_task", map[string]interface{}{"task_id": id})

	return task, nil
}

// DeleteTask removes a task. Deleting a missing task succeeds.
func (m *TaskManager) DeleteTask(ctx context.Context, id int) error {
	m.op.Lock()
	defer m.op.Unlock()

	_, err := m.repo.Delete(ctx, id)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		m.notes.failure(msgDeleteFailed)
		m.logger.WithError(err).Errorw("Failed to delete task", "task_id", id)
		return fmt.Errorf("failed to delete task: %w", err)
	}

	m.tasks = slices.DeleteFunc(m.tasks, func(t entities.Task) bool { return t.ID == id })
	m.notes.success(msgTaskDeleted)
	m.logger.LogUserAction("delete_task", map[string]interface{}{"task_id": id})

	return nil
}

// ClearCompleted removes every completed task after confirm approves it.
// With nothing to clear it only raises a notice. Returns the number of
// tasks removed.
func (m *TaskManager) ClearCompleted(ctx context.Context, confirm ports.Confirmer) (int, error) {
	m.op.Lock()
	defer m.op.Unlock()

	m.mu.Lock()
	completed := 0
	for _, t := range m.tasks {
		if t.Completed {
			completed++
		}
	}
	if completed == 0 {
		m.notes.info(msgNothingToClear)
		m.mu.Unlock()
		return 0, nil
	}
	m.mu.Unlock()

	if confirm == nil || !confirm(completed) {
		return 0, entities.ErrNotConfirmed
	}

	_, err := m.repo.ClearCompleted(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		m.notes.failure(msgClearFailed)
		m.logger.WithError(err).Error("Failed to clear completed tasks")
		return 0, fmt.Errorf("failed to clear completed tasks: %w", err)
	}

	m.tasks = slices.DeleteFunc(m.tasks, func(t entities.Task) bool { return t.Completed })
	m.notes.success(clearedMessage(completed))
	m.logger.LogUserAction("clear_completed", map[string]interface{}{"removed": completed})

	return completed, nil
}

func clearedMessage(n int) string {
	if n == 1 {
		return "Cleared 1 completed task"
	}
	return fmt.Sprintf("Cleared %d completed tasks", n)
}

// ReorderTasks applies a new order to the given tasks, normally the
// visible list after a drag. Tasks not named keep their positions; the
// named ones are redistributed over the slots they occupied. When the
// repository rejects the order the cache is reloaded from it.
func (m *TaskManager) ReorderTasks(ctx context.Context, orderedIDs []int) error {
	m.op.Lock()
	defer m.op.Unlock()

	m.mu.RLock()
	newOrder, err := spliceOrder(m.tasks, orderedIDs)
	m.mu.RUnlock()
	if err != nil {
		return err
	}

	result, err := m.repo.ReorderTasks(ctx, newOrder)
	if err != nil {
		m.mu.Lock()
		m.notes.failure(msgReorderFailed)
		m.mu.Unlock()
		m.logger.WithError(err).Error("Failed to reorder tasks, reloading")

		if loadErr := m.load(context.WithoutCancel(ctx)); loadErr != nil {
			return errors.Join(fmt.Errorf("failed to reorder tasks: %w", err), loadErr)
		}
		return fmt.Errorf("failed to reorder tasks: %w", err)
	}

	m.mu.Lock()
	m.tasks = result
	m.mu.Unlock()
	m.logger.LogUserAction("reorder_tasks", map[string]interface{}{"count": len(orderedIDs)})

	return nil
}

// spliceOrder returns tasks with the tasks named by ids rearranged into
// the slots they jointly occupy, in the order of ids
func spliceOrder(tasks []entities.Task, ids []int) ([]entities.Task, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no ids given", entities.ErrInvalidReorder)
	}

	pos := make(map[int]int, len(tasks))
	for i, t := range tasks {
		pos[t.ID] = i
	}

	slots := make([]int, 0, len(ids))
	seen := make(map[int]bool, len(ids))
	for _, id := range ids {
		i, ok := pos[id]
		if !ok || seen[id] {
			return nil, fmt.Errorf("%w: unknown or repeated id %d", entities.ErrInvalidReorder, id)
		}
		seen[id] = true
		slots = append(slots, i)
	}
	slices.Sort(slots)

	out := make([]entities.Task, len(tasks))
	for i, t := range tasks {
		out[i] = t.Clone()
	}
	for k, slot := range slots {
		out[slot] = tasks[pos[ids[k]]].Clone()
	}
	return out, nil
}

// SetCategoryFilter selects the category shown; CategoryAll shows all
func (m *TaskManager) SetCategoryFilter(c entities.Category) error {
	if !c.IsFilter() {
		return fmt.Errorf("%w: %q", entities.ErrInvalidCategory, c)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.view.Category = c
	return nil
}

func (m *TaskManager) SetSearchQuery(q string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.view.Search = q
}

// SetSort selects the sort key and direction
func (m *TaskManager) SetSort(key entities.SortKey, dir entities.SortDirection) error {
	if !key.IsValid() {
		return fmt.Errorf("%w: %q", entities.ErrInvalidSortKey, key)
	}
	if !dir.IsValid() {
		return fmt.Errorf("%w: %q", entities.ErrInvalidSortDir, dir)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.view.SortBy = key
	m.view.Direction = dir
	return nil
}

// ToggleSortDirection flips the sort direction and returns the new one
func (m *TaskManager) ToggleSortDirection() entities.SortDirection {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.view.Direction = m.view.Direction.Opposite()
	return m.view.Direction
}

// View derives the observable state from the cache and view state
func (m *TaskManager) View() ports.TaskView {
	m.mu.RLock()
	defer m.mu.RUnlock()

	visible := query.Apply(m.tasks, m.view)
	active, completed := query.Partition(visible)
	counts := query.Counts(m.tasks, m.view)

	return ports.TaskView{
		Loading:           m.loading,
		Error:             m.loadErr,
		Tasks:             visible,
		Active:            active,
		Completed:         completed,
		Counts:            counts,
		CompletionPercent: counts.CompletionPercent(),
		ViewState:         m.view,
		Today:             entities.DateOf(m.clock.Now()),
		Notifications:     m.notes.snapshot(),
	}
}

// DismissNotification removes a notification. Returns false if it was
// already gone.
func (m *TaskManager) DismissNotification(id uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.notes.dismiss(id)
}

func (m *TaskManager) replaceCached(task entities.Task) {
	for i := range m.tasks {
		if m.tasks[i].ID == task.ID {
			m.tasks[i] = task.Clone()
			return
		}
	}
}

func normalizeCreate(req ports.CreateTaskRequest) (ports.CreateTaskRequest, error) {
	text, err := entities.NormalizeText(req.Text)
	if err != nil {
		return req, err
	}
	req.Text = text
	if req.DueDate != nil && req.DueDate.IsZero() {
		req.DueDate = nil
	}

	if req.Priority != "" && !req.Priority.IsValid() {
		return req, fmt.Errorf("%w: %q", entities.ErrInvalidPriority, req.Priority)
	}
	if req.Category != "" && !req.Category.IsValid() {
		return req, fmt.Errorf("%w: %q", entities.ErrInvalidCategory, req.Category)
	}
	return req, nil
}

func normalizeUpdate(req ports.UpdateTaskRequest) (ports.UpdateTaskRequest, error) {
	if req.Text != nil {
		text, err := entities.NormalizeText(*req.Text)
		if err != nil {
			return req, err
		}
		req.Text = &text
	}
	if req.DueDate != nil && req.DueDate.IsZero() {
		req.DueDate = nil
		req.ClearDueDate = true
	}
	if req.Priority != nil && !req.Priority.IsValid() {
		return req, fmt.Errorf("%w: %q", entities.ErrInvalidPriority, *req.Priority)
	}
	if req.Category != nil && !req.Category.IsValid() {
		return req, fmt.Errorf("%w: %q", entities.ErrInvalidCategory, *req.Category)
	}
	return req, nil
}
