package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/taskflow/core/internal/domain/entities"
	"github.com/taskflow/core/internal/infrastructure/clock"
	"github.com/taskflow/core/internal/infrastructure/logger"
	"github.com/taskflow/core/internal/infrastructure/metrics"
	"github.com/taskflow/core/internal/ports"
)

// DefaultKey is the record name the collection is stored under
const DefaultKey = "taskflow-tasks"

// DefaultLatency mirrors the response time of a remote task service
const DefaultLatency = 200 * time.Millisecond

// Options configures a TaskRepository
type Options struct {
	// Key names the record holding the collection. Defaults to DefaultKey.
	Key string

	// Latency is waited before every operation. Zero disables it.
	Latency time.Duration

	// Seed writes the demo tasks when the record does not exist yet.
	Seed bool

	Clock   clock.Clock
	Logger  *logger.Logger
	Metrics *metrics.StoreMetrics
}

// TaskRepository implements ports.TaskRepository over a key-value
// record: the whole collection is read, changed and written back on
// every mutation, and the stored element order is the manual order.
type TaskRepository struct {
	kv       ports.KeyValueStore
	key      string
	latency  time.Duration
	seed     bool
	clock    clock.Clock
	logger   *logger.Logger
	metrics  *metrics.StoreMetrics
	validate *validator.Validate

	// mu serialises read-modify-write cycles within this process
	mu sync.Mutex
}

var _ ports.TaskRepository = (*TaskRepository)(nil)

// NewTaskRepository creates a new task repository
func NewTaskRepository(kv ports.KeyValueStore, opts Options) *TaskRepository {
	if opts.Key == "" {
		opts.Key = DefaultKey
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}

	return &TaskRepository{
		kv:       kv,
		key:      opts.Key,
		latency:  opts.Latency,
		seed:     opts.Seed,
		clock:    opts.Clock,
		logger:   opts.Logger.WithComponent("task_repository"),
		metrics:  opts.Metrics,
		validate: validator.New(),
	}
}

// GetAll returns a copy of every task in stored order
func (r *TaskRepository) GetAll(ctx context.Context) (tasks []entities.Task, err error) {
	defer r.observe("get_all", time.Now(), &err)

	if err := r.wait(ctx); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	return cloneAll(stored), nil
}

// GetByID retrieves a task by ID. Returns nil if not found.
func (r *TaskRepository) GetByID(ctx context.Context, id int) (task *entities.Task, err error) {
	defer r.observe("get_by_id", time.Now(), &err)

	if err := r.wait(ctx); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	if i := indexOf(stored, id); i >= 0 {
		t := stored[i].Clone()
		return &t, nil
	}
	return nil, nil
}

// Create appends a new task to the end of the stored order
func (r *TaskRepository) Create(ctx context.Context, req ports.CreateTaskRequest) (task *entities.Task, err error) {
	defer r.observe("create", time.Now(), &err)

	req, err = r.validateCreate(req)
	if err != nil {
		return nil, err
	}

	if err := r.wait(ctx); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, err := r.load(ctx)
	if err != nil {
		return nil, err
	}

	lastID, err := r.loadLastID(ctx)
	if err != nil {
		return nil, err
	}

	created := entities.Task{
		ID:        nextID(stored, lastID),
		Text:      req.Text,
		Completed: false,
		Priority:  req.Priority,
		Category:  req.Category,
		CreatedAt: r.clock.Now().UTC(),
		DueDate:   req.DueDate,
	}
	if created.Priority == "" {
		created.Priority = entities.DefaultPriority
	}
	if created.Category == "" {
		created.Category = entities.DefaultCategory
	}

	// The counter is written first, so no stored ID is ever above it
	if err := r.saveLastID(ctx, created.ID); err != nil {
		return nil, err
	}
	stored = append(stored, created)
	if err := r.save(ctx, stored); err != nil {
		return nil, err
	}

	r.logger.Infow("Task created", "task_id", created.ID, "category", created.Category)

	out := created.Clone()
	return &out, nil
}

// Update merges the given fields into the task at its current position.
// Returns nil if not found.
func (r *TaskRepository) Update(ctx context.Context, id int, req ports.UpdateTaskRequest) (task *entities.Task, err error) {
	defer r.observe("update", time.Now(), &err)

	req, err = r.validateUpdate(req)
	if err != nil {
		return nil, err
	}

	return r.mutate(ctx, id, func(t *entities.Task) {
		if req.Text != nil {
			t.Text = *req.Text
		}
		if req.Completed != nil {
			t.Completed = *req.Completed
		}
		if req.Priority != nil {
			t.Priority = *req.Priority
		}
		if req.Category != nil {
			t.Category = *req.Category
		}
		if req.ClearDueDate {
			t.DueDate = nil
		} else if req.DueDate != nil {
			d := *req.DueDate
			t.DueDate = &d
		}
	})
}

// ToggleComplete flips the completed flag. Returns nil if not found.
func (r *TaskRepository) ToggleComplete(ctx context.Context, id int) (task *entities.Task, err error) {
	defer r.observe("toggle_complete", time.Now(), &err)

	return r.mutate(ctx, id, func(t *entities.Task) {
		t.Completed = !t.Completed
	})
}

// Delete removes the task if present. Deleting an absent task succeeds.
func (r *TaskRepository) Delete(ctx context.Context, id int) (ok bool, err error) {
	defer r.observe("delete", time.Now(), &err)

	if err := r.wait(ctx); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, err := r.load(ctx)
	if err != nil {
		return false, err
	}

	i := indexOf(stored, id)
	if i < 0 {
		return true, nil
	}
	stored = append(stored[:i], stored[i+1:]...)
	if err := r.save(ctx, stored); err != nil {
		return false, err
	}

	r.logger.Infow("Task deleted", "task_id", id)
	return true, nil
}

// ClearCompleted removes every completed task, keeping the relative
// order of the rest
func (r *TaskRepository) ClearCompleted(ctx context.Context) (ok bool, err error) {
	defer r.observe("clear_completed", time.Now(), &err)

	if err := r.wait(ctx); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, err := r.load(ctx)
	if err != nil {
		return false, err
	}

	active := make([]entities.Task, 0, len(stored))
	for _, t := range stored {
		if !t.Completed {
			active = append(active, t)
		}
	}
	if len(active) == len(stored) {
		return true, nil
	}
	if err := r.save(ctx, active); err != nil {
		return false, err
	}

	r.logger.Infow("Completed tasks cleared", "removed", len(stored)-len(active))
	return true, nil
}

// ReorderTasks replaces the stored order with the order of newOrder.
// newOrder must hold every stored task exactly once; only IDs are read
// from it, so stale copies cannot overwrite stored fields.
func (r *TaskRepository) ReorderTasks(ctx context.Context, newOrder []entities.Task) (tasks []entities.Task, err error) {
	ids := make([]int, len(newOrder))
	for i, t := range newOrder {
		ids[i] = t.ID
	}
	return r.ReorderByIDs(ctx, ids)
}

// ReorderByIDs replaces the stored order with ids, which must be a
// permutation of the stored IDs
func (r *TaskRepository) ReorderByIDs(ctx context.Context, ids []int) (tasks []entities.Task, err error) {
	defer r.observe("reorder", time.Now(), &err)

	if err := r.wait(ctx); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, err := r.load(ctx)
	if err != nil {
		return nil, err
	}

	reordered, err := permute(stored, ids)
	if err != nil {
		return nil, err
	}
	if err := r.save(ctx, reordered); err != nil {
		return nil, err
	}

	r.logger.Infow("Tasks reordered", "count", len(reordered))
	return cloneAll(reordered), nil
}

// mutate applies fn to the task with the given id and persists the
// collection. Returns nil if not found.
func (r *TaskRepository) mutate(ctx context.Context, id int, fn func(*entities.Task)) (*entities.Task, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, err := r.load(ctx)
	if err != nil {
		return nil, err
	}

	i := indexOf(stored, id)
	if i < 0 {
		return nil, nil
	}

	createdAt := stored[i].CreatedAt
	fn(&stored[i])
	stored[i].ID = id
	stored[i].CreatedAt = createdAt

	if err := r.save(ctx, stored); err != nil {
		return nil, err
	}

	out := stored[i].Clone()
	return &out, nil
}

// wait blocks for the configured latency or until ctx is done
func (r *TaskRepository) wait(ctx context.Context) error {
	if r.latency <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.clock.After(r.latency):
		return nil
	}
}

func (r *TaskRepository) load(ctx context.Context) ([]entities.Task, error) {
	data, ok, err := r.kv.Get(ctx, r.key)
	if err != nil {
		return nil, fmt.Errorf("failed to read tasks: %w", err)
	}
	if !ok {
		if !r.seed {
			return []entities.Task{}, nil
		}
		return r.writeSeed(ctx)
	}

	tasks, err := decodeTasks(data)
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *TaskRepository) save(ctx context.Context, tasks []entities.Task) error {
	data, err := json.Marshal(tasks)
	if err != nil {
		return fmt.Errorf("failed to encode tasks: %w", err)
	}
	if err := r.kv.Set(ctx, r.key, data); err != nil {
		return fmt.Errorf("failed to write tasks: %w", err)
	}
	r.publishCounts(tasks)
	return nil
}

func (r *TaskRepository) writeSeed(ctx context.Context) ([]entities.Task, error) {
	tasks := SeedTasks(r.clock.Now())
	if err := r.saveLastID(ctx, nextID(tasks, 0)-1); err != nil {
		return nil, fmt.Errorf("failed to seed tasks: %w", err)
	}
	if err := r.save(ctx, tasks); err != nil {
		return nil, fmt.Errorf("failed to seed tasks: %w", err)
	}
	r.logger.Infow("Seeded demo tasks", "count", len(tasks))
	return tasks, nil
}

func (r *TaskRepository) lastIDKey() string {
	return r.key + ":last-id"
}

// loadLastID returns the highest ID ever issued, or 0
func (r *TaskRepository) loadLastID(ctx context.Context) (int, error) {
	data, ok, err := r.kv.Get(ctx, r.lastIDKey())
	if err != nil {
		return 0, fmt.Errorf("failed to read id counter: %w", err)
	}
	if !ok {
		return 0, nil
	}
	id, err := strconv.Atoi(string(data))
	if err != nil {
		return 0, fmt.Errorf("%w: id counter %q", entities.ErrCorruptStore, data)
	}
	return id, nil
}

func (r *TaskRepository) saveLastID(ctx context.Context, id int) error {
	if err := r.kv.Set(ctx, r.lastIDKey(), []byte(strconv.Itoa(id))); err != nil {
		return fmt.Errorf("failed to write id counter: %w", err)
	}
	return nil
}

func (r *TaskRepository) publishCounts(tasks []entities.Task) {
	completed := 0
	for _, t := range tasks {
		if t.Completed {
			completed++
		}
	}
	r.metrics.SetTaskCounts(len(tasks)-completed, completed)
}

func (r *TaskRepository) observe(op string, start time.Time, errp *error) {
	r.metrics.ObserveOperation(op, start, *errp)
	r.logger.LogStoreOperation(op, float64(time.Since(start).Microseconds())/1000, *errp)
}

func (r *TaskRepository) validateCreate(req ports.CreateTaskRequest) (ports.CreateTaskRequest, error) {
	text, err := entities.NormalizeText(req.Text)
	if err != nil {
		return req, err
	}
	req.Text = text
	if req.DueDate != nil && req.DueDate.IsZero() {
		req.DueDate = nil
	}

	if err := r.validate.Struct(req); err != nil {
		return req, translateValidation(err)
	}
	return req, nil
}

func (r *TaskRepository) validateUpdate(req ports.UpdateTaskRequest) (ports.UpdateTaskRequest, error) {
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

	if err := r.validate.Struct(req); err != nil {
		return req, translateValidation(err)
	}
	return req, nil
}

// translateValidation maps validator failures onto domain errors
func translateValidation(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}
	switch fieldErrs[0].Field() {
	case "Priority":
		return fmt.Errorf("%w: %v", entities.ErrInvalidPriority, fieldErrs[0].Value())
	case "Category":
		return fmt.Errorf("%w: %v", entities.ErrInvalidCategory, fieldErrs[0].Value())
	case "Text":
		return entities.ErrEmptyText
	default:
		return err
	}
}

func decodeTasks(data []byte) ([]entities.Task, error) {
	var tasks []entities.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, fmt.Errorf("%w: %v", entities.ErrCorruptStore, err)
	}
	if tasks == nil {
		tasks = []entities.Task{}
	}
	for i := range tasks {
		if tasks[i].DueDate != nil && tasks[i].DueDate.IsZero() {
			tasks[i].DueDate = nil
		}
	}
	return tasks, nil
}

// nextID returns one more than the highest ID seen in tasks or issued
// before
func nextID(tasks []entities.Task, lastID int) int {
	highest := lastID
	for _, t := range tasks {
		if t.ID > highest {
			highest = t.ID
		}
	}
	return highest + 1
}

func indexOf(tasks []entities.Task, id int) int {
	for i, t := range tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// permute arranges stored in the order given by ids
func permute(stored []entities.Task, ids []int) ([]entities.Task, error) {
	if len(ids) != len(stored) {
		return nil, fmt.Errorf("%w: got %d ids for %d tasks", entities.ErrInvalidReorder, len(ids), len(stored))
	}

	byID := make(map[int]entities.Task, len(stored))
	for _, t := range stored {
		byID[t.ID] = t
	}

	out := make([]entities.Task, 0, len(ids))
	for _, id := range ids {
		t, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: unknown or repeated id %d", entities.ErrInvalidReorder, id)
		}
		delete(byID, id)
		out = append(out, t)
	}
	return out, nil
}

func cloneAll(tasks []entities.Task) []entities.Task {
	out := make([]entities.Task, len(tasks))
	for i, t := range tasks {
		out[i] = t.Clone()
	}
	return out
}
