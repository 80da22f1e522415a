package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/taskflow/core/internal/domain/entities"
	"github.com/taskflow/core/internal/infrastructure/logger"
	"github.com/taskflow/core/internal/ports"
)

// TaskHandler exposes the task manager over JSON
type TaskHandler struct {
	manager ports.TaskManager
	logger  *logger.Logger
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(manager ports.TaskManager, logger *logger.Logger) *TaskHandler {
	return &TaskHandler{
		manager: manager,
		logger:  logger,
	}
}

// GetView returns the current visible list, counts and notifications
func (h *TaskHandler) GetView(c echo.Context) error {
	return c.JSON(http.StatusOK, h.manager.View())
}

// CreateTask handles task creation
func (h *TaskHandler) CreateTask(c echo.Context) error {
	var req ports.CreateTaskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	if err := c.Validate(&req); err != nil {
		return err
	}

	task, err := h.manager.AddTask(c.Request().Context(), req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, task)
}

// UpdateTask merges the given fields into a task
func (h *TaskHandler) UpdateTask(c echo.Context) error {
	id, err := parseTaskID(c)
	if err != nil {
		return err
	}

	var req ports.UpdateTaskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	if err := c.Validate(&req); err != nil {
		return err
	}

	task, err := h.manager.UpdateTask(c.Request().Context(), id, req)
	if err != nil {
		return err
	}
	if task == nil {
		return echo.NewHTTPError(http.StatusNotFound, "Task not found")
	}

	return c.JSON(http.StatusOK, task)
}

// ToggleTask flips a task's completed flag
func (h *TaskHandler) ToggleTask(c echo.Context) error {
	id, err := parseTaskID(c)
	if err != nil {
		return err
	}

	task, err := h.manager.ToggleTask(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if task == nil {
		return echo.NewHTTPError(http.StatusNotFound, "Task not found")
	}

	return c.JSON(http.StatusOK, task)
}

// DeleteTask removes a task. Deleting a missing task succeeds.
func (h *TaskHandler) DeleteTask(c echo.Context) error {
	id, err := parseTaskID(c)
	if err != nil {
		return err
	}

	if err := h.manager.DeleteTask(c.Request().Context(), id); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}

// ClearCompleted removes completed tasks. The body must confirm it.
func (h *TaskHandler) ClearCompleted(c echo.Context) error {
	var req ports.ClearCompletedRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	removed, err := h.manager.ClearCompleted(c.Request().Context(), func(int) bool {
		return req.Confirm
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, ports.ClearCompletedResponse{Removed: removed})
}

// ReorderTasks applies a new order to the listed tasks
func (h *TaskHandler) ReorderTasks(c echo.Context) error {
	var req ports.ReorderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	if err := c.Validate(&req); err != nil {
		return err
	}

	if err := h.manager.ReorderTasks(c.Request().Context(), req.IDs); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, h.manager.View())
}

// UpdateView changes the filter, search or sort selection
func (h *TaskHandler) UpdateView(c echo.Context) error {
	var req ports.UpdateViewRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	if req.Category != nil {
		category, err := entities.ParseCategory(*req.Category)
		if err != nil {
			return err
		}
		if err := h.manager.SetCategoryFilter(category); err != nil {
			return err
		}
	}

	if req.Search != nil {
		h.manager.SetSearchQuery(*req.Search)
	}

	if req.SortBy != nil || req.Direction != nil {
		current := h.manager.View().ViewState
		key, dir := current.SortBy, current.Direction

		if req.SortBy != nil {
			parsed, err := entities.ParseSortKey(*req.SortBy)
			if err != nil {
				return err
			}
			key = parsed
		}
		if req.Direction != nil {
			parsed, err := entities.ParseSortDirection(*req.Direction)
			if err != nil {
				return err
			}
			dir = parsed
		}

		if err := h.manager.SetSort(key, dir); err != nil {
			return err
		}
	}

	return c.JSON(http.StatusOK, h.manager.View())
}

// RetryLoad reloads the collection after a failed load
func (h *TaskHandler) RetryLoad(c echo.Context) error {
	if err := h.manager.RetryLoad(c.Request().Context()); err != nil {
		h.logger.WithError(err).Warn("Retry load failed")
		return c.JSON(http.StatusServiceUnavailable, h.manager.View())
	}

	return c.JSON(http.StatusOK, h.manager.View())
}

// DismissNotification removes a notification by ID
func (h *TaskHandler) DismissNotification(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid notification ID")
	}

	if !h.manager.DismissNotification(id) {
		return echo.NewHTTPError(http.StatusNotFound, "Notification not found")
	}

	return c.NoContent(http.StatusNoContent)
}

func parseTaskID(c echo.Context) (int, error) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "Invalid task ID")
	}
	return id, nil
}

// StatusFor maps an error returned by the task manager onto an HTTP
// status code
func StatusFor(err error) int {
	var fieldErrs validator.ValidationErrors
	switch {
	case errors.As(err, &fieldErrs):
		return http.StatusBadRequest
	case errors.Is(err, entities.ErrEmptyText),
		errors.Is(err, entities.ErrInvalidPriority),
		errors.Is(err, entities.ErrInvalidCategory),
		errors.Is(err, entities.ErrInvalidSortKey),
		errors.Is(err, entities.ErrInvalidSortDir),
		errors.Is(err, entities.ErrInvalidReorder):
		return http.StatusBadRequest
	case errors.Is(err, entities.ErrNotConfirmed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
