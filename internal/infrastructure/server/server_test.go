package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskflow/core/internal/adapters/repository"
	"github.com/taskflow/core/internal/adapters/storage"
	"github.com/taskflow/core/internal/application/services"
	"github.com/taskflow/core/internal/domain/entities"
	"github.com/taskflow/core/internal/infrastructure/clock"
	"github.com/taskflow/core/internal/infrastructure/config"
	"github.com/taskflow/core/internal/infrastructure/logger"
	"github.com/taskflow/core/internal/ports"
)

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Version: "test"},
		Security: config.SecurityConfig{
			CORSAllowedOrigins: "*",
			RateLimitRequests:  1000,
			RateLimitWindow:    time.Minute,
		},
		Metrics: config.MetricsConfig{Enabled: true},
	}
}

func setupTestServer(t *testing.T, cfg *config.Config, opts Options) (*Server, *services.TaskManager) {
	t.Helper()

	clk := clock.Fake(time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC))
	repo := repository.NewTaskRepository(storage.NewMemoryStore(), repository.Options{Seed: true, Clock: clk})
	manager := services.NewTaskManager(repo, nil, clk)
	require.NoError(t, manager.Load(context.Background()))

	return New(cfg, manager, logger.NewNop(), opts), manager
}

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func viewIDs(view ports.TaskView) []int {
	out := make([]int, len(view.Tasks))
	for i, t := range view.Tasks {
		out[i] = t.ID
	}
	return out
}

func TestHealth(t *testing.T) {
	s, _ := setupTestServer(t, testConfig(), Options{})

	rec := doRequest(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, rec)["status"])
}

func TestDetailedHealthReportsFailingCheck(t *testing.T) {
	s, _ := setupTestServer(t, testConfig(), Options{
		Checks: map[string]HealthCheck{
			"storage": func(context.Context) error { return errors.New("connection refused") },
		},
	})

	rec := doRequest(t, s, http.MethodGet, "/health/detailed", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestGetView(t *testing.T) {
	s, _ := setupTestServer(t, testConfig(), Options{})

	rec := doRequest(t, s, http.MethodGet, "/api/v1/view", "")
	require.Equal(t, http.StatusOK, rec.Code)

	view := decode[ports.TaskView](t, rec)
	assert.False(t, view.Loading)
	assert.Equal(t, []int{1, 2, 3}, viewIDs(view))
	assert.Equal(t, 3, view.Counts.ByCategory[entities.CategoryAll])
	assert.Equal(t, "2024-05-11", view.Tasks[0].DueDate.String())
}

func TestCreateTask(t *testing.T) {
	s, _ := setupTestServer(t, testConfig(), Options{})

	rec := doRequest(t, s, http.MethodPost, "/api/v1/tasks",
		`{"text":"  Buy milk ","priority":"Low","category":"Shopping","dueDate":"2024-06-01"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	task := decode[entities.Task](t, rec)
	assert.Equal(t, 4, task.ID)
	assert.Equal(t, "Buy milk", task.Text)
	assert.Equal(t, entities.PriorityLow, task.Priority)
	assert.Equal(t, "2024-06-01", task.DueDate.String())
	assert.Contains(t, rec.Body.String(), `"Id":4`)
}

func TestCreateTaskEmptyDueDate(t *testing.T) {
	s, _ := setupTestServer(t, testConfig(), Options{})

	rec := doRequest(t, s, http.MethodPost, "/api/v1/tasks", `{"text":"Water plants","dueDate":""}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Nil(t, decode[entities.Task](t, rec).DueDate)
	assert.Contains(t, rec.Body.String(), `"dueDate":null`)

	rec = doRequest(t, s, http.MethodPatch, "/api/v1/tasks/1", `{"dueDate":""}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Nil(t, decode[entities.Task](t, rec).DueDate)
}

func TestCreateTaskLongText(t *testing.T) {
	s, _ := setupTestServer(t, testConfig(), Options{})

	text := strings.Repeat("ü", 600)
	rec := doRequest(t, s, http.MethodPost, "/api/v1/tasks", `{"text":"`+text+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, text, decode[entities.Task](t, rec).Text)
}

func TestCreateTaskRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"whitespace text", `{"text":"   "}`},
		{"missing text", `{"priority":"High"}`},
		{"bad priority", `{"text":"x","priority":"Urgent"}`},
		{"bad category", `{"text":"x","category":"All"}`},
		{"bad due date", `{"text":"x","dueDate":"next week"}`},
		{"malformed json", `{"text":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, manager := setupTestServer(t, testConfig(), Options{})

			rec := doRequest(t, s, http.MethodPost, "/api/v1/tasks", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Len(t, manager.View().Tasks, 3)
		})
	}
}

func TestToggleTask(t *testing.T) {
	s, _ := setupTestServer(t, testConfig(), Options{})

	rec := doRequest(t, s, http.MethodPost, "/api/v1/tasks/1/toggle", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[entities.Task](t, rec).Completed)

	rec = doRequest(t, s, http.MethodPost, "/api/v1/tasks/999/toggle", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, s, http.MethodPost, "/api/v1/tasks/abc/toggle", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateTask(t *testing.T) {
	s, _ := setupTestServer(t, testConfig(), Options{})

	rec := doRequest(t, s, http.MethodPatch, "/api/v1/tasks/2", `{"text":"Review feedback","clearDueDate":true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	task := decode[entities.Task](t, rec)
	assert.Equal(t, "Review feedback", task.Text)
	assert.Nil(t, task.DueDate)

	rec = doRequest(t, s, http.MethodPatch, "/api/v1/tasks/999", `{"text":"x"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteTask(t *testing.T) {
	s, manager := setupTestServer(t, testConfig(), Options{})

	rec := doRequest(t, s, http.MethodDelete, "/api/v1/tasks/2", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(t, s, http.MethodDelete, "/api/v1/tasks/2", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	assert.Equal(t, []int{1, 3}, viewIDs(manager.View()))
}

func TestClearCompleted(t *testing.T) {
	s, manager := setupTestServer(t, testConfig(), Options{})

	rec := doRequest(t, s, http.MethodPost, "/api/v1/tasks/clear-completed", `{}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Len(t, manager.View().Tasks, 3)

	rec = doRequest(t, s, http.MethodPost, "/api/v1/tasks/clear-completed", `{"confirm":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[ports.ClearCompletedResponse](t, rec).Removed)
	assert.Equal(t, []int{1, 2}, viewIDs(manager.View()))
}

func TestReorderTasks(t *testing.T) {
	s, _ := setupTestServer(t, testConfig(), Options{})

	rec := doRequest(t, s, http.MethodPut, "/api/v1/tasks/order", `{"ids":[3,1,2]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	// The default view sorts by creation time; seeded tasks share one,
	// so the manual order shows through
	assert.Equal(t, []int{3, 1, 2}, viewIDs(decode[ports.TaskView](t, rec)))

	for _, body := range []string{`{"ids":[1,1]}`, `{"ids":[]}`, `{"ids":[1,99]}`} {
		rec = doRequest(t, s, http.MethodPut, "/api/v1/tasks/order", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestUpdateView(t *testing.T) {
	s, _ := setupTestServer(t, testConfig(), Options{})

	rec := doRequest(t, s, http.MethodPut, "/api/v1/view", `{"category":"work","sortBy":"priority","direction":"asc"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	view := decode[ports.TaskView](t, rec)
	assert.Equal(t, entities.CategoryWork, view.ViewState.Category)
	assert.Equal(t, entities.SortByPriority, view.ViewState.SortBy)
	assert.Equal(t, []int{3, 2, 1}, viewIDs(view))

	rec = doRequest(t, s, http.MethodPut, "/api/v1/view", `{"search":"review"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int{2}, viewIDs(decode[ports.TaskView](t, rec)))

	rec = doRequest(t, s, http.MethodPut, "/api/v1/view", `{"category":"Errands"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodPut, "/api/v1/view", `{"direction":"sideways"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDismissNotification(t *testing.T) {
	s, manager := setupTestServer(t, testConfig(), Options{})

	rec := doRequest(t, s, http.MethodPost, "/api/v1/tasks/1/toggle", "")
	require.Equal(t, http.StatusOK, rec.Code)

	notes := manager.View().Notifications
	require.Len(t, notes, 1)

	rec = doRequest(t, s, http.MethodDelete, "/api/v1/notifications/"+notes[0].ID.String(), "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(t, s, http.MethodDelete, "/api/v1/notifications/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, s, http.MethodDelete, "/api/v1/notifications/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRetryLoad(t *testing.T) {
	s, _ := setupTestServer(t, testConfig(), Options{})

	rec := doRequest(t, s, http.MethodPost, "/api/v1/view/retry", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[ports.TaskView](t, rec).Error)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := setupTestServer(t, testConfig(), Options{})

	doRequest(t, s, http.MethodGet, "/api/v1/view", "")
	doRequest(t, s, http.MethodPost, "/api/v1/tasks/999/toggle", "")

	rec := doRequest(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `http_requests_total{method="GET",path="/api/v1/view",status="200"} 1`)
	assert.Contains(t, body, `http_requests_total{method="POST",path="/api/v1/tasks/:id/toggle",status="404"} 1`)
}

func TestMetricsDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics.Enabled = false
	s, _ := setupTestServer(t, cfg, Options{})

	rec := doRequest(t, s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Security.RateLimitRequests = 2
	cfg.Security.RateLimitWindow = time.Hour
	s, _ := setupTestServer(t, cfg, Options{})

	assert.Equal(t, http.StatusOK, doRequest(t, s, http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusOK, doRequest(t, s, http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, doRequest(t, s, http.MethodGet, "/health", "").Code)
}

func TestRateLimitDisabled(t *testing.T) {
	_, _, ok := rateLimit(0, time.Minute)
	assert.False(t, ok)

	limit, burst, ok := rateLimit(60, time.Minute)
	require.True(t, ok)
	assert.Equal(t, 60, burst)
	assert.InDelta(t, 1.0, float64(limit), 0.0001)
}
