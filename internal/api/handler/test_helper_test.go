package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/isaacrestrick/realtime-diabolical-computer/internal/adapter/system"
	"github.com/isaacrestrick/realtime-diabolical-computer/internal/api/dto"
	"github.com/isaacrestrick/realtime-diabolical-computer/internal/core/domain"
	"github.com/isaacrestrick/realtime-diabolical-computer/internal/core/repository"
	"github.com/isaacrestrick/realtime-diabolical-computer/internal/core/service"
	"github.com/isaacrestrick/realtime-diabolical-computer/internal/infrastructure/sqlite"
	"github.com/isaacrestrick/realtime-diabolical-computer/internal/process"
	"github.com/isaacrestrick/realtime-diabolical-computer/internal/tools"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// testEnv holds all test dependencies
type testEnv struct {
	db          *sqlite.DB
	router      *gin.Engine
	taskRepo    repository.TaskRepository
	taskService *service.TaskService
	taskHandler *TaskHandler
	toolHandler *ToolHandler
}

// setupTestEnv creates a test environment with an in-memory SQLite task log.
// script is run by sh in place of the coding assistant; the prompt is $0.
func setupTestEnv(t *testing.T, script string) *testEnv {
	t.Helper()

	db, err := sqlite.New(sqlite.MemoryDSN)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	taskRepo := sqlite.NewTaskRepository(db)
	runner := process.NewManager("sh", process.WithArgs("-c", script), process.WithLogger(discard))
	taskService := service.NewTaskService(runner, taskRepo, time.Second, discard)
	registry := tools.NewRegistry(taskService, system.NewAdapter(5*time.Second, discard), discard)

	taskHandler := NewTaskHandler(taskService)
	toolHandler := NewToolHandler(registry)

	// Setup gin router in test mode
	gin.SetMode(gin.TestMode)
	router := gin.New()

	router.POST("/api/claude-code/tasks", taskHandler.CreateTask)
	router.GET("/api/claude-code/status", taskHandler.Status)
	router.POST("/api/claude-code/stop", taskHandler.Stop)
	router.POST("/api/claude-code/kill", taskHandler.Kill)
	router.GET("/api/tasks", taskHandler.ListTasks)
	router.GET("/api/tasks/:command_id", taskHandler.GetTask)
	router.GET("/api/tools", toolHandler.ListTools)
	router.POST("/api/tools/:name", toolHandler.CallTool)

	env := &testEnv{
		db:          db,
		router:      router,
		taskRepo:    taskRepo,
		taskService: taskService,
		taskHandler: taskHandler,
		toolHandler: toolHandler,
	}
	t.Cleanup(env.cleanup)
	return env
}

// cleanup stops running tasks and closes the test database
func (env *testEnv) cleanup() {
	env.taskService.Close()
	if env.db != nil {
		env.db.Close()
	}
}

// seedTestData populates the task log with test data for filtering tests
func (env *testEnv) seedTestData(t *testing.T) {
	t.Helper()

	// Base time: Nov 1, 2025
	baseTime := time.Date(2025, 11, 1, 10, 0, 0, 0, time.UTC)

	tasks := []struct {
		commandID  string
		kind       domain.TaskKind
		prompt     string
		status     domain.TaskStatus
		returnCode *int
		startTime  time.Time
		endTime    *time.Time
	}{
		{"task-001", domain.TaskKindClaudeCode, "add login", domain.TaskStatusSuccess, ptr(0), baseTime, ptr(baseTime.Add(10 * time.Minute))},
		{"task-002", domain.TaskKindClaudeCode, "fix tests", domain.TaskStatusFailed, ptr(1), baseTime.Add(24 * time.Hour), ptr(baseTime.Add(24*time.Hour + 5*time.Minute))},
		{"task-003", domain.TaskKindClaudeCode, "refactor", domain.TaskStatusStopped, ptr(-15), baseTime.Add(3 * 24 * time.Hour), ptr(baseTime.Add(3*24*time.Hour + time.Minute))},
		{"task-004", domain.TaskKindOpusComputer, "open browser", domain.TaskStatusSuccess, ptr(0), baseTime.Add(5 * 24 * time.Hour), ptr(baseTime.Add(5*24*time.Hour + 2*time.Minute))},
		{"task-005", domain.TaskKindOpusComputer, "take screenshot", domain.TaskStatusFailed, ptr(2), baseTime.Add(8 * 24 * time.Hour), ptr(baseTime.Add(8*24*time.Hour + 3*time.Minute))},
		{"task-006", domain.TaskKindClaudeCode, "write docs", domain.TaskStatusRunning, nil, baseTime.Add(10 * 24 * time.Hour), nil},
	}

	for _, s := range tasks {
		task := &domain.Task{
			CommandID:  s.commandID,
			Kind:       s.kind,
			Prompt:     s.prompt,
			Command:    "claude -p",
			PID:        ptr(12345),
			Status:     s.status,
			ReturnCode: s.returnCode,
			StartTime:  s.startTime,
			EndTime:    s.endTime,
		}
		if err := env.taskRepo.Create(context.Background(), task); err != nil {
			t.Fatalf("failed to seed task %s: %v", s.commandID, err)
		}
	}
}

// makeRequest performs a GET request and returns the response
func (env *testEnv) makeRequest(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	return env.do(t, http.MethodGet, path, nil)
}

// postJSON performs a POST request with a JSON body
func (env *testEnv) postJSON(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var data []byte
	if body != nil {
		var err error
		if data, err = json.Marshal(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	return env.do(t, http.MethodPost, path, data)
}

func (env *testEnv) do(t *testing.T, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()

	req, err := http.NewRequest(method, path, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

// parseJSON parses the response body into T
func parseJSON[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var resp T
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v\nBody: %s", err, w.Body.String())
	}
	return resp
}

// parseErrorResponse parses the response body into ErrorResponse
func parseErrorResponse(t *testing.T, w *httptest.ResponseRecorder) dto.ErrorResponse {
	t.Helper()
	return parseJSON[dto.ErrorResponse](t, w)
}

// ptr is a helper to create a pointer to a value
func ptr[T any](v T) *T {
	return &v
}
