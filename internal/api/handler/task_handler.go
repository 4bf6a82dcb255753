package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/isaacrestrick/realtime-diabolical-computer/internal/api/dto"
	"github.com/isaacrestrick/realtime-diabolical-computer/internal/api/util"
	"github.com/isaacrestrick/realtime-diabolical-computer/internal/core/domain"
	"github.com/isaacrestrick/realtime-diabolical-computer/internal/core/repository"
	"github.com/isaacrestrick/realtime-diabolical-computer/internal/core/service"
)

// Allowed fields for task queries and ordering
var (
	taskQueryFields = []string{"id", "command_id", "kind", "command", "pid", "status", "return_code", "start_time", "end_time"}
	taskOrderFields = []string{"id", "start_time", "end_time", "status", "kind"}
)

type TaskHandler struct {
	taskService *service.TaskService
}

func NewTaskHandler(taskService *service.TaskService) *TaskHandler {
	return &TaskHandler{
		taskService: taskService,
	}
}

// CreateTask handles POST /api/claude-code/tasks. With ?stream=true the task
// runs inside the request and its output is sent as server-sent events.
func (h *TaskHandler) CreateTask(c *gin.Context) {
	var req dto.CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(http.StatusBadRequest, err.Error()))
		return
	}

	if stream, _ := strconv.ParseBool(c.Query("stream")); stream {
		h.streamTask(c, req.Task)
		return
	}

	task, err := h.taskService.Start(c.Request.Context(), req.Task)
	if err != nil {
		respondError(c, err)
		return
	}

	link := taskLink(task.CommandID)
	c.JSON(http.StatusAccepted, dto.AsyncResponse{
		Status: string(task.Status),
		Link:   &link,
		PID:    &task.CommandID,
	})
}

func (h *TaskHandler) streamTask(c *gin.Context, prompt string) {
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	// A client disconnect cancels the request context, which kills the child.
	task, err := h.taskService.Run(c.Request.Context(), prompt, func(line string) {
		c.SSEvent("line", gin.H{"line": line})
		c.Writer.Flush()
	})
	if task == nil {
		respondError(c, err)
		return
	}

	if err != nil {
		c.SSEvent("error", toTaskResponse(task))
	} else {
		c.SSEvent("done", toTaskResponse(task))
	}
	c.Writer.Flush()
}

// Status handles GET /api/claude-code/status
func (h *TaskHandler) Status(c *gin.Context) {
	resp := dto.ManagerStatusResponse{
		Running: h.taskService.IsRunning(),
		Binary:  h.taskService.Binary(),
	}
	if pid := h.taskService.PID(); pid > 0 {
		resp.PID = &pid
	}
	if task, ok := h.taskService.Current(); ok {
		tr := toTaskResponse(task)
		resp.Task = &tr
	}

	c.JSON(http.StatusOK, resp)
}

// Stop handles POST /api/claude-code/stop
func (h *TaskHandler) Stop(c *gin.Context) {
	var req dto.StopTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, errorResponse(http.StatusBadRequest, err.Error()))
		return
	}

	var timeout time.Duration
	if req.TimeoutSeconds != nil {
		timeout = time.Duration(*req.TimeoutSeconds * float64(time.Second))
	}

	status := "idle"
	if h.taskService.Stop(timeout) {
		status = "stopped"
	}
	c.JSON(http.StatusOK, dto.StopResponse{Status: status, Running: h.taskService.IsRunning()})
}

// Kill handles POST /api/claude-code/kill
func (h *TaskHandler) Kill(c *gin.Context) {
	status := "idle"
	if h.taskService.Kill() {
		status = "killed"
	}
	c.JSON(http.StatusOK, dto.StopResponse{Status: status, Running: h.taskService.IsRunning()})
}

// ListTasks handles GET /api/tasks
func (h *TaskHandler) ListTasks(c *gin.Context) {
	// Parse pagination parameters
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "25"))

	filter := repository.TaskFilter{ListFilter: util.NewListFilter(page, perPage)}

	if queryStr := c.Query("query"); queryStr != "" {
		filters, err := util.ParseQueryString(queryStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse(http.StatusBadRequest, err.Error()))
			return
		}

		if err := util.ValidateFilterFields(filters, taskQueryFields); err != nil {
			c.JSON(http.StatusBadRequest, errorResponse(http.StatusBadRequest, err.Error()))
			return
		}

		filter.Filters = filters
	}

	if orderStr := c.Query("order"); orderStr != "" {
		orders, err := util.ParseOrderString(orderStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse(http.StatusBadRequest, err.Error()))
			return
		}

		if err := util.ValidateOrderFields(orders, taskOrderFields); err != nil {
			c.JSON(http.StatusBadRequest, errorResponse(http.StatusBadRequest, err.Error()))
			return
		}

		filter.Order = orders
	}

	tasks, err := h.taskService.List(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse(http.StatusInternalServerError, err.Error()))
		return
	}

	count, _ := h.taskService.Count(c.Request.Context(), filter)

	response := dto.TaskListResponse{
		Items: make([]dto.TaskResponse, len(tasks)),
		Pagination: dto.PaginationInfo{
			Total:      count,
			Page:       filter.Page,
			PerPage:    filter.PerPage,
			TotalPages: filter.TotalPages(count),
		},
	}

	for i, task := range tasks {
		response.Items[i] = toTaskResponse(task)
	}

	c.JSON(http.StatusOK, response)
}

// GetTask handles GET /api/tasks/:command_id
func (h *TaskHandler) GetTask(c *gin.Context) {
	commandID := c.Param("command_id")

	task, err := h.taskService.Get(c.Request.Context(), commandID)
	if err != nil {
		if errors.Is(err, repository.ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, errorResponse(http.StatusNotFound, fmt.Sprintf("Task not found: %s", commandID)))
			return
		}
		c.JSON(http.StatusInternalServerError, errorResponse(http.StatusInternalServerError, err.Error()))
		return
	}

	c.JSON(http.StatusOK, toTaskResponse(task))
}

func taskLink(commandID string) string {
	return fmt.Sprintf("/api/tasks/%s", commandID)
}

func toTaskResponse(task *domain.Task) dto.TaskResponse {
	response := dto.TaskResponse{
		ID:         task.ID,
		CommandID:  task.CommandID,
		Kind:       string(task.Kind),
		Prompt:     task.Prompt,
		Command:    task.Command,
		PID:        task.PID,
		Status:     string(task.Status),
		Output:     task.Output,
		Error:      task.Error,
		ReturnCode: task.ReturnCode,
		StartTime:  task.StartTime,
		EndTime:    task.EndTime,
	}

	link := taskLink(task.CommandID)
	response.Link = &link

	return response
}
