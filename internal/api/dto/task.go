package dto

import "time"

// CreateTaskRequest starts a coding task
type CreateTaskRequest struct {
	Task    string         `json:"task" binding:"required"`
	Context map[string]any `json:"context,omitempty"` // Accepted for compatibility, not forwarded
}

// StopTaskRequest optionally overrides the graceful stop timeout
type StopTaskRequest struct {
	TimeoutSeconds *float64 `json:"timeout_seconds" binding:"omitempty,gt=0,lte=300"`
}

// TaskResponse represents a recorded task
type TaskResponse struct {
	ID         int64      `json:"id"`
	CommandID  string     `json:"command_id"`
	Kind       string     `json:"kind"`
	Prompt     string     `json:"prompt"`
	Command    string     `json:"command"`
	PID        *int       `json:"pid,omitempty"`
	Status     string     `json:"status"`
	Output     *string    `json:"output,omitempty"`
	Error      *string    `json:"error,omitempty"`
	ReturnCode *int       `json:"return_code,omitempty"`
	StartTime  time.Time  `json:"start_time"`
	EndTime    *time.Time `json:"end_time,omitempty"`
	Link       *string    `json:"link,omitempty"` // Link to status endpoint
}

// TaskListResponse represents a list of tasks
type TaskListResponse struct {
	Items      []TaskResponse `json:"items"`
	Pagination PaginationInfo `json:"pagination"`
}

// AsyncResponse represents an async operation response (202 Accepted)
type AsyncResponse struct {
	Status     string  `json:"status"`
	Link       *string `json:"link,omitempty"`
	PID        *string `json:"pid,omitempty"` // Command ID to poll
	ResourceID *string `json:"resource_id,omitempty"`
}

// ManagerStatusResponse reports whether the coding assistant is busy
type ManagerStatusResponse struct {
	Running bool          `json:"running"`
	PID     *int          `json:"pid,omitempty"`
	Binary  string        `json:"binary"`
	Task    *TaskResponse `json:"task,omitempty"`
}

// StopResponse answers stop and kill requests
type StopResponse struct {
	Status  string `json:"status"` // "stopped", "killed" or "idle"
	Running bool   `json:"running"`
}
