package dto

// OpusComputerTaskRequest runs a task inside the computer-use container
type OpusComputerTaskRequest struct {
	Task           string `json:"task" binding:"required,min=1"`
	TimeoutSeconds int    `json:"timeout_seconds" binding:"omitempty,gte=10,lte=1800"`
	Container      string `json:"container"`
	Model          string `json:"model"`
	ToolVersion    string `json:"tool_version"`
}

// OpusComputerTaskResponse carries the agent's final text
type OpusComputerTaskResponse struct {
	Output string `json:"output"`
}
