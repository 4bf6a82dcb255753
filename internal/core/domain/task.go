package domain

import (
	"time"

	"github.com/google/uuid"
)

type TaskStatus string

const (
	TaskStatusRunning TaskStatus = "running"
	TaskStatusSuccess TaskStatus = "success"
	TaskStatusFailed  TaskStatus = "failed"
	TaskStatusStopped TaskStatus = "stopped"
)

type TaskKind string

const (
	TaskKindClaudeCode   TaskKind = "claude_code"
	TaskKindOpusComputer TaskKind = "opus_computer"
)

type Task struct {
	ID         int64      `db:"id"`
	CommandID  string     `db:"command_id"` // UUID for API polling
	Kind       TaskKind   `db:"kind"`
	Prompt     string     `db:"prompt"`
	Command    string     `db:"command"`
	PID        *int       `db:"pid"`
	Status     TaskStatus `db:"status"`
	Output     *string    `db:"output"`
	Error      *string    `db:"error"`
	ReturnCode *int       `db:"return_code"`
	StartTime  time.Time  `db:"start_time"`
	EndTime    *time.Time `db:"end_time"`
}

func NewTask(kind TaskKind, command, prompt string) *Task {
	return &Task{
		CommandID: uuid.New().String(),
		Kind:      kind,
		Prompt:    prompt,
		Command:   command,
		Status:    TaskStatusRunning,
		StartTime: time.Now(),
	}
}

func (t *Task) SetPID(pid int) {
	if pid > 0 {
		t.PID = &pid
	}
}

func (t *Task) Complete(returnCode int, output, errorOutput string) {
	now := time.Now()
	t.EndTime = &now
	t.ReturnCode = &returnCode

	if output != "" {
		t.Output = &output
	}
	if errorOutput != "" {
		t.Error = &errorOutput
	}

	if returnCode == 0 {
		t.Status = TaskStatusSuccess
	} else {
		t.Status = TaskStatusFailed
	}
}

func (t *Task) Fail(output, errorOutput string) {
	now := time.Now()
	t.EndTime = &now
	t.Status = TaskStatusFailed
	if output != "" {
		t.Output = &output
	}
	if errorOutput != "" {
		t.Error = &errorOutput
	}
}

// Stopped marks a task ended by a stop or kill request.
func (t *Task) Stopped(returnCode int, output, errorOutput string) {
	t.Complete(returnCode, output, errorOutput)
	t.Status = TaskStatusStopped
}

// Cancel marks a task stopped before its process ever ran.
func (t *Task) Cancel(output, errorOutput string) {
	t.Fail(output, errorOutput)
	t.Status = TaskStatusStopped
}

func (t *Task) IsComplete() bool {
	return t.Status != TaskStatusRunning
}
