package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/isaacrestrick/realtime-diabolical-computer/internal/core/domain"
	"github.com/isaacrestrick/realtime-diabolical-computer/internal/core/repository"
)

const taskColumns = `id, command_id, kind, prompt, command, pid, status, output, error, return_code, start_time, end_time`

type taskRepository struct {
	db *DB
}

func NewTaskRepository(db *DB) repository.TaskRepository {
	return &taskRepository{db: db}
}

func (r *taskRepository) Create(ctx context.Context, task *domain.Task) error {
	query := `
		INSERT INTO task (command_id, kind, prompt, command, pid, status, output, error, return_code, start_time, end_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		task.CommandID,
		task.Kind,
		task.Prompt,
		task.Command,
		NullInt(task.PID),
		task.Status,
		NullString(task.Output),
		NullString(task.Error),
		NullInt(task.ReturnCode),
		formatTime(task.StartTime),
		nullTime(task.EndTime),
	)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	task.ID = id

	return nil
}

func (r *taskRepository) FindByCommandID(ctx context.Context, commandID string) (*domain.Task, error) {
	var task domain.Task
	query := `SELECT ` + taskColumns + ` FROM task WHERE command_id = ?`

	err := r.db.GetContext(ctx, &task, query, commandID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan task: %w", err)
	}

	return &task, nil
}

func (r *taskRepository) Update(ctx context.Context, task *domain.Task) error {
	query := `
		UPDATE task
		SET pid = ?, status = ?, output = ?, error = ?, return_code = ?, end_time = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		NullInt(task.PID),
		task.Status,
		NullString(task.Output),
		NullString(task.Error),
		NullInt(task.ReturnCode),
		nullTime(task.EndTime),
		task.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %d", repository.ErrTaskNotFound, task.ID)
	}

	return nil
}

func (r *taskRepository) List(ctx context.Context, filter repository.TaskFilter) ([]*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM task WHERE 1=1`
	args := []interface{}{}

	query, args = ApplyFilters(query, args, filter.Filters)
	query = ApplyOrdering(query, filter.Order, "start_time DESC, id DESC")
	query, args = ApplyPagination(query, args, filter.Page, filter.PerPage)

	tasks := []*domain.Task{}
	if err := r.db.SelectContext(ctx, &tasks, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	return tasks, nil
}

func (r *taskRepository) Count(ctx context.Context, filter repository.TaskFilter) (int, error) {
	query := `SELECT COUNT(*) FROM task WHERE 1=1`
	args := []interface{}{}

	query, args = ApplyFilters(query, args, filter.Filters)

	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("failed to count tasks: %w", err)
	}

	return count, nil
}
