package repository

import (
	"context"
	"errors"

	"github.com/isaacrestrick/realtime-diabolical-computer/internal/api/util"
	"github.com/isaacrestrick/realtime-diabolical-computer/internal/core/domain"
)

// TaskFilter embeds ListFilter for generic query/order/pagination
type TaskFilter struct {
	util.ListFilter
}

type TaskRepository interface {
	Create(ctx context.Context, task *domain.Task) error
	FindByCommandID(ctx context.Context, commandID string) (*domain.Task, error)
	Update(ctx context.Context, task *domain.Task) error
	List(ctx context.Context, filter TaskFilter) ([]*domain.Task, error)
	Count(ctx context.Context, filter TaskFilter) (int, error)
}

var ErrTaskNotFound = errors.New("task not found")
