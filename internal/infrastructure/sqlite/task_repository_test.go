package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isaacrestrick/realtime-diabolical-computer/internal/api/util"
	"github.com/isaacrestrick/realtime-diabolical-computer/internal/core/domain"
	"github.com/isaacrestrick/realtime-diabolical-computer/internal/core/repository"
)

func newTestRepo(t *testing.T) repository.TaskRepository {
	t.Helper()

	db, err := New(MemoryDSN)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewTaskRepository(db)
}

func TestTaskRepositoryCreateAndFind(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	task := domain.NewTask(domain.TaskKindClaudeCode, "claude -p", "add a test")
	task.SetPID(4242)
	require.NoError(t, repo.Create(ctx, task))
	assert.NotZero(t, task.ID)

	found, err := repo.FindByCommandID(ctx, task.CommandID)
	require.NoError(t, err)
	assert.Equal(t, task.ID, found.ID)
	assert.Equal(t, domain.TaskKindClaudeCode, found.Kind)
	assert.Equal(t, domain.TaskStatusRunning, found.Status)
	assert.Equal(t, "add a test", found.Prompt)
	require.NotNil(t, found.PID)
	assert.Equal(t, 4242, *found.PID)
	assert.Nil(t, found.EndTime)
	assert.Nil(t, found.ReturnCode)

	task.Complete(0, "done\n", "")
	require.NoError(t, repo.Update(ctx, task))

	found, err = repo.FindByCommandID(ctx, task.CommandID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusSuccess, found.Status)
	require.NotNil(t, found.Output)
	assert.Equal(t, "done\n", *found.Output)
	require.NotNil(t, found.ReturnCode)
	assert.Zero(t, *found.ReturnCode)
	assert.NotNil(t, found.EndTime)
	assert.Nil(t, found.Error)
}

func TestTaskRepositoryFindMissing(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.FindByCommandID(context.Background(), "nope")
	assert.ErrorIs(t, err, repository.ErrTaskNotFound)

	err = repo.Update(context.Background(), &domain.Task{ID: 99, Status: domain.TaskStatusFailed})
	assert.ErrorIs(t, err, repository.ErrTaskNotFound)
}

func TestTaskRepositoryListFilters(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i, kind := range []domain.TaskKind{
		domain.TaskKindClaudeCode,
		domain.TaskKindClaudeCode,
		domain.TaskKindOpusComputer,
	} {
		task := domain.NewTask(kind, "cmd", "prompt")
		task.StartTime = base.Add(time.Duration(i) * time.Minute)
		if i == 1 {
			task.Complete(1, "", "boom")
		}
		require.NoError(t, repo.Create(ctx, task))
	}

	tests := []struct {
		name          string
		filter        util.ListFilter
		expectedCount int
		expectedTotal int
	}{
		{
			name:          "all",
			filter:        util.ListFilter{Page: 1, PerPage: 25},
			expectedCount: 3,
			expectedTotal: 3,
		},
		{
			name: "by kind",
			filter: util.ListFilter{
				Filters: []util.QueryFilter{{Field: "kind", Operator: util.OpEq, Value: "opus_computer"}},
			},
			expectedCount: 1,
			expectedTotal: 1,
		},
		{
			name: "status in",
			filter: util.ListFilter{
				Filters: []util.QueryFilter{{Field: "status", Operator: util.OpIn, Values: []string{"failed", "stopped"}}},
			},
			expectedCount: 1,
			expectedTotal: 1,
		},
		{
			name: "return code is null",
			filter: util.ListFilter{
				Filters: []util.QueryFilter{{Field: "return_code", Operator: util.OpIsNull}},
			},
			expectedCount: 2,
			expectedTotal: 2,
		},
		{
			name:          "second page",
			filter:        util.ListFilter{Page: 2, PerPage: 2},
			expectedCount: 1,
			expectedTotal: 3,
		},
		{
			name: "started after",
			filter: util.ListFilter{
				Filters: []util.QueryFilter{{
					Field:    "start_time",
					Operator: util.OpGte,
					Value:    base.Add(90 * time.Second).Format(time.RFC3339),
				}},
			},
			expectedCount: 1,
			expectedTotal: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filter := repository.TaskFilter{ListFilter: tt.filter}

			tasks, err := repo.List(ctx, filter)
			require.NoError(t, err)
			assert.Len(t, tasks, tt.expectedCount)

			total, err := repo.Count(ctx, filter)
			require.NoError(t, err)
			assert.Equal(t, tt.expectedTotal, total)
		})
	}
}

func TestTaskRepositoryListOrdering(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	var ids []string
	for i := 0; i < 3; i++ {
		task := domain.NewTask(domain.TaskKindClaudeCode, "cmd", "prompt")
		task.StartTime = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.Create(ctx, task))
		ids = append(ids, task.CommandID)
	}

	tasks, err := repo.List(ctx, repository.TaskFilter{})
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, ids[2], tasks[0].CommandID, "newest first by default")

	tasks, err = repo.List(ctx, repository.TaskFilter{ListFilter: util.ListFilter{
		Order: []util.OrderClause{{Field: "start_time", Direction: util.OrderAsc}},
	}})
	require.NoError(t, err)
	assert.Equal(t, ids[0], tasks[0].CommandID)
}

func TestNormalizeDateTime(t *testing.T) {
	in := time.Date(2025, 11, 24, 14, 0, 0, 0, time.Local)
	assert.Equal(t, formatTime(in), normalizeDateTime("2025-11-24T14:00"))
	assert.Equal(t, "2025-11-24 14:00:00.000000000+00:00", normalizeDateTime("2025-11-24T14:00:00Z"))
	assert.Equal(t, "not a date", normalizeDateTime("not a date"))
}
