package tasks

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/orgforge/agentplane/models"
	"github.com/orgforge/agentplane/repositories"
	"github.com/orgforge/agentplane/services"
	"github.com/orgforge/agentplane/services/providers"
	"github.com/orgforge/agentplane/services/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeTaskRepo is an in-memory TaskRepository with the same atomic
// claim semantics as the real one.
type fakeTaskRepo struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*models.Task
}

func newFakeTaskRepo() *fakeTaskRepo {
	return &fakeTaskRepo{tasks: make(map[uuid.UUID]*models.Task)}
}

func (f *fakeTaskRepo) Create(_ context.Context, task *models.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *task
	f.tasks[task.ID] = &copied
	return nil
}

func (f *fakeTaskRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	task, ok := f.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, repositories.ErrNotFound)
	}
	copied := *task
	return &copied, nil
}

func (f *fakeTaskRepo) Claim(_ context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	task, ok := f.tasks[id]
	if !ok {
		return false, nil
	}
	if task.Status == models.TaskStatusRunning || task.Status == models.TaskStatusCompleted {
		return false, nil
	}
	task.Status = models.TaskStatusRunning
	return true, nil
}

func (f *fakeTaskRepo) MarkCompleted(_ context.Context, id uuid.UUID, output string, executionTimeMs, tokenCount, costCents int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	task := f.tasks[id]
	task.Status = models.TaskStatusCompleted
	task.Output = &output
	task.ExecutionTimeMs = &executionTimeMs
	task.TokenCount = &tokenCount
	task.CostCents = &costCents
	return nil
}

func (f *fakeTaskRepo) MarkFailed(_ context.Context, id uuid.UUID, output string, executionTimeMs int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	task := f.tasks[id]
	task.Status = models.TaskStatusFailed
	task.Output = &output
	task.ExecutionTimeMs = &executionTimeMs
	return nil
}

func (f *fakeTaskRepo) ListRecentByRole(_ context.Context, _ uuid.UUID, _ time.Time, _ int) ([]*models.Task, error) {
	return nil, nil
}

type fakeRouter struct {
	mu       sync.Mutex
	calls    int
	response string
	err      error
}

func (f *fakeRouter) ChatForRole(_ context.Context, _ uuid.UUID, _ uuid.UUID, messages []providers.Message, _ *providers.ChatOptions) (*router.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &router.Result{Response: f.response, TotalTokens: 1200, CostCents: 2}, nil
}

func setup(t *testing.T) (*Service, *fakeTaskRepo, *fakeRouter, uuid.UUID, *models.Task) {
	t.Helper()

	orgID := uuid.New()
	roleID := uuid.New()
	repo := newFakeTaskRepo()
	fr := &fakeRouter{response: "Task done."}
	service := NewService(repo, fr, zap.NewNop())

	task := models.NewTask(orgID, &roleID, "Write release notes", "Summarize the sprint")
	require.NoError(t, repo.Create(context.Background(), task))

	return service, repo, fr, orgID, task
}

func TestService_Execute(t *testing.T) {
	t.Run("completes a pending task", func(t *testing.T) {
		service, _, _, orgID, task := setup(t)

		got, err := service.Execute(context.Background(), orgID, task.ID)

		require.NoError(t, err)
		assert.Equal(t, models.TaskStatusCompleted, got.Status)
		require.NotNil(t, got.Output)
		assert.Equal(t, "Task done.", *got.Output)
		require.NotNil(t, got.TokenCount)
		assert.Equal(t, int64(1200), *got.TokenCount)
		require.NotNil(t, got.CostCents)
		assert.Equal(t, int64(2), *got.CostCents)
		require.NotNil(t, got.ExecutionTimeMs)
	})

	t.Run("provider failure marks the task failed", func(t *testing.T) {
		service, repo, fr, orgID, task := setup(t)
		fr.err = services.ErrProviderCall

		_, err := service.Execute(context.Background(), orgID, task.ID)

		require.Error(t, err)
		assert.True(t, services.IsProviderError(err))

		stored, getErr := repo.GetByID(context.Background(), task.ID)
		require.NoError(t, getErr)
		assert.Equal(t, models.TaskStatusFailed, stored.Status)
		require.NotNil(t, stored.Output)
		assert.Contains(t, *stored.Output, "Error:")
	})

	t.Run("failed task can be retried", func(t *testing.T) {
		service, _, fr, orgID, task := setup(t)

		fr.err = services.ErrProviderCall
		_, err := service.Execute(context.Background(), orgID, task.ID)
		require.Error(t, err)

		fr.err = nil
		got, err := service.Execute(context.Background(), orgID, task.ID)
		require.NoError(t, err)
		assert.Equal(t, models.TaskStatusCompleted, got.Status)
	})

	t.Run("completed task cannot be re-executed", func(t *testing.T) {
		service, _, _, orgID, task := setup(t)

		_, err := service.Execute(context.Background(), orgID, task.ID)
		require.NoError(t, err)

		_, err = service.Execute(context.Background(), orgID, task.ID)
		require.Error(t, err)
		assert.True(t, services.IsConflictError(err))
	})

	t.Run("concurrent executes claim exactly once", func(t *testing.T) {
		service, _, fr, orgID, task := setup(t)

		const attempts = 8
		var wg sync.WaitGroup
		errs := make([]error, attempts)

		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = service.Execute(context.Background(), orgID, task.ID)
			}(i)
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
			} else {
				assert.True(t, services.IsConflictError(err))
			}
		}
		assert.Equal(t, 1, succeeded)
		assert.Equal(t, 1, fr.calls)
	})

	t.Run("task without role", func(t *testing.T) {
		service, repo, _, orgID, _ := setup(t)
		task := models.NewTask(orgID, nil, "Orphan task", "input")
		require.NoError(t, repo.Create(context.Background(), task))

		_, err := service.Execute(context.Background(), orgID, task.ID)

		require.Error(t, err)
		assert.True(t, services.IsValidationError(err))
	})

	t.Run("unknown task", func(t *testing.T) {
		service, _, _, orgID, _ := setup(t)

		_, err := service.Execute(context.Background(), orgID, uuid.New())

		require.Error(t, err)
		assert.ErrorIs(t, err, services.ErrTaskNotFound)
	})

	t.Run("task of another org is not found", func(t *testing.T) {
		service, _, _, _, task := setup(t)

		_, err := service.Execute(context.Background(), uuid.New(), task.ID)

		require.Error(t, err)
		assert.ErrorIs(t, err, services.ErrTaskNotFound)
	})
}

func TestService_Create(t *testing.T) {
	service, repo, _, orgID, _ := setup(t)
	roleID := uuid.New()

	t.Run("creates a pending task", func(t *testing.T) {
		task, err := service.Create(context.Background(), orgID, &roleID, "New task", "Do something")

		require.NoError(t, err)
		assert.Equal(t, models.TaskStatusPending, task.Status)

		stored, err := repo.GetByID(context.Background(), task.ID)
		require.NoError(t, err)
		assert.Equal(t, "New task", stored.Title)
	})

	t.Run("empty title rejected", func(t *testing.T) {
		_, err := service.Create(context.Background(), orgID, &roleID, "", "input")

		require.Error(t, err)
		assert.True(t, services.IsValidationError(err))
	})
}
