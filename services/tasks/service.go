package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/orgforge/agentplane/models"
	"github.com/orgforge/agentplane/repositories"
	"github.com/orgforge/agentplane/services"
	"github.com/orgforge/agentplane/services/providers"
	"github.com/orgforge/agentplane/services/router"
	"go.uber.org/zap"
)

// RoleChatter is the slice of the router the task executor needs.
type RoleChatter interface {
	ChatForRole(ctx context.Context, orgID, roleID uuid.UUID, messages []providers.Message, opts *providers.ChatOptions) (*router.Result, error)
}

// Service executes agent tasks against their assigned role's model.
//
// Execution starts with an atomic claim: a conditional update that
// moves the task to running only if it is not already running or
// completed. Under concurrent execute requests exactly one caller wins
// the claim, so a task is never billed or run twice. A failed task can
// be claimed again for retry.
type Service struct {
	tasks  repositories.TaskRepository
	router RoleChatter
	logger *zap.Logger
}

// NewService creates a new task execution service
func NewService(tasks repositories.TaskRepository, chatRouter RoleChatter, logger *zap.Logger) *Service {
	return &Service{
		tasks:  tasks,
		router: chatRouter,
		logger: logger,
	}
}

// Create persists a new pending task for a role.
func (s *Service) Create(ctx context.Context, orgID uuid.UUID, roleID *uuid.UUID, title, input string) (*models.Task, error) {
	if title == "" {
		return nil, services.ErrInvalidInput.WithDetail("field", "title")
	}

	task := models.NewTask(orgID, roleID, title, input)
	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, services.WrapInternal("failed to create task", err)
	}
	return task, nil
}

// Get returns a task scoped to the organization.
func (s *Service) Get(ctx context.Context, orgID, taskID uuid.UUID) (*models.Task, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrTaskNotFound.WithDetail("task_id", taskID.String())
		}
		return nil, services.WrapInternal("failed to load task", err)
	}
	if task.OrgID != orgID {
		return nil, services.ErrTaskNotFound.WithDetail("task_id", taskID.String())
	}
	return task, nil
}

// Execute claims the task, runs it through the role's model, and
// records the outcome. The returned task carries the final status,
// output, and accounting fields.
func (s *Service) Execute(ctx context.Context, orgID, taskID uuid.UUID) (*models.Task, error) {
	task, err := s.Get(ctx, orgID, taskID)
	if err != nil {
		return nil, err
	}

	if task.RoleID == nil {
		return nil, services.ErrTaskWithoutRole.WithDetail("task_id", taskID.String())
	}

	claimed, err := s.tasks.Claim(ctx, taskID)
	if err != nil {
		return nil, services.WrapInternal("failed to claim task", err)
	}
	if !claimed {
		return nil, services.ErrTaskAlreadyRunning.WithDetail("task_id", taskID.String())
	}

	s.logger.Info("task execution started",
		zap.String("task_id", taskID.String()),
		zap.String("org_id", orgID.String()))

	start := time.Now()
	result, err := s.router.ChatForRole(ctx, orgID, *task.RoleID,
		[]providers.Message{{Role: providers.RoleUser, Content: buildTaskPrompt(task)}}, nil)
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		output := fmt.Sprintf("Error: %v", err)
		if markErr := s.tasks.MarkFailed(ctx, taskID, output, elapsed); markErr != nil {
			s.logger.Error("failed to mark task failed",
				zap.String("task_id", taskID.String()),
				zap.Error(markErr))
		}
		return nil, err
	}

	if err := s.tasks.MarkCompleted(ctx, taskID, result.Response, elapsed, result.TotalTokens, result.CostCents); err != nil {
		return nil, services.WrapInternal("failed to record task completion", err)
	}

	s.logger.Info("task execution finished",
		zap.String("task_id", taskID.String()),
		zap.Int64("execution_time_ms", elapsed),
		zap.Int64("total_tokens", result.TotalTokens),
		zap.Int64("cost_cents", result.CostCents))

	task, err = s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, services.WrapInternal("failed to reload task", err)
	}
	return task, nil
}

func buildTaskPrompt(task *models.Task) string {
	return fmt.Sprintf("Execute the following task.\n\nTask: %s\n\n%s", task.Title, task.Input)
}
