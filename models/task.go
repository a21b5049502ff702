package models

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the execution state of an agent task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// Task is a unit of work assigned to a role. Status transitions are
// monotone: pending -> running -> completed|failed. A failed task may
// be re-claimed back to running on retry; a completed task never is.
type Task struct {
	ID              uuid.UUID  `json:"id" db:"id"`
	OrgID           uuid.UUID  `json:"org_id" db:"org_id"`
	RoleID          *uuid.UUID `json:"role_id,omitempty" db:"role_id"`
	Title           string     `json:"title" db:"title"`
	Input           string     `json:"input" db:"input"`
	Status          TaskStatus `json:"status" db:"status"`
	Output          *string    `json:"output,omitempty" db:"output"`
	ExecutionTimeMs *int64     `json:"execution_time_ms,omitempty" db:"execution_time_ms"`
	TokenCount      *int64     `json:"token_count,omitempty" db:"token_count"`
	CostCents       *int64     `json:"cost_cents,omitempty" db:"cost_cents"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the Task model
func (Task) TableName() string {
	return "agent_tasks"
}

// NewTask creates a pending task for an organization. roleID may be nil
// when no role could be resolved for the work item.
func NewTask(orgID uuid.UUID, roleID *uuid.UUID, title, input string) *Task {
	now := time.Now()
	return &Task{
		ID:        uuid.New(),
		OrgID:     orgID,
		RoleID:    roleID,
		Title:     title,
		Input:     input,
		Status:    TaskStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// CanTransitionTo reports whether the status transition is legal.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	switch s {
	case TaskStatusPending:
		return next == TaskStatusRunning
	case TaskStatusRunning:
		return next == TaskStatusCompleted || next == TaskStatusFailed
	case TaskStatusFailed:
		// Retry path.
		return next == TaskStatusRunning
	case TaskStatusCompleted:
		return false
	default:
		return false
	}
}

// IsTerminal reports whether the status ends an execution attempt.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}
