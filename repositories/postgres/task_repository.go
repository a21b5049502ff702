package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/orgforge/agentplane/models"
	"github.com/orgforge/agentplane/repositories"
	"go.uber.org/zap"
)

// TaskRepository implements the repositories.TaskRepository interface
type TaskRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewTaskRepository creates a new task repository
func NewTaskRepository(db *DB, logger *zap.Logger) repositories.TaskRepository {
	return &TaskRepository{
		db:     db,
		logger: logger,
	}
}

const taskColumns = `
	id, org_id, role_id, title, input, status, output,
	execution_time_ms, token_count, cost_cents, created_at, updated_at
`

func scanTask(row interface{ Scan(...interface{}) error }) (*models.Task, error) {
	task := &models.Task{}

	var (
		roleID          sql.NullString
		output          sql.NullString
		executionTimeMs sql.NullInt64
		tokenCount      sql.NullInt64
		costCents       sql.NullInt64
	)

	err := row.Scan(
		&task.ID,
		&task.OrgID,
		&roleID,
		&task.Title,
		&task.Input,
		&task.Status,
		&output,
		&executionTimeMs,
		&tokenCount,
		&costCents,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if roleID.Valid {
		rid, err := uuid.Parse(roleID.String)
		if err != nil {
			return nil, fmt.Errorf("invalid role id: %w", err)
		}
		task.RoleID = &rid
	}
	if output.Valid {
		task.Output = &output.String
	}
	if executionTimeMs.Valid {
		task.ExecutionTimeMs = &executionTimeMs.Int64
	}
	if tokenCount.Valid {
		task.TokenCount = &tokenCount.Int64
	}
	if costCents.Valid {
		task.CostCents = &costCents.Int64
	}

	return task, nil
}

// Create persists a new task
func (r *TaskRepository) Create(ctx context.Context, task *models.Task) error {
	query := `
		INSERT INTO agent_tasks (id, org_id, role_id, title, input, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		task.ID,
		task.OrgID,
		task.RoleID,
		task.Title,
		task.Input,
		task.Status,
		task.CreatedAt,
		task.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	r.logger.Debug("task created",
		zap.String("id", task.ID.String()),
		zap.String("title", task.Title))
	return nil
}

// GetByID retrieves a task by ID
func (r *TaskRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM agent_tasks
		WHERE id = $1
	`

	task, err := scanTask(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("task %s: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	return task, nil
}

// Claim transitions a task to running unless it is already running or
// completed. The conditional UPDATE makes concurrent claims race-free:
// exactly one caller sees an affected row.
func (r *TaskRepository) Claim(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE agent_tasks
		SET status = 'running',
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND status NOT IN ('running', 'completed')
	`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to claim task: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	claimed := rowsAffected == 1
	if claimed {
		r.logger.Debug("task claimed", zap.String("id", id.String()))
	}
	return claimed, nil
}

// MarkCompleted records a successful execution
func (r *TaskRepository) MarkCompleted(ctx context.Context, id uuid.UUID, output string, executionTimeMs, tokenCount, costCents int64) error {
	query := `
		UPDATE agent_tasks
		SET status = 'completed',
		    output = $2,
		    execution_time_ms = $3,
		    token_count = $4,
		    cost_cents = $5,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, output, executionTimeMs, tokenCount, costCents)
	if err != nil {
		return fmt.Errorf("failed to mark task completed: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("task %s: %w", id, repositories.ErrNotFound)
	}

	return nil
}

// MarkFailed records a failed execution
func (r *TaskRepository) MarkFailed(ctx context.Context, id uuid.UUID, output string, executionTimeMs int64) error {
	query := `
		UPDATE agent_tasks
		SET status = 'failed',
		    output = $2,
		    execution_time_ms = $3,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, output, executionTimeMs)
	if err != nil {
		return fmt.Errorf("failed to mark task failed: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("task %s: %w", id, repositories.ErrNotFound)
	}

	return nil
}

// ListRecentByRole retrieves up to limit tasks of a role created after
// since, newest first
func (r *TaskRepository) ListRecentByRole(ctx context.Context, roleID uuid.UUID, since time.Time, limit int) ([]*models.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM agent_tasks
		WHERE role_id = $1 AND created_at >= $2
		ORDER BY created_at DESC
		LIMIT $3
	`

	rows, err := r.db.QueryContext(ctx, query, roleID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}

	return tasks, nil
}
