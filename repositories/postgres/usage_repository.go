package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/orgforge/agentplane/models"
	"github.com/orgforge/agentplane/repositories"
	"go.uber.org/zap"
)

// UsageRepository implements the repositories.UsageRepository interface
type UsageRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewUsageRepository creates a new usage repository
func NewUsageRepository(db *DB, logger *zap.Logger) repositories.UsageRepository {
	return &UsageRepository{
		db:     db,
		logger: logger,
	}
}

// Insert appends a ledger entry
func (r *UsageRepository) Insert(ctx context.Context, record *models.UsageRecord) error {
	query := `
		INSERT INTO token_usage (
			id, org_id, role_id, model_config_id, provider, model_id,
			input_tokens, output_tokens, total_tokens, cost_cents, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.ExecContext(ctx, query,
		record.ID,
		record.OrgID,
		record.RoleID,
		record.ModelConfigID,
		record.Provider,
		record.ModelID,
		record.InputTokens,
		record.OutputTokens,
		record.TotalTokens,
		record.CostCents,
		record.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to insert usage record: %w", err)
	}

	r.logger.Debug("usage recorded",
		zap.String("org_id", record.OrgID.String()),
		zap.String("model_id", record.ModelID),
		zap.Int64("total_tokens", record.TotalTokens),
		zap.Int64("cost_cents", record.CostCents))
	return nil
}

// ListByOrg retrieves ledger entries for an organization, newest first
func (r *UsageRepository) ListByOrg(ctx context.Context, orgID uuid.UUID, filter repositories.UsageFilter) ([]*models.UsageRecord, error) {
	query := `
		SELECT id, org_id, role_id, model_config_id, provider, model_id,
		       input_tokens, output_tokens, total_tokens, cost_cents, created_at
		FROM token_usage
		WHERE org_id = $1
	`
	args := []interface{}{orgID}

	if filter.StartDate != nil {
		args = append(args, *filter.StartDate)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if filter.EndDate != nil {
		args = append(args, *filter.EndDate)
		query += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}
	if filter.RoleID != nil {
		args = append(args, *filter.RoleID)
		query += fmt.Sprintf(" AND role_id = $%d", len(args))
	}

	query += " ORDER BY created_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage records: %w", err)
	}
	defer rows.Close()

	var records []*models.UsageRecord
	for rows.Next() {
		record := &models.UsageRecord{}
		var roleID, modelConfigID sql.NullString

		err := rows.Scan(
			&record.ID,
			&record.OrgID,
			&roleID,
			&modelConfigID,
			&record.Provider,
			&record.ModelID,
			&record.InputTokens,
			&record.OutputTokens,
			&record.TotalTokens,
			&record.CostCents,
			&record.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan usage record: %w", err)
		}

		if roleID.Valid {
			rid, err := uuid.Parse(roleID.String)
			if err != nil {
				return nil, fmt.Errorf("invalid role id: %w", err)
			}
			record.RoleID = &rid
		}
		if modelConfigID.Valid {
			mid, err := uuid.Parse(modelConfigID.String)
			if err != nil {
				return nil, fmt.Errorf("invalid model config id: %w", err)
			}
			record.ModelConfigID = &mid
		}

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating usage rows: %w", err)
	}

	return records, nil
}
