package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/orgforge/agentplane/models"
	"github.com/orgforge/agentplane/repositories"
	"go.uber.org/zap"
)

// ModelConfigRepository implements the repositories.ModelConfigRepository interface
type ModelConfigRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewModelConfigRepository creates a new model config repository
func NewModelConfigRepository(db *DB, logger *zap.Logger) repositories.ModelConfigRepository {
	return &ModelConfigRepository{
		db:     db,
		logger: logger,
	}
}

// FindForOrg retrieves the model config for a model ID. Org-scoped
// configs shadow global ones with the same model ID.
func (r *ModelConfigRepository) FindForOrg(ctx context.Context, orgID uuid.UUID, modelID string) (*models.ModelConfig, error) {
	query := `
		SELECT id, org_id, provider, model_id, display_name
		FROM model_configs
		WHERE model_id = $2 AND (org_id = $1 OR org_id IS NULL)
		ORDER BY org_id NULLS LAST
		LIMIT 1
	`

	config := &models.ModelConfig{}
	var configOrgID sql.NullString

	err := r.db.QueryRowContext(ctx, query, orgID, modelID).Scan(
		&config.ID,
		&configOrgID,
		&config.Provider,
		&config.ModelID,
		&config.DisplayName,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("model config %s: %w", modelID, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find model config: %w", err)
	}

	if configOrgID.Valid {
		oid, err := uuid.Parse(configOrgID.String)
		if err != nil {
			return nil, fmt.Errorf("invalid model config org id: %w", err)
		}
		config.OrgID = &oid
	}

	return config, nil
}
