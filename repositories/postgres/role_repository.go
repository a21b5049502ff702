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

// RoleRepository implements the repositories.RoleRepository interface
type RoleRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewRoleRepository creates a new role repository
func NewRoleRepository(db *DB, logger *zap.Logger) repositories.RoleRepository {
	return &RoleRepository{
		db:     db,
		logger: logger,
	}
}

const roleWithAssignmentColumns = `
	r.id, r.org_id, r.name, r.description, r.persona, r.kind, r.is_active,
	r.created_at, r.updated_at,
	a.id, a.role_id,
	c.id, c.org_id, c.provider, c.model_id, c.display_name
`

// scanRoleWithAssignment scans one joined row. The assignment columns
// are NULL when the role has no model binding.
func scanRoleWithAssignment(row interface{ Scan(...interface{}) error }) (*models.Role, error) {
	role := &models.Role{}

	var (
		assignmentID sql.NullString
		assignRoleID sql.NullString
		configID     sql.NullString
		configOrgID  sql.NullString
		provider     sql.NullString
		modelID      sql.NullString
		displayName  sql.NullString
	)

	err := row.Scan(
		&role.ID,
		&role.OrgID,
		&role.Name,
		&role.Description,
		&role.Persona,
		&role.Kind,
		&role.IsActive,
		&role.CreatedAt,
		&role.UpdatedAt,
		&assignmentID,
		&assignRoleID,
		&configID,
		&configOrgID,
		&provider,
		&modelID,
		&displayName,
	)
	if err != nil {
		return nil, err
	}

	if assignmentID.Valid && configID.Valid {
		aid, err := uuid.Parse(assignmentID.String)
		if err != nil {
			return nil, fmt.Errorf("invalid assignment id: %w", err)
		}
		cid, err := uuid.Parse(configID.String)
		if err != nil {
			return nil, fmt.Errorf("invalid model config id: %w", err)
		}

		config := models.ModelConfig{
			ID:          cid,
			Provider:    provider.String,
			ModelID:     modelID.String,
			DisplayName: displayName.String,
		}
		if configOrgID.Valid {
			oid, err := uuid.Parse(configOrgID.String)
			if err != nil {
				return nil, fmt.Errorf("invalid model config org id: %w", err)
			}
			config.OrgID = &oid
		}

		role.Assignment = &models.ModelAssignment{
			ID:     aid,
			RoleID: role.ID,
			Config: config,
		}
	}

	return role, nil
}

// GetWithAssignment retrieves a role with its model assignment (if any)
func (r *RoleRepository) GetWithAssignment(ctx context.Context, id uuid.UUID) (*models.Role, error) {
	query := `
		SELECT ` + roleWithAssignmentColumns + `
		FROM org_roles r
		LEFT JOIN model_assignments a ON a.role_id = r.id
		LEFT JOIN model_configs c ON c.id = a.model_config_id
		WHERE r.id = $1
	`

	role, err := scanRoleWithAssignment(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("role %s: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get role: %w", err)
	}

	return role, nil
}

// ListActiveAssigned retrieves all active roles of an organization that
// have a model assignment
func (r *RoleRepository) ListActiveAssigned(ctx context.Context, orgID uuid.UUID) ([]*models.Role, error) {
	query := `
		SELECT ` + roleWithAssignmentColumns + `
		FROM org_roles r
		INNER JOIN model_assignments a ON a.role_id = r.id
		INNER JOIN model_configs c ON c.id = a.model_config_id
		WHERE r.org_id = $1 AND r.is_active = true
		ORDER BY r.created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []*models.Role
	for rows.Next() {
		role, err := scanRoleWithAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating role rows: %w", err)
	}

	return roles, nil
}
