package models

import (
	"time"

	"github.com/google/uuid"
)

// RoleKind distinguishes the org's coordinating role from the rest.
type RoleKind string

const (
	RoleKindSpecialist   RoleKind = "specialist"
	RoleKindOrchestrator RoleKind = "orchestrator"
)

// Role represents an addressable AI persona within an organization.
// Roles are created and edited by the org-chart surface; this service
// reads them to route chat traffic.
type Role struct {
	ID          uuid.UUID        `json:"id" db:"id"`
	OrgID       uuid.UUID        `json:"org_id" db:"org_id"`
	Name        string           `json:"name" db:"name"`
	Description string           `json:"description" db:"description"`
	Persona     string           `json:"persona" db:"persona"`
	Kind        RoleKind         `json:"kind" db:"kind"`
	IsActive    bool             `json:"is_active" db:"is_active"`
	Assignment  *ModelAssignment `json:"model_assignment,omitempty" db:"-"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the Role model
func (Role) TableName() string {
	return "org_roles"
}

// HasModel reports whether the role has an active model assignment.
func (r *Role) HasModel() bool {
	return r.Assignment != nil
}

// ModelAssignment binds a role to a model configuration.
// At most one active assignment exists per role.
type ModelAssignment struct {
	ID     uuid.UUID   `json:"id" db:"id"`
	RoleID uuid.UUID   `json:"role_id" db:"role_id"`
	Config ModelConfig `json:"model_config" db:"-"`
}

// TableName returns the table name for the ModelAssignment model
func (ModelAssignment) TableName() string {
	return "model_assignments"
}

// ModelConfig identifies a concrete model at a provider. A nil OrgID
// marks a global config available to every organization.
type ModelConfig struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	OrgID       *uuid.UUID `json:"org_id,omitempty" db:"org_id"`
	Provider    string     `json:"provider" db:"provider"`
	ModelID     string     `json:"model_id" db:"model_id"`
	DisplayName string     `json:"display_name" db:"display_name"`
}

// TableName returns the table name for the ModelConfig model
func (ModelConfig) TableName() string {
	return "model_configs"
}
