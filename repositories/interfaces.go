package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/orgforge/agentplane/models"
)

// OrganizationRepository handles organization lookups
type OrganizationRepository interface {
	// GetByID retrieves an organization by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.Organization, error)
}

// RoleRepository handles role and model-assignment lookups.
// Roles are written by the org-chart surface; this service only reads.
type RoleRepository interface {
	// GetWithAssignment retrieves a role with its model assignment (if any)
	GetWithAssignment(ctx context.Context, id uuid.UUID) (*models.Role, error)

	// ListActiveAssigned retrieves all active roles of an organization
	// that have a model assignment
	ListActiveAssigned(ctx context.Context, orgID uuid.UUID) ([]*models.Role, error)
}

// ModelConfigRepository handles model configuration lookups
type ModelConfigRepository interface {
	// FindForOrg retrieves the model config for a model ID, preferring
	// an org-scoped config over a global one
	FindForOrg(ctx context.Context, orgID uuid.UUID, modelID string) (*models.ModelConfig, error)
}

// SubscriptionRepository handles tenant quota state.
// IncrementUsage must be a single atomic statement at the storage
// layer; concurrent chat calls from roles of the same org depend on it.
type SubscriptionRepository interface {
	// GetByOrgID retrieves the subscription for an organization
	GetByOrgID(ctx context.Context, orgID uuid.UUID) (*models.Subscription, error)

	// IncrementUsage atomically adds tokens to the org's current usage
	IncrementUsage(ctx context.Context, orgID uuid.UUID, tokens int64) error

	// ResetUsage zeroes current usage and sets the next reset date
	ResetUsage(ctx context.Context, orgID uuid.UUID, nextReset time.Time) error

	// InitializeQuota sets the quota fields for a new subscription
	InitializeQuota(ctx context.Context, orgID uuid.UUID, quota int64, resetDate time.Time) error

	// ListDue retrieves all subscriptions whose reset date has passed
	ListDue(ctx context.Context, now time.Time) ([]*models.Subscription, error)

	// ListAll retrieves all subscriptions
	ListAll(ctx context.Context) ([]*models.Subscription, error)
}

// TaskRepository handles agent task persistence.
// Claim must be a single atomic conditional update; concurrent execute
// requests on the same task depend on exactly one winning.
type TaskRepository interface {
	// Create persists a new task
	Create(ctx context.Context, task *models.Task) error

	// GetByID retrieves a task by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error)

	// Claim transitions a task to running unless it is already running
	// or completed. Returns true when this caller won the claim.
	Claim(ctx context.Context, id uuid.UUID) (bool, error)

	// MarkCompleted records a successful execution
	MarkCompleted(ctx context.Context, id uuid.UUID, output string, executionTimeMs, tokenCount, costCents int64) error

	// MarkFailed records a failed execution
	MarkFailed(ctx context.Context, id uuid.UUID, output string, executionTimeMs int64) error

	// ListRecentByRole retrieves up to limit tasks of a role created
	// after since, newest first
	ListRecentByRole(ctx context.Context, roleID uuid.UUID, since time.Time, limit int) ([]*models.Task, error)
}

// UsageFilter narrows usage ledger queries
type UsageFilter struct {
	StartDate *time.Time
	EndDate   *time.Time
	RoleID    *uuid.UUID
}

// UsageRepository handles the append-only token usage ledger
type UsageRepository interface {
	// Insert appends a ledger entry
	Insert(ctx context.Context, record *models.UsageRecord) error

	// ListByOrg retrieves ledger entries for an organization, newest first
	ListByOrg(ctx context.Context, orgID uuid.UUID, filter UsageFilter) ([]*models.UsageRecord, error)
}

// Repositories bundles all repository instances for dependency injection
type Repositories struct {
	Organizations OrganizationRepository
	Roles         RoleRepository
	ModelConfigs  ModelConfigRepository
	Subscriptions SubscriptionRepository
	Tasks         TaskRepository
	Usage         UsageRepository
}
