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

// SubscriptionRepository implements the repositories.SubscriptionRepository interface
type SubscriptionRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewSubscriptionRepository creates a new subscription repository
func NewSubscriptionRepository(db *DB, logger *zap.Logger) repositories.SubscriptionRepository {
	return &SubscriptionRepository{
		db:     db,
		logger: logger,
	}
}

const subscriptionColumns = `
	id, org_id, plan, current_token_usage, token_quota_monthly,
	quota_reset_date, created_at, updated_at
`

func scanSubscription(row interface{ Scan(...interface{}) error }) (*models.Subscription, error) {
	sub := &models.Subscription{}
	var resetDate sql.NullTime

	err := row.Scan(
		&sub.ID,
		&sub.OrgID,
		&sub.Plan,
		&sub.CurrentTokenUsage,
		&sub.TokenQuotaMonthly,
		&resetDate,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if resetDate.Valid {
		sub.QuotaResetDate = &resetDate.Time
	}

	return sub, nil
}

// GetByOrgID retrieves the subscription for an organization
func (r *SubscriptionRepository) GetByOrgID(ctx context.Context, orgID uuid.UUID) (*models.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM org_subscriptions
		WHERE org_id = $1
	`

	sub, err := scanSubscription(r.db.QueryRowContext(ctx, query, orgID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("subscription for org %s: %w", orgID, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	return sub, nil
}

// IncrementUsage atomically adds tokens to the org's current usage.
// A single UPDATE keeps concurrent increments lossless without an
// explicit transaction.
func (r *SubscriptionRepository) IncrementUsage(ctx context.Context, orgID uuid.UUID, tokens int64) error {
	query := `
		UPDATE org_subscriptions
		SET current_token_usage = current_token_usage + $2,
		    updated_at = CURRENT_TIMESTAMP
		WHERE org_id = $1
	`

	result, err := r.db.ExecContext(ctx, query, orgID, tokens)
	if err != nil {
		return fmt.Errorf("failed to increment usage: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("subscription for org %s: %w", orgID, repositories.ErrNotFound)
	}

	r.logger.Debug("usage incremented",
		zap.String("org_id", orgID.String()),
		zap.Int64("tokens", tokens))
	return nil
}

// ResetUsage zeroes current usage and sets the next reset date
func (r *SubscriptionRepository) ResetUsage(ctx context.Context, orgID uuid.UUID, nextReset time.Time) error {
	query := `
		UPDATE org_subscriptions
		SET current_token_usage = 0,
		    quota_reset_date = $2,
		    updated_at = CURRENT_TIMESTAMP
		WHERE org_id = $1
	`

	result, err := r.db.ExecContext(ctx, query, orgID, nextReset)
	if err != nil {
		return fmt.Errorf("failed to reset usage: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("subscription for org %s: %w", orgID, repositories.ErrNotFound)
	}

	r.logger.Info("quota reset",
		zap.String("org_id", orgID.String()),
		zap.Time("next_reset", nextReset))
	return nil
}

// InitializeQuota sets the quota fields for a new subscription
func (r *SubscriptionRepository) InitializeQuota(ctx context.Context, orgID uuid.UUID, quota int64, resetDate time.Time) error {
	query := `
		UPDATE org_subscriptions
		SET token_quota_monthly = $2,
		    current_token_usage = 0,
		    quota_reset_date = $3,
		    updated_at = CURRENT_TIMESTAMP
		WHERE org_id = $1
	`

	result, err := r.db.ExecContext(ctx, query, orgID, quota, resetDate)
	if err != nil {
		return fmt.Errorf("failed to initialize quota: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("subscription for org %s: %w", orgID, repositories.ErrNotFound)
	}

	return nil
}

// ListDue retrieves all subscriptions whose reset date has passed
func (r *SubscriptionRepository) ListDue(ctx context.Context, now time.Time) ([]*models.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM org_subscriptions
		WHERE quota_reset_date IS NOT NULL AND quota_reset_date <= $1
		ORDER BY quota_reset_date ASC
	`

	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list due subscriptions: %w", err)
	}
	defer rows.Close()

	return collectSubscriptions(rows)
}

// ListAll retrieves all subscriptions
func (r *SubscriptionRepository) ListAll(ctx context.Context) ([]*models.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM org_subscriptions
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	return collectSubscriptions(rows)
}

func collectSubscriptions(rows *sql.Rows) ([]*models.Subscription, error) {
	var subs []*models.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subscription rows: %w", err)
	}

	return subs, nil
}
