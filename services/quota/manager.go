package quota

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/orgforge/agentplane/models"
	"github.com/orgforge/agentplane/repositories"
	"github.com/orgforge/agentplane/services"
	"go.uber.org/zap"
)

// Status is the externally visible quota state of an organization.
type Status struct {
	OrgID           uuid.UUID       `json:"org_id"`
	Plan            models.PlanTier `json:"plan"`
	CurrentUsage    int64           `json:"current_usage"`
	MonthlyQuota    int64           `json:"monthly_quota"`
	Remaining       int64           `json:"remaining"`
	UsagePercentage float64         `json:"usage_percentage"`
	IsExceeded      bool            `json:"is_exceeded"`
	ResetDate       *time.Time      `json:"reset_date,omitempty"`
}

// Manager enforces monthly token quotas per organization.
//
// Enforcement is a pre-call gate: a call that starts under quota may
// finish over it, so usage can overshoot by at most one completion. The
// overshoot is counted and the next call is rejected.
type Manager struct {
	subscriptions repositories.SubscriptionRepository
	logger        *zap.Logger
	now           func() time.Time
}

// NewManager creates a new quota manager
func NewManager(subscriptions repositories.SubscriptionRepository, logger *zap.Logger) *Manager {
	return &Manager{
		subscriptions: subscriptions,
		logger:        logger,
		now:           time.Now,
	}
}

// CheckAndResetIfNeeded loads the org's subscription, performing a lazy
// quota reset when the reset date has passed. Returns the subscription
// in its post-reset state. An org with no subscription row is served on
// the free tier: plan-default quota, zero usage, no reset cycle.
func (m *Manager) CheckAndResetIfNeeded(ctx context.Context, orgID uuid.UUID) (*models.Subscription, error) {
	sub, err := m.subscriptions.GetByOrgID(ctx, orgID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return freeTierDefault(orgID), nil
		}
		return nil, services.WrapInternal("failed to load subscription", err)
	}

	if !sub.IsResetDue(m.now()) {
		return sub, nil
	}

	if err := m.ResetQuota(ctx, orgID); err != nil {
		return nil, err
	}

	sub, err = m.subscriptions.GetByOrgID(ctx, orgID)
	if err != nil {
		return nil, services.WrapInternal("failed to reload subscription after reset", err)
	}
	return sub, nil
}

// freeTierDefault is the subscription state assumed for an org with no
// stored subscription row: free plan, zero usage, nil reset date.
// MonthlyQuota falls through to the free-tier default.
func freeTierDefault(orgID uuid.UUID) *models.Subscription {
	return &models.Subscription{
		OrgID: orgID,
		Plan:  models.PlanFree,
	}
}

// ResetQuota zeroes the org's usage and schedules the next reset one
// month from now. The next window is anchored to the reset instant, not
// to the previous reset date, so a long-idle org does not burn through
// several windows at once.
func (m *Manager) ResetQuota(ctx context.Context, orgID uuid.UUID) error {
	nextReset := m.now().AddDate(0, 1, 0)

	if err := m.subscriptions.ResetUsage(ctx, orgID, nextReset); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return services.ErrSubscriptionNotFound
		}
		return services.WrapInternal("failed to reset quota", err)
	}

	m.logger.Info("quota reset",
		zap.String("org_id", orgID.String()),
		zap.Time("next_reset", nextReset))
	return nil
}

// RecordUsage atomically adds tokens to the org's running usage total.
// Called after every completed provider call, including ones that push
// usage past the quota.
func (m *Manager) RecordUsage(ctx context.Context, orgID uuid.UUID, tokens int64) error {
	if tokens <= 0 {
		return nil
	}

	if err := m.subscriptions.IncrementUsage(ctx, orgID, tokens); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return services.ErrSubscriptionNotFound
		}
		return services.WrapInternal("failed to record usage", err)
	}
	return nil
}

// GetQuotaStatus returns the current quota state of an organization,
// applying a lazy reset first.
func (m *Manager) GetQuotaStatus(ctx context.Context, orgID uuid.UUID) (*Status, error) {
	sub, err := m.CheckAndResetIfNeeded(ctx, orgID)
	if err != nil {
		return nil, err
	}

	return m.statusFor(sub), nil
}

func (m *Manager) statusFor(sub *models.Subscription) *Status {
	quota := sub.MonthlyQuota()

	remaining := quota - sub.CurrentTokenUsage
	if remaining < 0 {
		remaining = 0
	}

	// Percentage is deliberately not capped: an overshooting org
	// reports >100% so callers can see by how much.
	percentage := float64(0)
	if quota > 0 {
		percentage = float64(sub.CurrentTokenUsage) / float64(quota) * 100
	}

	return &Status{
		OrgID:           sub.OrgID,
		Plan:            sub.Plan,
		CurrentUsage:    sub.CurrentTokenUsage,
		MonthlyQuota:    quota,
		Remaining:       remaining,
		UsagePercentage: percentage,
		IsExceeded:      sub.IsQuotaExceeded(),
		ResetDate:       sub.QuotaResetDate,
	}
}

// InitializeQuota sets up quota state for a subscription that has none,
// using the plan's default quota and a reset date one month out.
func (m *Manager) InitializeQuota(ctx context.Context, orgID uuid.UUID, plan models.PlanTier) error {
	quota := models.GetPlanFeatures(plan).TokenQuotaMonthly
	resetDate := m.now().AddDate(0, 1, 0)

	if err := m.subscriptions.InitializeQuota(ctx, orgID, quota, resetDate); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return services.ErrSubscriptionNotFound
		}
		return services.WrapInternal("failed to initialize quota", err)
	}

	m.logger.Info("quota initialized",
		zap.String("org_id", orgID.String()),
		zap.String("plan", string(plan)),
		zap.Int64("quota", quota))
	return nil
}

// ResetAllDueQuotas resets every subscription whose reset date has
// passed. Failures are logged and skipped so one bad row does not block
// the rest of the sweep. Returns the number of successful resets.
func (m *Manager) ResetAllDueQuotas(ctx context.Context) (int, error) {
	due, err := m.subscriptions.ListDue(ctx, m.now())
	if err != nil {
		return 0, services.WrapInternal("failed to list due subscriptions", err)
	}

	reset := 0
	for _, sub := range due {
		if err := m.ResetQuota(ctx, sub.OrgID); err != nil {
			m.logger.Error("failed to reset quota during sweep",
				zap.String("org_id", sub.OrgID.String()),
				zap.Error(err))
			continue
		}
		reset++
	}

	m.logger.Info("quota sweep finished",
		zap.Int("due", len(due)),
		zap.Int("reset", reset))
	return reset, nil
}

// OrganizationsApproachingLimit returns the quota status of every org
// whose usage is at or above the threshold percentage but not yet
// exceeded. Used to drive warning notifications.
func (m *Manager) OrganizationsApproachingLimit(ctx context.Context, threshold float64) ([]*Status, error) {
	subs, err := m.subscriptions.ListAll(ctx)
	if err != nil {
		return nil, services.WrapInternal("failed to list subscriptions", err)
	}

	var approaching []*Status
	for _, sub := range subs {
		status := m.statusFor(sub)
		if status.UsagePercentage >= threshold && !status.IsExceeded {
			approaching = append(approaching, status)
		}
	}

	return approaching, nil
}
