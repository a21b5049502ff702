package models

import (
	"time"

	"github.com/google/uuid"
)

// Subscription holds an organization's plan and quota state.
// CurrentTokenUsage is monotonically non-decreasing between resets; a
// reset zeroes it and advances QuotaResetDate by one month from the
// reset instant.
type Subscription struct {
	ID                uuid.UUID  `json:"id" db:"id"`
	OrgID             uuid.UUID  `json:"org_id" db:"org_id"`
	Plan              PlanTier   `json:"plan" db:"plan"`
	CurrentTokenUsage int64      `json:"current_token_usage" db:"current_token_usage"`
	TokenQuotaMonthly int64      `json:"token_quota_monthly" db:"token_quota_monthly"`
	QuotaResetDate    *time.Time `json:"quota_reset_date,omitempty" db:"quota_reset_date"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the Subscription model
func (Subscription) TableName() string {
	return "org_subscriptions"
}

// MonthlyQuota returns the effective monthly token quota: the
// subscription override when set, otherwise the plan default.
func (s *Subscription) MonthlyQuota() int64 {
	if s.TokenQuotaMonthly > 0 {
		return s.TokenQuotaMonthly
	}
	return GetPlanFeatures(s.Plan).TokenQuotaMonthly
}

// IsQuotaExceeded reports whether usage has reached the monthly quota.
// The boundary is inclusive.
func (s *Subscription) IsQuotaExceeded() bool {
	return s.CurrentTokenUsage >= s.MonthlyQuota()
}

// IsResetDue reports whether the quota reset date has passed.
func (s *Subscription) IsResetDue(now time.Time) bool {
	return s.QuotaResetDate != nil && !now.Before(*s.QuotaResetDate)
}
