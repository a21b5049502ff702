package models

// PlanTier identifies a subscription plan.
type PlanTier string

const (
	PlanFree       PlanTier = "free"
	PlanStarter    PlanTier = "starter"
	PlanPro        PlanTier = "pro"
	PlanEnterprise PlanTier = "enterprise"
)

// FreeTierTokenQuota is the monthly token allowance applied when an
// organization has no subscription record at all.
const FreeTierTokenQuota = 100_000

// PlanFeatures describes the limits attached to a plan tier.
type PlanFeatures struct {
	Tier              PlanTier
	DisplayName       string
	PriceUSDMonthly   int
	MaxRoles          int // -1 means unlimited
	TokenQuotaMonthly int64
}

// planCatalog is the static plan table. Quotas are tokens per month.
var planCatalog = map[PlanTier]PlanFeatures{
	PlanFree: {
		Tier:              PlanFree,
		DisplayName:       "Free",
		PriceUSDMonthly:   0,
		MaxRoles:          3,
		TokenQuotaMonthly: 100_000,
	},
	PlanStarter: {
		Tier:              PlanStarter,
		DisplayName:       "Starter",
		PriceUSDMonthly:   29,
		MaxRoles:          10,
		TokenQuotaMonthly: 1_000_000,
	},
	PlanPro: {
		Tier:              PlanPro,
		DisplayName:       "Pro",
		PriceUSDMonthly:   99,
		MaxRoles:          50,
		TokenQuotaMonthly: 10_000_000,
	},
	PlanEnterprise: {
		Tier:              PlanEnterprise,
		DisplayName:       "Enterprise",
		PriceUSDMonthly:   499,
		MaxRoles:          -1,
		TokenQuotaMonthly: 100_000_000,
	},
}

// GetPlanFeatures returns the features for a tier. Unknown tiers fall
// back to the free plan.
func GetPlanFeatures(tier PlanTier) PlanFeatures {
	if plan, ok := planCatalog[tier]; ok {
		return plan
	}
	return planCatalog[PlanFree]
}

// HasReachedTokenLimit reports whether usage has hit the tier's monthly
// quota. The boundary is inclusive: usage == quota counts as reached.
func HasReachedTokenLimit(currentUsage int64, tier PlanTier) bool {
	return currentUsage >= GetPlanFeatures(tier).TokenQuotaMonthly
}

// HasReachedRoleLimit reports whether the org is at its role cap.
func HasReachedRoleLimit(currentRoleCount int, tier PlanTier) bool {
	plan := GetPlanFeatures(tier)
	if plan.MaxRoles == -1 {
		return false
	}
	return currentRoleCount >= plan.MaxRoles
}

// TokenUsagePercentage returns usage as a percentage of the tier quota,
// capped at 100.
func TokenUsagePercentage(currentUsage int64, tier PlanTier) float64 {
	pct := float64(currentUsage) / float64(GetPlanFeatures(tier).TokenQuotaMonthly) * 100
	if pct > 100 {
		return 100
	}
	return pct
}
