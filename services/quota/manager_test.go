package quota

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/orgforge/agentplane/models"
	"github.com/orgforge/agentplane/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeSubscriptionRepo is an in-memory SubscriptionRepository.
type fakeSubscriptionRepo struct {
	subs      map[uuid.UUID]*models.Subscription
	failReset map[uuid.UUID]bool
}

func newFakeSubscriptionRepo() *fakeSubscriptionRepo {
	return &fakeSubscriptionRepo{
		subs:      make(map[uuid.UUID]*models.Subscription),
		failReset: make(map[uuid.UUID]bool),
	}
}

func (f *fakeSubscriptionRepo) add(sub *models.Subscription) {
	f.subs[sub.OrgID] = sub
}

func (f *fakeSubscriptionRepo) GetByOrgID(_ context.Context, orgID uuid.UUID) (*models.Subscription, error) {
	sub, ok := f.subs[orgID]
	if !ok {
		return nil, fmt.Errorf("subscription for org %s: %w", orgID, repositories.ErrNotFound)
	}
	copied := *sub
	return &copied, nil
}

func (f *fakeSubscriptionRepo) IncrementUsage(_ context.Context, orgID uuid.UUID, tokens int64) error {
	sub, ok := f.subs[orgID]
	if !ok {
		return repositories.ErrNotFound
	}
	sub.CurrentTokenUsage += tokens
	return nil
}

func (f *fakeSubscriptionRepo) ResetUsage(_ context.Context, orgID uuid.UUID, nextReset time.Time) error {
	if f.failReset[orgID] {
		return fmt.Errorf("simulated reset failure")
	}
	sub, ok := f.subs[orgID]
	if !ok {
		return repositories.ErrNotFound
	}
	sub.CurrentTokenUsage = 0
	sub.QuotaResetDate = &nextReset
	return nil
}

func (f *fakeSubscriptionRepo) InitializeQuota(_ context.Context, orgID uuid.UUID, quota int64, resetDate time.Time) error {
	sub, ok := f.subs[orgID]
	if !ok {
		return repositories.ErrNotFound
	}
	sub.TokenQuotaMonthly = quota
	sub.CurrentTokenUsage = 0
	sub.QuotaResetDate = &resetDate
	return nil
}

func (f *fakeSubscriptionRepo) ListDue(_ context.Context, now time.Time) ([]*models.Subscription, error) {
	var due []*models.Subscription
	for _, sub := range f.subs {
		if sub.IsResetDue(now) {
			copied := *sub
			due = append(due, &copied)
		}
	}
	return due, nil
}

func (f *fakeSubscriptionRepo) ListAll(_ context.Context) ([]*models.Subscription, error) {
	var all []*models.Subscription
	for _, sub := range f.subs {
		copied := *sub
		all = append(all, &copied)
	}
	return all, nil
}

func newTestManager(repo *fakeSubscriptionRepo, now time.Time) *Manager {
	m := NewManager(repo, zap.NewNop())
	m.now = func() time.Time { return now }
	return m
}

func freeSub(orgID uuid.UUID, usage int64, resetDate *time.Time) *models.Subscription {
	return &models.Subscription{
		ID:                uuid.New(),
		OrgID:             orgID,
		Plan:              models.PlanFree,
		CurrentTokenUsage: usage,
		QuotaResetDate:    resetDate,
	}
}

func TestManager_CheckAndResetIfNeeded(t *testing.T) {
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)

	t.Run("no reset when date has not passed", func(t *testing.T) {
		orgID := uuid.New()
		future := now.Add(24 * time.Hour)
		repo := newFakeSubscriptionRepo()
		repo.add(freeSub(orgID, 50_000, &future))

		sub, err := newTestManager(repo, now).CheckAndResetIfNeeded(context.Background(), orgID)

		require.NoError(t, err)
		assert.Equal(t, int64(50_000), sub.CurrentTokenUsage)
	})

	t.Run("resets when date has passed", func(t *testing.T) {
		orgID := uuid.New()
		past := now.Add(-time.Hour)
		repo := newFakeSubscriptionRepo()
		repo.add(freeSub(orgID, 99_000, &past))

		sub, err := newTestManager(repo, now).CheckAndResetIfNeeded(context.Background(), orgID)

		require.NoError(t, err)
		assert.Equal(t, int64(0), sub.CurrentTokenUsage)
		// Next window is anchored to the reset instant.
		require.NotNil(t, sub.QuotaResetDate)
		assert.Equal(t, now.AddDate(0, 1, 0), *sub.QuotaResetDate)
	})

	t.Run("nil reset date never resets", func(t *testing.T) {
		orgID := uuid.New()
		repo := newFakeSubscriptionRepo()
		repo.add(freeSub(orgID, 99_000, nil))

		sub, err := newTestManager(repo, now).CheckAndResetIfNeeded(context.Background(), orgID)

		require.NoError(t, err)
		assert.Equal(t, int64(99_000), sub.CurrentTokenUsage)
	})

	t.Run("org without a subscription row gets the free tier", func(t *testing.T) {
		orgID := uuid.New()
		repo := newFakeSubscriptionRepo()

		sub, err := newTestManager(repo, now).CheckAndResetIfNeeded(context.Background(), orgID)

		require.NoError(t, err)
		assert.Equal(t, orgID, sub.OrgID)
		assert.Equal(t, models.PlanFree, sub.Plan)
		assert.Equal(t, int64(0), sub.CurrentTokenUsage)
		assert.Equal(t, int64(models.FreeTierTokenQuota), sub.MonthlyQuota())
		assert.Nil(t, sub.QuotaResetDate)
		assert.False(t, sub.IsQuotaExceeded())
	})
}

func TestManager_GetQuotaStatus(t *testing.T) {
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	future := now.AddDate(0, 1, 0)

	t.Run("under quota", func(t *testing.T) {
		orgID := uuid.New()
		repo := newFakeSubscriptionRepo()
		repo.add(freeSub(orgID, 25_000, &future))

		status, err := newTestManager(repo, now).GetQuotaStatus(context.Background(), orgID)

		require.NoError(t, err)
		assert.Equal(t, int64(25_000), status.CurrentUsage)
		assert.Equal(t, int64(models.FreeTierTokenQuota), status.MonthlyQuota)
		assert.Equal(t, int64(75_000), status.Remaining)
		assert.InDelta(t, 25.0, status.UsagePercentage, 0.01)
		assert.False(t, status.IsExceeded)
	})

	t.Run("exactly at quota is exceeded", func(t *testing.T) {
		orgID := uuid.New()
		repo := newFakeSubscriptionRepo()
		repo.add(freeSub(orgID, models.FreeTierTokenQuota, &future))

		status, err := newTestManager(repo, now).GetQuotaStatus(context.Background(), orgID)

		require.NoError(t, err)
		assert.True(t, status.IsExceeded)
		assert.Equal(t, int64(0), status.Remaining)
	})

	t.Run("overshoot clamps remaining but reports the real percentage", func(t *testing.T) {
		orgID := uuid.New()
		repo := newFakeSubscriptionRepo()
		repo.add(freeSub(orgID, 120_000, &future))

		status, err := newTestManager(repo, now).GetQuotaStatus(context.Background(), orgID)

		require.NoError(t, err)
		assert.True(t, status.IsExceeded)
		assert.Equal(t, int64(0), status.Remaining)
		assert.InDelta(t, 120.0, status.UsagePercentage, 0.01)
	})

	t.Run("org without a subscription row reports the free-tier default", func(t *testing.T) {
		orgID := uuid.New()
		repo := newFakeSubscriptionRepo()

		status, err := newTestManager(repo, now).GetQuotaStatus(context.Background(), orgID)

		require.NoError(t, err)
		assert.Equal(t, models.PlanFree, status.Plan)
		assert.Equal(t, int64(0), status.CurrentUsage)
		assert.Equal(t, int64(models.FreeTierTokenQuota), status.MonthlyQuota)
		assert.Equal(t, int64(models.FreeTierTokenQuota), status.Remaining)
		assert.False(t, status.IsExceeded)
		assert.Nil(t, status.ResetDate)
	})

	t.Run("subscription quota override wins over plan default", func(t *testing.T) {
		orgID := uuid.New()
		sub := freeSub(orgID, 150_000, &future)
		sub.TokenQuotaMonthly = 500_000
		repo := newFakeSubscriptionRepo()
		repo.add(sub)

		status, err := newTestManager(repo, now).GetQuotaStatus(context.Background(), orgID)

		require.NoError(t, err)
		assert.Equal(t, int64(500_000), status.MonthlyQuota)
		assert.False(t, status.IsExceeded)
	})
}

func TestManager_RecordUsage(t *testing.T) {
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)

	t.Run("accumulates usage", func(t *testing.T) {
		orgID := uuid.New()
		repo := newFakeSubscriptionRepo()
		repo.add(freeSub(orgID, 0, nil))
		manager := newTestManager(repo, now)

		for _, tokens := range []int64{1000, 2500, 500} {
			require.NoError(t, manager.RecordUsage(context.Background(), orgID, tokens))
		}

		sub, err := repo.GetByOrgID(context.Background(), orgID)
		require.NoError(t, err)
		assert.Equal(t, int64(4000), sub.CurrentTokenUsage)
	})

	t.Run("zero tokens is a no-op", func(t *testing.T) {
		orgID := uuid.New()
		repo := newFakeSubscriptionRepo()
		manager := newTestManager(repo, now)

		// No subscription exists; a zero record must not touch the repo.
		require.NoError(t, manager.RecordUsage(context.Background(), orgID, 0))
	})
}

func TestManager_ResetAllDueQuotas(t *testing.T) {
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	t.Run("resets only due subscriptions", func(t *testing.T) {
		repo := newFakeSubscriptionRepo()
		dueOrg := uuid.New()
		notDueOrg := uuid.New()
		repo.add(freeSub(dueOrg, 90_000, &past))
		repo.add(freeSub(notDueOrg, 10_000, &future))

		count, err := newTestManager(repo, now).ResetAllDueQuotas(context.Background())

		require.NoError(t, err)
		assert.Equal(t, 1, count)
		assert.Equal(t, int64(0), repo.subs[dueOrg].CurrentTokenUsage)
		assert.Equal(t, int64(10_000), repo.subs[notDueOrg].CurrentTokenUsage)
	})

	t.Run("a failing reset does not block the sweep", func(t *testing.T) {
		repo := newFakeSubscriptionRepo()
		badOrg := uuid.New()
		goodOrg := uuid.New()
		repo.add(freeSub(badOrg, 90_000, &past))
		repo.add(freeSub(goodOrg, 90_000, &past))
		repo.failReset[badOrg] = true

		count, err := newTestManager(repo, now).ResetAllDueQuotas(context.Background())

		require.NoError(t, err)
		assert.Equal(t, 1, count)
		assert.Equal(t, int64(0), repo.subs[goodOrg].CurrentTokenUsage)
	})
}

func TestManager_OrganizationsApproachingLimit(t *testing.T) {
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	repo := newFakeSubscriptionRepo()

	lowOrg := uuid.New()
	warnOrg := uuid.New()
	exceededOrg := uuid.New()
	repo.add(freeSub(lowOrg, 10_000, nil))
	repo.add(freeSub(warnOrg, 85_000, nil))
	repo.add(freeSub(exceededOrg, 100_000, nil))

	approaching, err := newTestManager(repo, now).OrganizationsApproachingLimit(context.Background(), 80)

	require.NoError(t, err)
	require.Len(t, approaching, 1)
	assert.Equal(t, warnOrg, approaching[0].OrgID)
}

func TestManager_InitializeQuota(t *testing.T) {
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	orgID := uuid.New()
	repo := newFakeSubscriptionRepo()
	sub := freeSub(orgID, 500, nil)
	sub.Plan = models.PlanPro
	repo.add(sub)

	err := newTestManager(repo, now).InitializeQuota(context.Background(), orgID, models.PlanPro)

	require.NoError(t, err)
	got := repo.subs[orgID]
	assert.Equal(t, models.GetPlanFeatures(models.PlanPro).TokenQuotaMonthly, got.TokenQuotaMonthly)
	assert.Equal(t, int64(0), got.CurrentTokenUsage)
	require.NotNil(t, got.QuotaResetDate)
	assert.Equal(t, now.AddDate(0, 1, 0), *got.QuotaResetDate)
}
