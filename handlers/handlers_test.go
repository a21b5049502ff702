package handlers

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/orgforge/agentplane/app"
	"github.com/orgforge/agentplane/config"
	mw "github.com/orgforge/agentplane/middleware"
	"github.com/orgforge/agentplane/models"
	"github.com/orgforge/agentplane/repositories"
	"github.com/orgforge/agentplane/services/delegation"
	"github.com/orgforge/agentplane/services/providers"
	"github.com/orgforge/agentplane/services/quota"
	"github.com/orgforge/agentplane/services/router"
	"github.com/orgforge/agentplane/services/standup"
	"github.com/orgforge/agentplane/services/tasks"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// In-memory repositories backing the handler tests. Same contracts as
// the postgres implementations, including the atomic claim semantics.

type fakeRoleRepo struct {
	roles map[uuid.UUID]*models.Role
}

func (f *fakeRoleRepo) GetWithAssignment(_ context.Context, id uuid.UUID) (*models.Role, error) {
	role, ok := f.roles[id]
	if !ok {
		return nil, fmt.Errorf("role %s: %w", id, repositories.ErrNotFound)
	}
	return role, nil
}

func (f *fakeRoleRepo) ListActiveAssigned(_ context.Context, orgID uuid.UUID) ([]*models.Role, error) {
	var out []*models.Role
	for _, role := range f.roles {
		if role.OrgID == orgID && role.IsActive && role.HasModel() {
			out = append(out, role)
		}
	}
	return out, nil
}

type fakeOrgRepo struct {
	orgs map[uuid.UUID]*models.Organization
}

func (f *fakeOrgRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Organization, error) {
	org, ok := f.orgs[id]
	if !ok {
		return nil, fmt.Errorf("organization %s: %w", id, repositories.ErrNotFound)
	}
	return org, nil
}

type fakeModelConfigRepo struct {
	configs map[string]*models.ModelConfig
}

func (f *fakeModelConfigRepo) FindForOrg(_ context.Context, _ uuid.UUID, modelID string) (*models.ModelConfig, error) {
	cfg, ok := f.configs[modelID]
	if !ok {
		return nil, fmt.Errorf("model config %s: %w", modelID, repositories.ErrNotFound)
	}
	return cfg, nil
}

type fakeSubscriptionRepo struct {
	mu   sync.Mutex
	subs map[uuid.UUID]*models.Subscription
}

func (f *fakeSubscriptionRepo) GetByOrgID(_ context.Context, orgID uuid.UUID) (*models.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.subs[orgID]
	if !ok {
		return nil, fmt.Errorf("subscription for org %s: %w", orgID, repositories.ErrNotFound)
	}
	copied := *sub
	return &copied, nil
}

func (f *fakeSubscriptionRepo) IncrementUsage(_ context.Context, orgID uuid.UUID, tokens int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.subs[orgID]
	if !ok {
		return repositories.ErrNotFound
	}
	sub.CurrentTokenUsage += tokens
	return nil
}

func (f *fakeSubscriptionRepo) ResetUsage(_ context.Context, orgID uuid.UUID, nextReset time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.subs[orgID]
	if !ok {
		return repositories.ErrNotFound
	}
	sub.CurrentTokenUsage = 0
	sub.QuotaResetDate = &nextReset
	return nil
}

func (f *fakeSubscriptionRepo) InitializeQuota(_ context.Context, orgID uuid.UUID, quota int64, resetDate time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
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
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Subscription
	for _, sub := range f.subs {
		if sub.IsResetDue(now) {
			copied := *sub
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeSubscriptionRepo) ListAll(_ context.Context) ([]*models.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Subscription
	for _, sub := range f.subs {
		copied := *sub
		out = append(out, &copied)
	}
	return out, nil
}

type fakeTaskRepo struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*models.Task
}

func (f *fakeTaskRepo) Create(_ context.Context, task *models.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *task
	f.tasks[task.ID] = &copied
	return nil
}

func (f *fakeTaskRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	task, ok := f.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, repositories.ErrNotFound)
	}
	copied := *task
	return &copied, nil
}

func (f *fakeTaskRepo) Claim(_ context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	task, ok := f.tasks[id]
	if !ok {
		return false, nil
	}
	if task.Status == models.TaskStatusRunning || task.Status == models.TaskStatusCompleted {
		return false, nil
	}
	task.Status = models.TaskStatusRunning
	return true, nil
}

func (f *fakeTaskRepo) MarkCompleted(_ context.Context, id uuid.UUID, output string, executionTimeMs, tokenCount, costCents int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	task := f.tasks[id]
	task.Status = models.TaskStatusCompleted
	task.Output = &output
	task.ExecutionTimeMs = &executionTimeMs
	task.TokenCount = &tokenCount
	task.CostCents = &costCents
	return nil
}

func (f *fakeTaskRepo) MarkFailed(_ context.Context, id uuid.UUID, output string, executionTimeMs int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	task := f.tasks[id]
	task.Status = models.TaskStatusFailed
	task.Output = &output
	task.ExecutionTimeMs = &executionTimeMs
	return nil
}

func (f *fakeTaskRepo) ListRecentByRole(_ context.Context, _ uuid.UUID, _ time.Time, _ int) ([]*models.Task, error) {
	return nil, nil
}

type fakeUsageRepo struct {
	mu      sync.Mutex
	records []*models.UsageRecord
}

func (f *fakeUsageRepo) Insert(_ context.Context, record *models.UsageRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, record)
	return nil
}

func (f *fakeUsageRepo) ListByOrg(_ context.Context, orgID uuid.UUID, _ repositories.UsageFilter) ([]*models.UsageRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.UsageRecord
	for _, r := range f.records {
		if r.OrgID == orgID {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeChatClient struct {
	response string
	err      error
}

func (f *fakeChatClient) Provider() string { return "openai" }

func (f *fakeChatClient) Chat(_ context.Context, modelID string, _ []providers.Message, _ *providers.ChatOptions) (*providers.ChatResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &providers.ChatResponse{
		Content:      f.response,
		InputTokens:  600,
		OutputTokens: 400,
		TotalTokens:  1000,
		CostCents:    1,
		ModelID:      modelID,
		Provider:     "openai",
	}, nil
}

// testEnv is a fully wired app.Dependencies over in-memory storage and
// a canned chat client.
type testEnv struct {
	deps   *app.Dependencies
	orgID  uuid.UUID
	roleID uuid.UUID
	client *fakeChatClient
	roles  *fakeRoleRepo
	tasks  *fakeTaskRepo
	subs   *fakeSubscriptionRepo
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	orgID := uuid.New()
	roleID := uuid.New()
	logger := zap.NewNop()

	modelConfig := models.ModelConfig{
		ID:          uuid.New(),
		Provider:    "openai",
		ModelID:     "gpt-4o",
		DisplayName: "GPT-4o",
	}
	role := &models.Role{
		ID:       roleID,
		OrgID:    orgID,
		Name:     "CTO",
		Persona:  "You are the CTO of the company.",
		Kind:     models.RoleKindSpecialist,
		IsActive: true,
		Assignment: &models.ModelAssignment{
			ID:     uuid.New(),
			RoleID: roleID,
			Config: modelConfig,
		},
	}

	roleRepo := &fakeRoleRepo{roles: map[uuid.UUID]*models.Role{roleID: role}}
	orgRepo := &fakeOrgRepo{orgs: map[uuid.UUID]*models.Organization{
		orgID: {ID: orgID, Name: "Acme"},
	}}
	configRepo := &fakeModelConfigRepo{configs: map[string]*models.ModelConfig{
		modelConfig.ModelID: &modelConfig,
	}}
	subRepo := &fakeSubscriptionRepo{subs: map[uuid.UUID]*models.Subscription{
		orgID: {ID: uuid.New(), OrgID: orgID, Plan: models.PlanFree},
	}}
	taskRepo := &fakeTaskRepo{tasks: make(map[uuid.UUID]*models.Task)}
	usageRepo := &fakeUsageRepo{}

	repos := &repositories.Repositories{
		Organizations: orgRepo,
		Roles:         roleRepo,
		ModelConfigs:  configRepo,
		Subscriptions: subRepo,
		Tasks:         taskRepo,
		Usage:         usageRepo,
	}

	client := &fakeChatClient{response: "All systems green."}
	registry := providers.NewRegistry()
	require.NoError(t, registry.Register("openai", client))

	quotaManager := quota.NewManager(subRepo, logger)
	routerService := router.NewService(repos, quotaManager, registry, logger)

	deps := &app.Dependencies{
		Config:         &config.Config{Environment: "test"},
		Logger:         logger,
		Repos:          repos,
		Registry:       registry,
		QuotaManager:   quotaManager,
		Router:         routerService,
		Delegation:     delegation.NewEngine(roleRepo, routerService, logger),
		Standup:        standup.NewOrchestrator(roleRepo, taskRepo, routerService, logger),
		Tasks:          tasks.NewService(taskRepo, routerService, logger),
		AuthMiddleware: mw.NewAuthMiddleware(mw.NewJWTValidator(config.AuthConfig{JWTSecret: "secret"}), logger),
	}

	return &testEnv{
		deps:   deps,
		orgID:  orgID,
		roleID: roleID,
		client: client,
		roles:  roleRepo,
		tasks:  taskRepo,
		subs:   subRepo,
	}
}

// withTenant stamps the org onto the request context the way
// ExtractTenant does.
func withTenant(r *http.Request, orgID uuid.UUID) *http.Request {
	return r.WithContext(mw.WithOrgID(r.Context(), orgID))
}
