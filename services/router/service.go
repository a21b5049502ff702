package router

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/orgforge/agentplane/models"
	"github.com/orgforge/agentplane/repositories"
	"github.com/orgforge/agentplane/services"
	"github.com/orgforge/agentplane/services/providers"
	"github.com/orgforge/agentplane/services/quota"
	"go.uber.org/zap"
)

// Result is the outcome of a routed chat call.
type Result struct {
	RoleID       *uuid.UUID `json:"role_id,omitempty"`
	RoleName     string     `json:"role_name,omitempty"`
	Provider     string     `json:"provider"`
	ModelID      string     `json:"model_id"`
	Response     string     `json:"response"`
	InputTokens  int64      `json:"input_tokens"`
	OutputTokens int64      `json:"output_tokens"`
	TotalTokens  int64      `json:"total_tokens"`
	CostCents    int64      `json:"cost_cents"`
}

// ModelUsage aggregates ledger entries per model for analytics.
type ModelUsage struct {
	Provider    string `json:"provider"`
	ModelID     string `json:"model_id"`
	Calls       int64  `json:"calls"`
	TotalTokens int64  `json:"total_tokens"`
	CostCents   int64  `json:"cost_cents"`
}

// Analytics is the usage report for an organization.
type Analytics struct {
	Totals  models.UsageTotals `json:"totals"`
	ByModel []ModelUsage       `json:"by_model"`
	Calls   int64              `json:"calls"`
}

// Service routes chat traffic to the model assigned to a role,
// enforcing the org's token quota before dispatch and recording usage
// after.
//
// The quota check is a pre-call gate: a call admitted under quota may
// finish above it. Usage is still counted, and the next call is
// rejected, so overshoot is bounded by one completion per org.
type Service struct {
	roles        repositories.RoleRepository
	orgs         repositories.OrganizationRepository
	modelConfigs repositories.ModelConfigRepository
	usage        repositories.UsageRepository
	quota        *quota.Manager
	registry     *providers.Registry
	logger       *zap.Logger
}

// NewService creates a new router service
func NewService(
	repos *repositories.Repositories,
	quotaManager *quota.Manager,
	registry *providers.Registry,
	logger *zap.Logger,
) *Service {
	return &Service{
		roles:        repos.Roles,
		orgs:         repos.Organizations,
		modelConfigs: repos.ModelConfigs,
		usage:        repos.Usage,
		quota:        quotaManager,
		registry:     registry,
		logger:       logger,
	}
}

// ChatForRole routes a chat to the model assigned to the role. The
// role's persona is prepended as a system message when present.
func (s *Service) ChatForRole(ctx context.Context, orgID, roleID uuid.UUID, messages []providers.Message, opts *providers.ChatOptions) (*Result, error) {
	if len(messages) == 0 {
		return nil, services.ErrEmptyMessages
	}

	role, err := s.resolveRole(ctx, orgID, roleID)
	if err != nil {
		return nil, err
	}

	if err := s.gate(ctx, orgID); err != nil {
		return nil, err
	}

	return s.dispatch(ctx, orgID, role, role.Assignment.Config, withPersona(role.Persona, messages), opts)
}

// ChatDirectForRole routes a chat to the role's model without the
// quota gate. Internal orchestration traffic (delegation planning,
// synthesis, standups) uses this path: the tokens are still counted
// against the org, but a planning step never fails mid-flow on a quota
// boundary.
func (s *Service) ChatDirectForRole(ctx context.Context, orgID uuid.UUID, role *models.Role, messages []providers.Message, opts *providers.ChatOptions) (*Result, error) {
	if len(messages) == 0 {
		return nil, services.ErrEmptyMessages
	}
	if !role.HasModel() {
		return nil, services.ErrNoModelAssigned.WithDetail("role_id", role.ID.String())
	}

	return s.dispatch(ctx, orgID, role, role.Assignment.Config, withPersona(role.Persona, messages), opts)
}

// ChatWithModel routes a chat to an explicit model, bypassing role
// resolution. Org-scoped model configs shadow global ones.
func (s *Service) ChatWithModel(ctx context.Context, orgID uuid.UUID, modelID string, messages []providers.Message, opts *providers.ChatOptions) (*Result, error) {
	if len(messages) == 0 {
		return nil, services.ErrEmptyMessages
	}

	if _, err := s.orgs.GetByID(ctx, orgID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrOrganizationNotFound
		}
		return nil, services.WrapInternal("failed to load organization", err)
	}

	config, err := s.modelConfigs.FindForOrg(ctx, orgID, modelID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrModelConfigNotFound.WithDetail("model_id", modelID)
		}
		return nil, services.WrapInternal("failed to load model config", err)
	}

	if err := s.gate(ctx, orgID); err != nil {
		return nil, err
	}

	return s.dispatch(ctx, orgID, nil, *config, messages, opts)
}

// UsageAnalytics aggregates the org's ledger entries into totals and a
// per-model breakdown.
func (s *Service) UsageAnalytics(ctx context.Context, orgID uuid.UUID, filter repositories.UsageFilter) (*Analytics, error) {
	records, err := s.usage.ListByOrg(ctx, orgID, filter)
	if err != nil {
		return nil, services.WrapInternal("failed to list usage records", err)
	}

	analytics := &Analytics{Calls: int64(len(records))}
	byModel := make(map[string]*ModelUsage)
	var order []string

	for _, record := range records {
		analytics.Totals.InputTokens += record.InputTokens
		analytics.Totals.OutputTokens += record.OutputTokens
		analytics.Totals.TotalTokens += record.TotalTokens
		analytics.Totals.CostCents += record.CostCents

		key := record.Provider + "/" + record.ModelID
		entry, ok := byModel[key]
		if !ok {
			entry = &ModelUsage{Provider: record.Provider, ModelID: record.ModelID}
			byModel[key] = entry
			order = append(order, key)
		}
		entry.Calls++
		entry.TotalTokens += record.TotalTokens
		entry.CostCents += record.CostCents
	}

	analytics.Totals.CostDollars = float64(analytics.Totals.CostCents) / 100

	for _, key := range order {
		analytics.ByModel = append(analytics.ByModel, *byModel[key])
	}

	return analytics, nil
}

// resolveRole loads the role and verifies it is routable.
func (s *Service) resolveRole(ctx context.Context, orgID, roleID uuid.UUID) (*models.Role, error) {
	role, err := s.roles.GetWithAssignment(ctx, roleID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrRoleNotFound.WithDetail("role_id", roleID.String())
		}
		return nil, services.WrapInternal("failed to load role", err)
	}

	// A role from another org is indistinguishable from a missing one.
	if role.OrgID != orgID {
		return nil, services.ErrRoleNotFound.WithDetail("role_id", roleID.String())
	}
	if !role.IsActive {
		return nil, services.ErrRoleNotFound.WithDetail("role_id", roleID.String())
	}
	if !role.HasModel() {
		return nil, services.ErrNoModelAssigned.WithDetail("role_id", roleID.String())
	}

	return role, nil
}

// gate rejects the call when the org's quota is already reached.
func (s *Service) gate(ctx context.Context, orgID uuid.UUID) error {
	sub, err := s.quota.CheckAndResetIfNeeded(ctx, orgID)
	if err != nil {
		return err
	}

	if sub.IsQuotaExceeded() {
		return services.ErrQuotaExceeded.
			WithDetail("current_usage", sub.CurrentTokenUsage).
			WithDetail("monthly_quota", sub.MonthlyQuota())
	}

	return nil
}

// dispatch resolves the provider client, performs the call, and records
// the outcome. role may be nil for direct model calls.
func (s *Service) dispatch(ctx context.Context, orgID uuid.UUID, role *models.Role, config models.ModelConfig, messages []providers.Message, opts *providers.ChatOptions) (*Result, error) {
	client, err := s.registry.ClientFor(config.Provider)
	if err != nil {
		return nil, services.ErrProviderNotWired.WithDetail("provider", config.Provider)
	}

	start := time.Now()
	resp, err := client.Chat(ctx, config.ModelID, messages, opts)
	if err != nil {
		s.logger.Warn("provider call failed",
			zap.String("org_id", orgID.String()),
			zap.String("provider", config.Provider),
			zap.String("model_id", config.ModelID),
			zap.Error(err))
		return nil, err
	}

	s.logger.Info("chat routed",
		zap.String("org_id", orgID.String()),
		zap.String("provider", config.Provider),
		zap.String("model_id", config.ModelID),
		zap.Int64("total_tokens", resp.TotalTokens),
		zap.Int64("cost_cents", resp.CostCents),
		zap.Duration("duration", time.Since(start)))

	s.record(ctx, orgID, role, config, resp)

	result := &Result{
		Provider:     config.Provider,
		ModelID:      config.ModelID,
		Response:     resp.Content,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
		TotalTokens:  resp.TotalTokens,
		CostCents:    resp.CostCents,
	}
	if role != nil {
		result.RoleID = &role.ID
		result.RoleName = role.Name
	}
	return result, nil
}

// record appends a ledger entry and bumps the org's usage counter.
// Accounting failures are logged, not surfaced: the completion already
// happened and the caller should receive it.
func (s *Service) record(ctx context.Context, orgID uuid.UUID, role *models.Role, config models.ModelConfig, resp *providers.ChatResponse) {
	record := &models.UsageRecord{
		ID:            uuid.New(),
		OrgID:         orgID,
		ModelConfigID: &config.ID,
		Provider:      config.Provider,
		ModelID:       config.ModelID,
		InputTokens:   resp.InputTokens,
		OutputTokens:  resp.OutputTokens,
		TotalTokens:   resp.TotalTokens,
		CostCents:     resp.CostCents,
		CreatedAt:     time.Now(),
	}
	if role != nil {
		record.RoleID = &role.ID
	}

	if err := s.usage.Insert(ctx, record); err != nil {
		s.logger.Error("failed to record usage ledger entry",
			zap.String("org_id", orgID.String()),
			zap.Error(err))
	}

	if err := s.quota.RecordUsage(ctx, orgID, resp.TotalTokens); err != nil {
		s.logger.Error("failed to increment quota usage",
			zap.String("org_id", orgID.String()),
			zap.Error(err))
	}
}

// withPersona prepends the role's persona as a system message.
func withPersona(persona string, messages []providers.Message) []providers.Message {
	if persona == "" {
		return messages
	}

	out := make([]providers.Message, 0, len(messages)+1)
	out = append(out, providers.Message{Role: providers.RoleSystem, Content: persona})
	return append(out, messages...)
}
