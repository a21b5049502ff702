package delegation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/orgforge/agentplane/models"
	"github.com/orgforge/agentplane/repositories"
	"github.com/orgforge/agentplane/services"
	"github.com/orgforge/agentplane/services/providers"
	"github.com/orgforge/agentplane/services/router"
	"github.com/orgforge/agentplane/utils"
	"go.uber.org/zap"
)

// RoleChatter is the slice of the router the engine needs.
type RoleChatter interface {
	ChatForRole(ctx context.Context, orgID, roleID uuid.UUID, messages []providers.Message, opts *providers.ChatOptions) (*router.Result, error)
	ChatDirectForRole(ctx context.Context, orgID uuid.UUID, role *models.Role, messages []providers.Message, opts *providers.ChatOptions) (*router.Result, error)
}

// Delegation is one planned hand-off to a specialist role.
type Delegation struct {
	RoleID       uuid.UUID `json:"role_id"`
	RoleName     string    `json:"role_name"`
	Instructions string    `json:"instructions"`
	Confidence   int       `json:"confidence"`
	Reasoning    string    `json:"reasoning"`
}

// Plan is the orchestrator's delegation plan for one objective. It is
// ephemeral; nothing about it is persisted.
type Plan struct {
	Delegations           []Delegation `json:"delegations"`
	OrchestrationStrategy string       `json:"orchestration_strategy"`
	Fallback              bool         `json:"fallback"`
}

// DelegateResult is the outcome of one delegated call. A failed
// delegate carries an error message as its response and zero
// token/cost figures.
type DelegateResult struct {
	Delegation
	Response    string `json:"response"`
	TotalTokens int64  `json:"total_tokens"`
	CostCents   int64  `json:"cost_cents"`
	Succeeded   bool   `json:"succeeded"`
}

// Result is the full outcome of one orchestration.
type Result struct {
	FinalResponse  string           `json:"final_response"`
	Strategy       string           `json:"strategy"`
	Delegations    []DelegateResult `json:"delegations"`
	TotalTokens    int64            `json:"total_tokens"`
	TotalCostCents int64            `json:"total_cost_cents"`
}

// Engine runs the plan / fan-out / synthesize orchestration protocol.
//
// Partial failure is the norm here: a delegate that errors contributes
// an error entry instead of aborting its siblings, an unparsable plan
// degrades to a deterministic single-delegation fallback, and a failed
// synthesis degrades to the concatenated delegate outputs. Only a
// missing orchestrator or an org with no specialists fails the run.
type Engine struct {
	roles  repositories.RoleRepository
	router RoleChatter
	logger *zap.Logger
}

// NewEngine creates a new delegation engine
func NewEngine(roles repositories.RoleRepository, chatRouter RoleChatter, logger *zap.Logger) *Engine {
	return &Engine{
		roles:  roles,
		router: chatRouter,
		logger: logger,
	}
}

// orchestratorNames are the recognized name patterns for legacy roles
// created before the kind tag existed.
var orchestratorNameSubstrings = []string{"main brain", "chief operating", "coo"}

// IsOrchestratorName reports whether a role name alone marks the role
// as the org's orchestrator. Kept for roles that predate the kind tag;
// new roles should carry models.RoleKindOrchestrator instead.
func IsOrchestratorName(name string) bool {
	lower := strings.ToLower(strings.TrimSpace(name))
	if lower == "orchestrator" {
		return true
	}
	for _, pattern := range orchestratorNameSubstrings {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// IsOrchestrator reports whether the role coordinates the org. The
// explicit kind tag wins; the name heuristic covers untagged roles.
func IsOrchestrator(role *models.Role) bool {
	if role.Kind == models.RoleKindOrchestrator {
		return true
	}
	return role.Kind == "" && IsOrchestratorName(role.Name)
}

// Orchestrate plans, fans out, and synthesizes a response to the
// message on behalf of the org's orchestrator role. history carries
// prior conversation turns and is forwarded to the planning call.
func (e *Engine) Orchestrate(ctx context.Context, orgID uuid.UUID, message string, history []providers.Message) (*Result, error) {
	if strings.TrimSpace(message) == "" {
		return nil, services.ErrInvalidInput.WithDetail("field", "message")
	}

	orchestrator, specialists, err := e.resolveRoles(ctx, orgID)
	if err != nil {
		return nil, err
	}

	plan, planTokens, planCost := e.plan(ctx, orgID, orchestrator, specialists, message, history)

	delegateResults := e.execute(ctx, orgID, plan)

	finalResponse, synthTokens, synthCost := e.synthesize(ctx, orgID, orchestrator, message, plan, delegateResults)

	result := &Result{
		FinalResponse: finalResponse,
		Strategy:      plan.OrchestrationStrategy,
		Delegations:   delegateResults,
	}

	result.TotalTokens = planTokens + synthTokens
	result.TotalCostCents = planCost + synthCost
	for _, dr := range delegateResults {
		result.TotalTokens += dr.TotalTokens
		result.TotalCostCents += dr.CostCents
	}

	e.logger.Info("orchestration finished",
		zap.String("org_id", orgID.String()),
		zap.Int("delegations", len(delegateResults)),
		zap.Bool("fallback_plan", plan.Fallback),
		zap.Int64("total_tokens", result.TotalTokens),
		zap.Int64("total_cost_cents", result.TotalCostCents))

	return result, nil
}

// resolveRoles loads the org's routable roles and splits out the
// orchestrator.
func (e *Engine) resolveRoles(ctx context.Context, orgID uuid.UUID) (*models.Role, []*models.Role, error) {
	roles, err := e.roles.ListActiveAssigned(ctx, orgID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, nil, services.ErrOrchestratorNotFound
		}
		return nil, nil, services.WrapInternal("failed to list roles", err)
	}

	var orchestrator *models.Role
	var specialists []*models.Role
	for _, role := range roles {
		if orchestrator == nil && IsOrchestrator(role) {
			orchestrator = role
			continue
		}
		specialists = append(specialists, role)
	}

	if orchestrator == nil {
		return nil, nil, services.ErrOrchestratorNotFound
	}
	if len(specialists) == 0 {
		return nil, nil, services.ErrNoSpecialistRoles
	}

	return orchestrator, specialists, nil
}

// planWire is the JSON shape requested from the orchestrator model.
type planWire struct {
	Delegations []struct {
		RoleID       string `json:"roleId"`
		RoleName     string `json:"roleName"`
		Instructions string `json:"instructions"`
		Confidence   int    `json:"confidence"`
		Reasoning    string `json:"reasoning"`
	} `json:"delegations"`
	OrchestrationStrategy string `json:"orchestrationStrategy"`
}

// plan asks the orchestrator model for a delegation plan. Any failure
// on this step, from the provider call through JSON extraction to
// role resolution, degrades to the deterministic fallback plan.
func (e *Engine) plan(ctx context.Context, orgID uuid.UUID, orchestrator *models.Role, specialists []*models.Role, message string, history []providers.Message) (*Plan, int64, int64) {
	messages := make([]providers.Message, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, providers.Message{
		Role:    providers.RoleUser,
		Content: buildPlanPrompt(specialists, message),
	})

	resp, err := e.router.ChatDirectForRole(ctx, orgID, orchestrator, messages, nil)
	if err != nil {
		e.logger.Warn("plan call failed, using fallback plan",
			zap.String("org_id", orgID.String()),
			zap.Error(err))
		return fallbackPlan(specialists[0], message), 0, 0
	}

	plan := e.parsePlan(resp.Response, specialists, message)
	return plan, resp.TotalTokens, resp.CostCents
}

// parsePlan extracts and validates the delegation plan from the model
// response, falling back when nothing usable comes out.
func (e *Engine) parsePlan(response string, specialists []*models.Role, message string) *Plan {
	raw, ok := utils.ExtractJSONObject(response)
	if !ok {
		e.logger.Warn("no JSON object in plan response, using fallback plan")
		return fallbackPlan(specialists[0], message)
	}

	var wire planWire
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		e.logger.Warn("malformed plan JSON, using fallback plan", zap.Error(err))
		return fallbackPlan(specialists[0], message)
	}

	plan := &Plan{OrchestrationStrategy: wire.OrchestrationStrategy}
	for _, d := range wire.Delegations {
		role := matchSpecialist(specialists, d.RoleID, d.RoleName)
		if role == nil {
			e.logger.Warn("plan references unknown role, dropping delegation",
				zap.String("role_id", d.RoleID),
				zap.String("role_name", d.RoleName))
			continue
		}

		instructions := strings.TrimSpace(d.Instructions)
		if instructions == "" {
			instructions = message
		}

		plan.Delegations = append(plan.Delegations, Delegation{
			RoleID:       role.ID,
			RoleName:     role.Name,
			Instructions: instructions,
			Confidence:   d.Confidence,
			Reasoning:    d.Reasoning,
		})
	}

	if len(plan.Delegations) == 0 {
		e.logger.Warn("plan resolved to zero delegations, using fallback plan")
		return fallbackPlan(specialists[0], message)
	}

	return plan
}

// fallbackPlan targets the first specialist with the original message.
func fallbackPlan(role *models.Role, message string) *Plan {
	return &Plan{
		Delegations: []Delegation{{
			RoleID:       role.ID,
			RoleName:     role.Name,
			Instructions: message,
			Confidence:   50,
			Reasoning:    "Fallback delegation",
		}},
		Fallback: true,
	}
}

// matchSpecialist resolves a planned delegation to a known specialist,
// by ID when the model echoed one back, otherwise by exact name.
func matchSpecialist(specialists []*models.Role, roleID, roleName string) *models.Role {
	if id, err := uuid.Parse(roleID); err == nil {
		for _, role := range specialists {
			if role.ID == id {
				return role
			}
		}
	}
	for _, role := range specialists {
		if strings.EqualFold(role.Name, roleName) {
			return role
		}
	}
	return nil
}

// execute fans the plan out concurrently. Results keep plan order, and
// one delegate's failure never cancels its siblings.
func (e *Engine) execute(ctx context.Context, orgID uuid.UUID, plan *Plan) []DelegateResult {
	results := make([]DelegateResult, len(plan.Delegations))

	var wg sync.WaitGroup
	for i, d := range plan.Delegations {
		wg.Add(1)
		go func(i int, d Delegation) {
			defer wg.Done()

			resp, err := e.router.ChatForRole(ctx, orgID, d.RoleID,
				[]providers.Message{{Role: providers.RoleUser, Content: d.Instructions}}, nil)
			if err != nil {
				e.logger.Warn("delegate call failed",
					zap.String("org_id", orgID.String()),
					zap.String("role_name", d.RoleName),
					zap.Error(err))
				results[i] = DelegateResult{
					Delegation: d,
					Response:   fmt.Sprintf("Error: %v", err),
				}
				return
			}

			results[i] = DelegateResult{
				Delegation:  d,
				Response:    resp.Response,
				TotalTokens: resp.TotalTokens,
				CostCents:   resp.CostCents,
				Succeeded:   true,
			}
		}(i, d)
	}
	wg.Wait()

	return results
}

// synthesize produces the final user-facing response from the delegate
// outputs. On failure it degrades to the raw outputs joined together.
func (e *Engine) synthesize(ctx context.Context, orgID uuid.UUID, orchestrator *models.Role, message string, plan *Plan, results []DelegateResult) (string, int64, int64) {
	resp, err := e.router.ChatDirectForRole(ctx, orgID, orchestrator,
		[]providers.Message{{Role: providers.RoleUser, Content: buildSynthesisPrompt(message, plan, results)}}, nil)
	if err != nil {
		e.logger.Warn("synthesis call failed, returning joined delegate output",
			zap.String("org_id", orgID.String()),
			zap.Error(err))
		return joinDelegateOutput(results), 0, 0
	}

	return resp.Response, resp.TotalTokens, resp.CostCents
}

func joinDelegateOutput(results []DelegateResult) string {
	var sb strings.Builder
	for _, r := range results {
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(fmt.Sprintf("**%s**: %s", r.RoleName, r.Response))
	}
	return sb.String()
}

func buildPlanPrompt(specialists []*models.Role, message string) string {
	var sb strings.Builder
	sb.WriteString("You coordinate a team of specialist roles. Decide which of them should handle the request below and what each should do.\n\nAvailable roles:\n")
	for _, role := range specialists {
		sb.WriteString(fmt.Sprintf("- %s (id: %s)", role.Name, role.ID))
		if role.Description != "" {
			sb.WriteString(": " + role.Description)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\nRequest:\n")
	sb.WriteString(message)
	sb.WriteString("\n\nRespond with a single JSON object of the form " +
		`{"delegations":[{"roleId":"...","roleName":"...","instructions":"...","confidence":0-100,"reasoning":"..."}],"orchestrationStrategy":"..."}` +
		" and nothing else.")
	return sb.String()
}

func buildSynthesisPrompt(message string, plan *Plan, results []DelegateResult) string {
	var sb strings.Builder
	sb.WriteString("Combine your team's responses into one coherent answer for the original request.\n\nOriginal request:\n")
	sb.WriteString(message)
	if plan.OrchestrationStrategy != "" {
		sb.WriteString("\n\nYour strategy was:\n")
		sb.WriteString(plan.OrchestrationStrategy)
	}
	sb.WriteString("\n\nTeam responses:\n")
	for _, r := range results {
		sb.WriteString(fmt.Sprintf("\n%s:\n%s\n", r.RoleName, r.Response))
	}
	sb.WriteString("\nWrite the final answer in your own voice. Do not mention the delegation process.")
	return sb.String()
}
