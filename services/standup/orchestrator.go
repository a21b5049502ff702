package standup

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/orgforge/agentplane/models"
	"github.com/orgforge/agentplane/repositories"
	"github.com/orgforge/agentplane/services"
	"github.com/orgforge/agentplane/services/delegation"
	"github.com/orgforge/agentplane/services/providers"
	"github.com/orgforge/agentplane/services/router"
	"github.com/orgforge/agentplane/utils"
	"go.uber.org/zap"
)

const (
	taskHistoryWindow = 7 * 24 * time.Hour
	taskHistoryLimit  = 10

	defaultCompletedWork  = "No updates"
	defaultBlockers       = "None"
	defaultNextPriorities = "Continuing current work"
)

// Report is one role's standup, parsed from the model's free text.
type Report struct {
	RoleID         uuid.UUID `json:"role_id"`
	RoleName       string    `json:"role_name"`
	CompletedWork  string    `json:"completed_work"`
	Blockers       string    `json:"blockers"`
	NextPriorities string    `json:"next_priorities"`
	Timestamp      time.Time `json:"timestamp"`
}

// ActionItem is one follow-up extracted from the aggregation call.
type ActionItem struct {
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	AssignedRole *uuid.UUID `json:"assigned_role_id,omitempty"`
	Priority     string     `json:"priority"`
	Reasoning    string     `json:"reasoning"`
}

// Result is the outcome of one standup run.
type Result struct {
	Reports        []Report       `json:"reports"`
	Aggregation    string         `json:"aggregation"`
	ActionItems    []ActionItem   `json:"action_items"`
	CreatedTasks   []*models.Task `json:"created_tasks"`
	TotalTokens    int64          `json:"total_tokens"`
	TotalCostCents int64          `json:"total_cost_cents"`
}

// RoleChatter is the slice of the router the orchestrator needs.
type RoleChatter interface {
	ChatForRole(ctx context.Context, orgID, roleID uuid.UUID, messages []providers.Message, opts *providers.ChatOptions) (*router.Result, error)
	ChatDirectForRole(ctx context.Context, orgID uuid.UUID, role *models.Role, messages []providers.Message, opts *providers.ChatOptions) (*router.Result, error)
}

// Orchestrator runs the daily standup batch: one report per active
// role, one aggregation pass, tasks created from the resulting action
// items.
//
// Reports are generated sequentially on purpose. The run touches every
// role in the org, and serializing the calls caps the provider-rate
// and token burst; do not parallelize this loop.
type Orchestrator struct {
	roles  repositories.RoleRepository
	tasks  repositories.TaskRepository
	router RoleChatter
	logger *zap.Logger
	now    func() time.Time
}

// NewOrchestrator creates a new standup orchestrator
func NewOrchestrator(roles repositories.RoleRepository, tasks repositories.TaskRepository, chatRouter RoleChatter, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		roles:  roles,
		tasks:  tasks,
		router: chatRouter,
		logger: logger,
		now:    time.Now,
	}
}

// RunDailyStandup generates reports for every active role, aggregates
// them through the orchestrator role when one exists, and creates
// pending tasks from the extracted action items. Every step is
// best-effort: a role whose report call fails is skipped, a failed
// aggregation yields no action items, and a failed task creation skips
// that item. Token and cost totals count only the calls that happened.
func (o *Orchestrator) RunDailyStandup(ctx context.Context, orgID uuid.UUID) (*Result, error) {
	roles, err := o.roles.ListActiveAssigned(ctx, orgID)
	if err != nil {
		return nil, services.WrapInternal("failed to list roles", err)
	}

	result := &Result{}

	for _, role := range roles {
		report, tokens, cost, err := o.generateReport(ctx, orgID, role)
		if err != nil {
			o.logger.Warn("standup report failed, skipping role",
				zap.String("org_id", orgID.String()),
				zap.String("role_name", role.Name),
				zap.Error(err))
			continue
		}
		result.Reports = append(result.Reports, *report)
		result.TotalTokens += tokens
		result.TotalCostCents += cost
	}

	orchestrator := findOrchestrator(roles)
	if orchestrator != nil {
		aggregation, items, tokens, cost := o.aggregate(ctx, orgID, orchestrator, roles, result.Reports)
		result.Aggregation = aggregation
		result.ActionItems = items
		result.TotalTokens += tokens
		result.TotalCostCents += cost

		result.CreatedTasks = o.createTasks(ctx, orgID, items)
	}

	o.logger.Info("standup run finished",
		zap.String("org_id", orgID.String()),
		zap.Int("reports", len(result.Reports)),
		zap.Int("action_items", len(result.ActionItems)),
		zap.Int("created_tasks", len(result.CreatedTasks)),
		zap.Int64("total_tokens", result.TotalTokens))

	return result, nil
}

func findOrchestrator(roles []*models.Role) *models.Role {
	for _, role := range roles {
		if delegation.IsOrchestrator(role) {
			return role
		}
	}
	return nil
}

// generateReport asks one role's model for a standup and parses the
// three labeled sections out of the reply.
func (o *Orchestrator) generateReport(ctx context.Context, orgID uuid.UUID, role *models.Role) (*Report, int64, int64, error) {
	tasks, err := o.tasks.ListRecentByRole(ctx, role.ID, o.now().Add(-taskHistoryWindow), taskHistoryLimit)
	if err != nil {
		return nil, 0, 0, err
	}

	resp, err := o.router.ChatForRole(ctx, orgID, role.ID,
		[]providers.Message{{Role: providers.RoleUser, Content: buildReportPrompt(role, tasks)}}, nil)
	if err != nil {
		return nil, 0, 0, err
	}

	report := &Report{
		RoleID:         role.ID,
		RoleName:       role.Name,
		CompletedWork:  extractSection(resp.Response, "Completed Work", defaultCompletedWork),
		Blockers:       extractSection(resp.Response, "Blockers", defaultBlockers),
		NextPriorities: extractSection(resp.Response, "Next Priorities", defaultNextPriorities),
		Timestamp:      o.now(),
	}

	return report, resp.TotalTokens, resp.CostCents, nil
}

// actionItemsWire is the JSON block requested from the aggregation
// call.
type actionItemsWire struct {
	ActionItems []struct {
		Title        string `json:"title"`
		Description  string `json:"description"`
		AssignedRole string `json:"assignedRole"`
		Priority     string `json:"priority"`
		Reasoning    string `json:"reasoning"`
	} `json:"actionItems"`
}

// aggregate runs the orchestrator's review over all reports. The full
// response text becomes the aggregation; action items come from an
// embedded JSON block, and extraction failure just means none.
func (o *Orchestrator) aggregate(ctx context.Context, orgID uuid.UUID, orchestrator *models.Role, roles []*models.Role, reports []Report) (string, []ActionItem, int64, int64) {
	resp, err := o.router.ChatDirectForRole(ctx, orgID, orchestrator,
		[]providers.Message{{Role: providers.RoleUser, Content: buildAggregationPrompt(reports)}}, nil)
	if err != nil {
		o.logger.Warn("aggregation call failed",
			zap.String("org_id", orgID.String()),
			zap.Error(err))
		return "", nil, 0, 0
	}

	return resp.Response, o.parseActionItems(resp.Response, roles), resp.TotalTokens, resp.CostCents
}

func (o *Orchestrator) parseActionItems(response string, roles []*models.Role) []ActionItem {
	raw, ok := utils.ExtractJSONObject(response)
	if !ok {
		o.logger.Warn("no action item JSON in aggregation response")
		return nil
	}

	var wire actionItemsWire
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		o.logger.Warn("malformed action item JSON", zap.Error(err))
		return nil
	}

	var items []ActionItem
	for _, item := range wire.ActionItems {
		if strings.TrimSpace(item.Title) == "" {
			continue
		}

		priority := item.Priority
		if priority == "" {
			priority = "medium"
		}

		items = append(items, ActionItem{
			Title:        item.Title,
			Description:  item.Description,
			AssignedRole: resolveRoleByName(roles, item.AssignedRole),
			Priority:     priority,
			Reasoning:    item.Reasoning,
		})
	}

	return items
}

// resolveRoleByName matches an action item's assignee by exact role
// name. Unmatched names leave the task unassigned.
func resolveRoleByName(roles []*models.Role, name string) *uuid.UUID {
	if name == "" || strings.EqualFold(name, "null") {
		return nil
	}
	for _, role := range roles {
		if role.Name == name {
			id := role.ID
			return &id
		}
	}
	return nil
}

// createTasks persists one pending task per action item, skipping
// items whose creation fails.
func (o *Orchestrator) createTasks(ctx context.Context, orgID uuid.UUID, items []ActionItem) []*models.Task {
	var created []*models.Task
	for _, item := range items {
		input := fmt.Sprintf("%s\n\nReasoning: %s\nPriority: %s", item.Description, item.Reasoning, item.Priority)
		task := models.NewTask(orgID, item.AssignedRole, item.Title, input)

		if err := o.tasks.Create(ctx, task); err != nil {
			o.logger.Warn("failed to create task from action item",
				zap.String("org_id", orgID.String()),
				zap.String("title", item.Title),
				zap.Error(err))
			continue
		}
		created = append(created, task)
	}
	return created
}

// extractSection pulls a **Label:** section out of markdown-ish model
// output. Best-effort by design: model formatting drifts, so an absent
// or mangled label falls back to the placeholder.
func extractSection(text, section, fallback string) string {
	pattern := `(?is)\*\*` + regexp.QuoteMeta(section) + `:?\*\*:?\s*(.*?)(?:\*\*|$)`
	re := regexp.MustCompile(pattern)

	match := re.FindStringSubmatch(text)
	if match == nil {
		return fallback
	}

	content := strings.TrimSpace(match[1])
	if content == "" {
		return fallback
	}
	return content
}

func buildReportPrompt(role *models.Role, tasks []*models.Task) string {
	var taskLines []string
	for _, task := range tasks {
		taskLines = append(taskLines, fmt.Sprintf("- [%s] %s (%s)", task.Status, task.Title, task.CreatedAt.Format("2006-01-02")))
	}
	taskHistory := strings.Join(taskLines, "\n")
	if taskHistory == "" {
		taskHistory = "No recent tasks"
	}

	return fmt.Sprintf(`You are %s. Generate your daily standup report.

Recent tasks:
%s

Provide a brief standup report in this format:

**Completed Work:**
[What you accomplished recently]

**Blockers:**
[Any obstacles or issues, or "None"]

**Next Priorities:**
[What you plan to focus on next]

Keep it concise (2-3 sentences per section).`, role.Name, taskHistory)
}

func buildAggregationPrompt(reports []Report) string {
	var sb strings.Builder
	sb.WriteString(`Review all team standup reports and provide:

1. **Executive Summary**: High-level overview of team progress
2. **Key Insights**: Notable achievements or concerns
3. **Action Items**: Specific tasks to create (3-5 items)

Team Standups:
`)
	for _, r := range reports {
		sb.WriteString(fmt.Sprintf("\n**%s:**\n- Completed: %s\n- Blockers: %s\n- Next: %s\n",
			r.RoleName, r.CompletedWork, r.Blockers, r.NextPriorities))
	}
	sb.WriteString(`
For action items, use this JSON format:
{
  "actionItems": [
    {
      "title": "Task title",
      "description": "Detailed description",
      "assignedRole": "Role Name or null",
      "priority": "high|medium|low",
      "reasoning": "Why this is important"
    }
  ]
}`)
	return sb.String()
}
