package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/orgforge/agentplane/app"
	"github.com/orgforge/agentplane/utils"
	"go.uber.org/zap"
)

// RoleChatRequest is the request body for POST /api/v1/roles/{roleID}/chat
type RoleChatRequest struct {
	Messages    []ChatMessage `json:"messages" validate:"required,min=1,dive"`
	Temperature *float64      `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	MaxTokens   *int          `json:"max_tokens,omitempty" validate:"omitempty,gt=0"`
}

// RoleChatHandler routes a conversation to the model assigned to a role
func RoleChatHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, ok := requireOrgID(w, r, deps.Logger)
		if !ok {
			return
		}

		roleID, ok := parseUUIDParam(w, chi.URLParam(r, "roleID"), "role_id")
		if !ok {
			return
		}

		var req RoleChatRequest
		if !decodeAndValidate(w, r, &req, deps.Logger) {
			return
		}

		result, err := deps.Router.ChatForRole(r.Context(), orgID, roleID,
			toProviderMessages(req.Messages), chatOptions(req.Temperature, req.MaxTokens))
		if err != nil {
			HandleServiceError(w, err, deps.Logger)
			return
		}

		if err := utils.WriteOK(w, result); err != nil {
			deps.Logger.Error("failed to write response", zap.Error(err))
		}
	}
}

// ModelChatRequest is the request body for POST /api/v1/chat
type ModelChatRequest struct {
	Model       string        `json:"model" validate:"required"`
	Messages    []ChatMessage `json:"messages" validate:"required,min=1,dive"`
	Temperature *float64      `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	MaxTokens   *int          `json:"max_tokens,omitempty" validate:"omitempty,gt=0"`
}

// ModelChatHandler routes a conversation to an explicitly named model,
// bypassing role resolution. Org-scoped model configs shadow global ones.
func ModelChatHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, ok := requireOrgID(w, r, deps.Logger)
		if !ok {
			return
		}

		var req ModelChatRequest
		if !decodeAndValidate(w, r, &req, deps.Logger) {
			return
		}

		result, err := deps.Router.ChatWithModel(r.Context(), orgID, req.Model,
			toProviderMessages(req.Messages), chatOptions(req.Temperature, req.MaxTokens))
		if err != nil {
			HandleServiceError(w, err, deps.Logger)
			return
		}

		if err := utils.WriteOK(w, result); err != nil {
			deps.Logger.Error("failed to write response", zap.Error(err))
		}
	}
}
