package handlers

import (
	"net/http"

	"github.com/orgforge/agentplane/app"
	"github.com/orgforge/agentplane/utils"
	"go.uber.org/zap"
)

// OrchestrateRequest is the request body for POST /api/v1/orchestrate
type OrchestrateRequest struct {
	Message string        `json:"message" validate:"required"`
	History []ChatMessage `json:"history,omitempty" validate:"omitempty,dive"`
}

// OrchestrateHandler runs the full delegation flow: the orchestrator
// role plans, specialists execute in parallel, and the orchestrator
// synthesizes a final answer.
func OrchestrateHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, ok := requireOrgID(w, r, deps.Logger)
		if !ok {
			return
		}

		var req OrchestrateRequest
		if !decodeAndValidate(w, r, &req, deps.Logger) {
			return
		}

		result, err := deps.Delegation.Orchestrate(r.Context(), orgID, req.Message, toProviderMessages(req.History))
		if err != nil {
			HandleServiceError(w, err, deps.Logger)
			return
		}

		if err := utils.WriteOK(w, result); err != nil {
			deps.Logger.Error("failed to write response", zap.Error(err))
		}
	}
}
