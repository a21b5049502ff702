package handlers

import (
	"net/http"

	"github.com/orgforge/agentplane/app"
	"github.com/orgforge/agentplane/utils"
	"go.uber.org/zap"
)

// RunStandupHandler triggers the daily standup batch for the caller's
// organization: one report per active role, an aggregation pass, and
// tasks created from the extracted action items.
func RunStandupHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, ok := requireOrgID(w, r, deps.Logger)
		if !ok {
			return
		}

		result, err := deps.Standup.RunDailyStandup(r.Context(), orgID)
		if err != nil {
			HandleServiceError(w, err, deps.Logger)
			return
		}

		if err := utils.WriteOK(w, result); err != nil {
			deps.Logger.Error("failed to write response", zap.Error(err))
		}
	}
}
