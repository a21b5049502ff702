package handlers

import (
	"net/http"

	"github.com/orgforge/agentplane/app"
	"github.com/orgforge/agentplane/utils"
	"go.uber.org/zap"
)

// GetQuotaStatusHandler returns the caller org's quota standing
func GetQuotaStatusHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, ok := requireOrgID(w, r, deps.Logger)
		if !ok {
			return
		}

		status, err := deps.QuotaManager.GetQuotaStatus(r.Context(), orgID)
		if err != nil {
			HandleServiceError(w, err, deps.Logger)
			return
		}

		if err := utils.WriteOK(w, status); err != nil {
			deps.Logger.Error("failed to write response", zap.Error(err))
		}
	}
}

// ResetDueQuotasHandler sweeps every subscription whose reset date has
// passed. Meant to be hit by a scheduler, not end users.
func ResetDueQuotasHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		count, err := deps.QuotaManager.ResetAllDueQuotas(r.Context())
		if err != nil {
			HandleServiceError(w, err, deps.Logger)
			return
		}

		if err := utils.WriteOK(w, map[string]interface{}{"reset_count": count}); err != nil {
			deps.Logger.Error("failed to write response", zap.Error(err))
		}
	}
}
