package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/orgforge/agentplane/app"
	"github.com/orgforge/agentplane/repositories"
	"github.com/orgforge/agentplane/utils"
	"go.uber.org/zap"
)

// UsageAnalyticsHandler aggregates the org's usage ledger into totals
// and a per-model breakdown. Supports start_date, end_date, and role_id
// query filters.
func UsageAnalyticsHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, ok := requireOrgID(w, r, deps.Logger)
		if !ok {
			return
		}

		filter, err := parseUsageFilter(r)
		if err != nil {
			_ = utils.WriteBadRequest(w, err.Error(), nil)
			return
		}

		analytics, svcErr := deps.Router.UsageAnalytics(r.Context(), orgID, filter)
		if svcErr != nil {
			HandleServiceError(w, svcErr, deps.Logger)
			return
		}

		if err := utils.WriteOK(w, analytics); err != nil {
			deps.Logger.Error("failed to write response", zap.Error(err))
		}
	}
}

// parseUsageFilter reads the optional query filters. Dates accept
// RFC 3339 or plain YYYY-MM-DD.
func parseUsageFilter(r *http.Request) (repositories.UsageFilter, error) {
	var filter repositories.UsageFilter
	q := r.URL.Query()

	if raw := q.Get("start_date"); raw != "" {
		t, err := parseDate(raw)
		if err != nil {
			return filter, err
		}
		filter.StartDate = &t
	}
	if raw := q.Get("end_date"); raw != "" {
		t, err := parseDate(raw)
		if err != nil {
			return filter, err
		}
		filter.EndDate = &t
	}
	if raw := q.Get("role_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return filter, err
		}
		filter.RoleID = &id
	}

	return filter, nil
}

func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}
