package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/orgforge/agentplane/app"
	"github.com/orgforge/agentplane/utils"
	"go.uber.org/zap"
)

// CreateTaskRequest is the request body for POST /api/v1/tasks
type CreateTaskRequest struct {
	Title  string  `json:"title" validate:"required"`
	Input  string  `json:"input,omitempty"`
	RoleID *string `json:"role_id,omitempty" validate:"omitempty,uuid"`
}

// CreateTaskHandler persists a new pending task
func CreateTaskHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, ok := requireOrgID(w, r, deps.Logger)
		if !ok {
			return
		}

		var req CreateTaskRequest
		if !decodeAndValidate(w, r, &req, deps.Logger) {
			return
		}

		var roleID *uuid.UUID
		if req.RoleID != nil {
			parsed, err := uuid.Parse(*req.RoleID)
			if err != nil {
				_ = utils.WriteBadRequest(w, "Invalid role_id", nil)
				return
			}
			roleID = &parsed
		}

		task, err := deps.Tasks.Create(r.Context(), orgID, roleID, req.Title, req.Input)
		if err != nil {
			HandleServiceError(w, err, deps.Logger)
			return
		}

		if err := utils.WriteCreated(w, task); err != nil {
			deps.Logger.Error("failed to write response", zap.Error(err))
		}
	}
}

// GetTaskHandler returns a single task scoped to the caller's org
func GetTaskHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, ok := requireOrgID(w, r, deps.Logger)
		if !ok {
			return
		}

		taskID, ok := parseUUIDParam(w, chi.URLParam(r, "taskID"), "task_id")
		if !ok {
			return
		}

		task, err := deps.Tasks.Get(r.Context(), orgID, taskID)
		if err != nil {
			HandleServiceError(w, err, deps.Logger)
			return
		}

		if err := utils.WriteOK(w, task); err != nil {
			deps.Logger.Error("failed to write response", zap.Error(err))
		}
	}
}

// ExecuteTaskHandler claims the task and runs it through its role's
// model. Concurrent executes race on the claim; losers get a conflict.
func ExecuteTaskHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, ok := requireOrgID(w, r, deps.Logger)
		if !ok {
			return
		}

		taskID, ok := parseUUIDParam(w, chi.URLParam(r, "taskID"), "task_id")
		if !ok {
			return
		}

		task, err := deps.Tasks.Execute(r.Context(), orgID, taskID)
		if err != nil {
			HandleServiceError(w, err, deps.Logger)
			return
		}

		if err := utils.WriteOK(w, task); err != nil {
			deps.Logger.Error("failed to write response", zap.Error(err))
		}
	}
}
