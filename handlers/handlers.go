package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/orgforge/agentplane/middleware"
	"github.com/orgforge/agentplane/services/providers"
	"github.com/orgforge/agentplane/utils"
	"go.uber.org/zap"
)

// ChatMessage is the wire shape of a conversation message.
type ChatMessage struct {
	Role    string `json:"role" validate:"required,oneof=system user assistant"`
	Content string `json:"content" validate:"required"`
}

// toProviderMessages converts wire messages to the provider shape.
func toProviderMessages(msgs []ChatMessage) []providers.Message {
	out := make([]providers.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, providers.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

// chatOptions builds provider options from optional tuning fields.
func chatOptions(temperature *float64, maxTokens *int) *providers.ChatOptions {
	if temperature == nil && maxTokens == nil {
		return nil
	}
	return &providers.ChatOptions{Temperature: temperature, MaxTokens: maxTokens}
}

// requireOrgID pulls the tenant from context; middleware puts it there.
// A zero org means the route was wired without ExtractTenant.
func requireOrgID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	orgID := middleware.GetOrgIDFromContext(r.Context())
	if orgID == uuid.Nil {
		logger.Error("missing tenant information in context",
			zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())))
		_ = utils.WriteUnauthorized(w, "Missing tenant information")
		return uuid.Nil, false
	}
	return orgID, true
}

// decodeAndValidate parses the JSON body into dst and runs struct
// validation, writing the error response itself on failure.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}, logger *zap.Logger) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		logger.Warn("failed to parse request body",
			zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return false
	}
	if err := utils.ValidateStruct(dst); err != nil {
		logger.Warn("request validation failed",
			zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
			zap.Error(err))
		HandleValidationError(w, err, logger)
		return false
	}
	return true
}

// parseUUIDParam parses a UUID route parameter, writing a 400 on failure.
func parseUUIDParam(w http.ResponseWriter, value, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(value)
	if err != nil {
		_ = utils.WriteBadRequest(w, "Invalid "+name, map[string]interface{}{name: value})
		return uuid.Nil, false
	}
	return id, true
}
