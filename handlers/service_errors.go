package handlers

import (
	"net/http"

	"github.com/orgforge/agentplane/services"
	"github.com/orgforge/agentplane/utils"
	"go.uber.org/zap"
)

// HandleServiceError maps domain errors to HTTP responses.
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	details := services.GetErrorDetails(err)

	switch {
	case services.IsNotFoundError(err):
		if err := utils.WriteNotFound(w, err.Error()); err != nil {
			logger.Error("failed to write not found response", zap.Error(err))
		}

	case services.IsValidationError(err):
		if err := utils.WriteBadRequest(w, err.Error(), details); err != nil {
			logger.Error("failed to write bad request response", zap.Error(err))
		}

	case services.IsQuotaExceededError(err):
		// Quota exhaustion is a billing condition, not a rate limit
		if err := utils.WriteJSON(w, http.StatusPaymentRequired, utils.ErrorResponse{
			Error:   "quota_exceeded",
			Message: err.Error(),
			Details: details,
		}); err != nil {
			logger.Error("failed to write quota exceeded response", zap.Error(err))
		}

	case services.IsProviderError(err), services.IsParseError(err):
		if err := utils.WriteJSON(w, http.StatusBadGateway, utils.ErrorResponse{
			Error:   "bad_gateway",
			Message: err.Error(),
			Details: details,
		}); err != nil {
			logger.Error("failed to write bad gateway response", zap.Error(err))
		}

	case services.IsCancelledError(err):
		if err := utils.WriteJSON(w, http.StatusGatewayTimeout, utils.ErrorResponse{
			Error:   "gateway_timeout",
			Message: err.Error(),
			Details: details,
		}); err != nil {
			logger.Error("failed to write gateway timeout response", zap.Error(err))
		}

	case services.IsConflictError(err):
		if err := utils.WriteConflict(w, err.Error(), details); err != nil {
			logger.Error("failed to write conflict response", zap.Error(err))
		}

	case services.IsConfigurationError(err):
		// Misconfiguration is an operator problem; hide specifics
		logger.Error("configuration error", zap.Error(err))
		if err := utils.WriteInternalServerError(w, "Service misconfigured"); err != nil {
			logger.Error("failed to write internal error response", zap.Error(err))
		}

	case services.IsInternalError(err):
		logger.Error("internal server error", zap.Error(err))
		if err := utils.WriteInternalServerError(w, "An internal error occurred"); err != nil {
			logger.Error("failed to write internal error response", zap.Error(err))
		}

	default:
		logger.Error("unhandled error type",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))))
		if err := utils.WriteInternalServerError(w, "An unexpected error occurred"); err != nil {
			logger.Error("failed to write internal error response", zap.Error(err))
		}
	}
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if utils.IsValidationError(err) {
		fields := utils.GetValidationFields(err)
		details := make(map[string]interface{})
		for k, v := range fields {
			details[k] = v
		}
		if err := utils.WriteBadRequest(w, "Validation failed", details); err != nil {
			logger.Error("failed to write validation error response", zap.Error(err))
		}
		return
	}

	if err := utils.WriteBadRequest(w, err.Error(), nil); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}
