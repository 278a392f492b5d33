package handlers

import (
	"net/http"

	"github.com/upb/llm-failover/services"
	"github.com/upb/llm-failover/utils"
	"go.uber.org/zap"
)

// HandleServiceError maps domain errors to HTTP responses
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
		details = withValidationFields(details, err)
		if err := utils.WriteBadRequest(w, err.Error(), details); err != nil {
			logger.Error("failed to write bad request response", zap.Error(err))
		}

	case services.IsUnauthorizedError(err):
		if err := utils.WriteUnauthorized(w, err.Error()); err != nil {
			logger.Error("failed to write unauthorized response", zap.Error(err))
		}

	case services.IsConflictError(err):
		if err := utils.WriteError(w, http.StatusConflict, err.Error(), details); err != nil {
			logger.Error("failed to write conflict response", zap.Error(err))
		}

	case services.IsNoEligibleProviderError(err):
		if err := utils.WriteServiceUnavailable(w, err.Error(), details); err != nil {
			logger.Error("failed to write service unavailable response", zap.Error(err))
		}

	case services.IsExternalError(err):
		// Provider source or storage collaborator failed
		logger.Warn("external dependency error", zap.Error(err))
		if err := utils.WriteBadGateway(w, err.Error(), details); err != nil {
			logger.Error("failed to write bad gateway response", zap.Error(err))
		}

	case services.IsInternalError(err):
		// Log internal errors but return generic message
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
		details := withValidationFields(nil, err)
		if err := utils.WriteBadRequest(w, "Validation failed", details); err != nil {
			logger.Error("failed to write validation error response", zap.Error(err))
		}
		return
	}

	// Generic validation error
	if err := utils.WriteBadRequest(w, err.Error(), nil); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}

// withValidationFields copies per-field messages of a wrapped ValidationError into details
func withValidationFields(details map[string]interface{}, err error) map[string]interface{} {
	fields := utils.GetValidationFields(err)
	if len(fields) == 0 {
		return details
	}
	out := make(map[string]interface{}, len(details)+len(fields))
	for k, v := range details {
		out[k] = v
	}
	for k, v := range fields {
		out[k] = v
	}
	return out
}
