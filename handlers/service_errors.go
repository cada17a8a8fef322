package handlers

import (
	"errors"
	"net/http"

	"github.com/upb/omniagent/services"
	"github.com/upb/omniagent/utils"
	"go.uber.org/zap"
)

// HandleServiceError maps domain errors to HTTP responses
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	message := publicMessage(err)
	details := services.GetErrorDetails(err)

	var status int
	switch services.GetErrorType(err) {
	case services.ErrorTypeValidation:
		status = http.StatusBadRequest
	case services.ErrorTypeNotFound:
		status = http.StatusNotFound
	case services.ErrorTypeConflict:
		status = http.StatusConflict
	case services.ErrorTypeQuota:
		status = http.StatusTooManyRequests
	case services.ErrorTypeTimeout:
		status = http.StatusGatewayTimeout
	case services.ErrorTypeUnavailable:
		status = http.StatusServiceUnavailable
	case services.ErrorTypeExternal:
		status = http.StatusBadGateway
	case services.ErrorTypeCanceled:
		status = utils.StatusClientClosedRequest
	case services.ErrorTypeInternal:
		logger.Error("internal server error", zap.Error(err))
		status, message, details = http.StatusInternalServerError, "An internal error occurred", nil
	default:
		logger.Error("unhandled error type",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))))
		status, message, details = http.StatusInternalServerError, "An unexpected error occurred", nil
	}

	if services.IsExternalError(err) {
		logger.Warn("backend call failed",
			zap.Int("status", status),
			zap.Any("details", details),
			zap.Error(err))
	}

	if err := utils.WriteError(w, status, message, details); err != nil {
		logger.Error("failed to write error response", zap.Int("status", status), zap.Error(err))
	}
}

// publicMessage returns the domain message without the wrapped cause so
// transport errors and keys never reach the client.
func publicMessage(err error) string {
	var domainErr *services.DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Message
	}
	return err.Error()
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

	// Generic validation error
	if err := utils.WriteBadRequest(w, err.Error(), nil); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}
