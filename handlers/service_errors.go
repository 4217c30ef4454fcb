package handlers

import (
	"errors"
	"net/http"

	"github.com/upb/action-gate/services"
	"github.com/upb/action-gate/utils"
	"go.uber.org/zap"
)

// statusByType maps error types whose message is safe to return as is
var statusByType = map[services.ErrorType]int{
	services.ErrorTypeNotFound:     http.StatusNotFound,
	services.ErrorTypeValidation:   http.StatusBadRequest,
	services.ErrorTypeUnauthorized: http.StatusUnauthorized,
	services.ErrorTypeForbidden:    http.StatusForbidden,
	services.ErrorTypeEscalated:    http.StatusForbidden,
	services.ErrorTypeConflict:     http.StatusConflict,
}

// HandleServiceError writes err as an HTTP error. Store, oracle and internal
// failures get a generic message; their cause is only logged.
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	errType := services.GetErrorType(err)
	var writeErr error
	if status, ok := statusByType[errType]; ok {
		writeErr = utils.WriteError(w, status, publicMessage(err), services.GetErrorDetails(err))
	} else {
		switch errType {
		case services.ErrorTypeStorageUnavailable, services.ErrorTypeOracleUnavailable:
			logger.Error("dependency unavailable", zap.String("error_type", string(errType)), zap.Error(err))
			writeErr = utils.WriteServiceUnavailable(w, "Service temporarily unavailable")
		case services.ErrorTypeInternal:
			logger.Error("internal server error", zap.Error(err))
			writeErr = utils.WriteInternalServerError(w, "An internal error occurred")
		default:
			logger.Error("unclassified error", zap.Error(err))
			writeErr = utils.WriteInternalServerError(w, "An unexpected error occurred")
		}
	}

	if writeErr != nil {
		logger.Error("failed to write error response", zap.Error(writeErr))
	}
}

// HandleValidationError reports a request that failed decoding or struct
// validation as 400
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	message, details := err.Error(), map[string]interface{}(nil)
	if utils.IsValidationError(err) {
		message = "Validation failed"
		details = make(map[string]interface{})
		for field, problem := range utils.GetValidationFields(err) {
			details[field] = problem
		}
	}
	if err := utils.WriteBadRequest(w, message, details); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}

func publicMessage(err error) string {
	var de *services.DomainError
	if errors.As(err, &de) {
		return de.Message
	}
	return err.Error()
}
