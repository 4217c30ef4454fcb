package utils

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Message string                 `json:"message,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// SuccessResponse wraps every successful payload
type SuccessResponse struct {
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// errorKinds maps a status to its machine-readable error and default message
var errorKinds = map[int]struct{ code, message string }{
	http.StatusBadRequest:          {"bad_request", "Bad request"},
	http.StatusUnauthorized:        {"unauthorized", "Authentication required"},
	http.StatusForbidden:           {"forbidden", "Access forbidden"},
	http.StatusNotFound:            {"not_found", "Resource not found"},
	http.StatusConflict:            {"conflict", "Resource conflict"},
	http.StatusInternalServerError: {"internal_error", "Internal server error"},
	http.StatusServiceUnavailable:  {"service_unavailable", "Service temporarily unavailable"},
}

// WriteJSON writes data as JSON with the given status. A nil data writes
// headers only.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if data == nil {
		return nil
	}
	return json.NewEncoder(w).Encode(data)
}

// WriteError writes an ErrorResponse for status. Unknown statuses are
// reported as internal errors; an empty message uses the status default.
func WriteError(w http.ResponseWriter, status int, message string, details map[string]interface{}) error {
	kind, ok := errorKinds[status]
	if !ok {
		kind = errorKinds[http.StatusInternalServerError]
	}
	if message == "" {
		message = kind.message
	}
	return WriteJSON(w, status, ErrorResponse{
		Error:   kind.code,
		Message: message,
		Details: details,
	})
}

// WriteOK writes data with 200
func WriteOK(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, SuccessResponse{Data: data})
}

// WriteCreated writes data with 201
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, SuccessResponse{Data: data})
}

// WriteNoContent writes an empty 204
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteBadRequest writes a 400 error
func WriteBadRequest(w http.ResponseWriter, message string, details map[string]interface{}) error {
	return WriteError(w, http.StatusBadRequest, message, details)
}

// WriteUnauthorized writes a 401 error
func WriteUnauthorized(w http.ResponseWriter, message string) error {
	return WriteError(w, http.StatusUnauthorized, message, nil)
}

// WriteForbidden writes a 403 error
func WriteForbidden(w http.ResponseWriter, message string) error {
	return WriteError(w, http.StatusForbidden, message, nil)
}

// WriteNotFound writes a 404 error
func WriteNotFound(w http.ResponseWriter, message string) error {
	return WriteError(w, http.StatusNotFound, message, nil)
}

// WriteConflict writes a 409 error
func WriteConflict(w http.ResponseWriter, message string, details map[string]interface{}) error {
	return WriteError(w, http.StatusConflict, message, details)
}

// WriteInternalServerError writes a 500 error
func WriteInternalServerError(w http.ResponseWriter, message string) error {
	return WriteError(w, http.StatusInternalServerError, message, nil)
}

// WriteServiceUnavailable writes a 503 error
func WriteServiceUnavailable(w http.ResponseWriter, message string) error {
	return WriteError(w, http.StatusServiceUnavailable, message, nil)
}
