package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/gray-logic-babybuddy/internal/babybuddy"
	"github.com/nerrad567/gray-logic-babybuddy/internal/coordinator"
	"github.com/nerrad567/gray-logic-babybuddy/internal/integration"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest      = "bad_request"
	ErrCodeNotFound        = "not_found"
	ErrCodeUnauthorized    = "unauthorised"
	ErrCodeConflict        = "conflict"
	ErrCodeInternal        = "internal_error"
	ErrCodeUnavailable     = "unavailable"
	ErrCodeValidation      = "validation_error"
	ErrCodeBadGateway      = "upstream_error"
	ErrCodeUpstreamAuth    = "upstream_unauthorised"
	ErrCodeUpstreamOffline = "upstream_unavailable"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeIntegrationError maps a service call or refresh error to a response.
// Errors from the Baby Buddy server are reported as 502 so clients can tell
// them apart from their own mistakes.
func writeIntegrationError(w http.ResponseWriter, err error) {
	var statusErr *babybuddy.StatusError
	switch {
	case errors.Is(err, integration.ErrUnknownService),
		errors.Is(err, integration.ErrUnknownEntry):
		writeNotFound(w, err.Error())
	case errors.Is(err, integration.ErrInvalidCall),
		errors.Is(err, integration.ErrEntryRequired),
		errors.Is(err, babybuddy.ErrValidation):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, integration.ErrNoRecord):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case babybuddy.IsAuthFailure(err), errors.Is(err, coordinator.ErrAuthFailed):
		writeError(w, http.StatusBadGateway, ErrCodeUpstreamAuth, "Baby Buddy rejected the API key")
	case errors.As(err, &statusErr):
		writeError(w, http.StatusBadGateway, ErrCodeBadGateway, err.Error())
	case errors.Is(err, babybuddy.ErrConnect),
		errors.Is(err, coordinator.ErrUpdateFailed),
		errors.Is(err, coordinator.ErrNotSetUp):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUpstreamOffline, err.Error())
	default:
		writeInternalError(w, "internal server error")
	}
}
