package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/opencode-ai/emigo/internal/session"
	"github.com/opencode-ai/emigo/pkg/types"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Error codes
const (
	ErrCodeInvalidRequest   = "INVALID_REQUEST"
	ErrCodeInvalidWorkspace = "INVALID_WORKSPACE"
	ErrCodeConfiguration    = "CONFIGURATION_ERROR"
	ErrCodePromptBuild      = "PROMPT_BUILD_ERROR"
	ErrCodeStream           = "STREAM_ERROR"
	ErrCodeQueueFull        = "QUEUE_FULL"
	ErrCodeShuttingDown     = "SHUTTING_DOWN"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeInternalError    = "INTERNAL_ERROR"
)

// errorCode maps a registry error to an HTTP status and error code.
func errorCode(err error) (int, string) {
	switch {
	case errors.Is(err, session.ErrQueueFull):
		return http.StatusTooManyRequests, ErrCodeQueueFull
	case errors.Is(err, session.ErrClosed):
		return http.StatusServiceUnavailable, ErrCodeShuttingDown
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound, ErrCodeNotFound
	}
	switch types.KindOf(err) {
	case types.KindResolution:
		return http.StatusBadRequest, ErrCodeInvalidWorkspace
	case types.KindConfiguration:
		return http.StatusPreconditionFailed, ErrCodeConfiguration
	case types.KindPromptBuild:
		return http.StatusUnprocessableEntity, ErrCodePromptBuild
	case types.KindStream:
		return http.StatusBadGateway, ErrCodeStream
	}
	return http.StatusInternalServerError, ErrCodeInternalError
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeErrorWithDetails(w, status, code, message, nil)
}

// writeErrorWithDetails writes an error response with details.
func writeErrorWithDetails(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// writeRegistryError writes err with the status and code of its kind.
func writeRegistryError(w http.ResponseWriter, err error) {
	status, code := errorCode(err)
	var details map[string]any
	var cfgErr *types.ConfigurationError
	if errors.As(err, &cfgErr) && len(cfgErr.Missing) > 0 {
		details = map[string]any{"missing": cfgErr.Missing}
	}
	writeErrorWithDetails(w, status, code, err.Error(), details)
}
