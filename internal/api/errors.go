// Package api provides common HTTP API utilities: the error envelope,
// fault-to-status mapping, and JSON response helpers.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/reliefmesh/reliefmesh-go/internal/fault"
)

// Reason codes used by the HTTP layer itself, outside the core taxonomy.
// These should remain stable across versions for client compatibility.
const (
	ReasonUnauthenticated    = "unauthenticated"
	ReasonInvalidCredentials = "invalid_credentials"
	ReasonSessionExpired     = "session_expired"
	ReasonBadRequest         = "bad_request"
	ReasonMethodNotAllowed   = "method_not_allowed"
	ReasonRateLimited        = "rate_limited"
	ReasonInternalError      = "internal_error"
)

// ErrorEnvelope is the standard error response format.
// All error responses use this structure for consistency.
type ErrorEnvelope struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error information.
type ErrorDetail struct {
	Code       string         `json:"code"`        // HTTP status text (e.g., "forbidden")
	ReasonCode string         `json:"reason_code"` // Deterministic reason code
	Message    string         `json:"message"`     // Human-readable message
	Details    map[string]any `json:"details,omitempty"`
}

// WriteError writes a standardized JSON error response.
func WriteError(w http.ResponseWriter, statusCode int, reasonCode, message string) {
	writeEnvelope(w, statusCode, reasonCode, message, nil)
}

// WriteFault maps a core fault to an HTTP response, carrying its structured
// details through to the envelope.
func WriteFault(w http.ResponseWriter, err error) {
	f := fault.As(err)
	if f == nil {
		WriteInternalError(w, "unexpected error")
		return
	}
	writeEnvelope(w, statusForCode(f.Code), f.Reason, f.Message, f.Details)
}

// statusForCode maps fault codes to HTTP statuses.
func statusForCode(code fault.Code) int {
	switch code {
	case fault.CodeNotFound:
		return http.StatusNotFound
	case fault.CodeNotAuthorized:
		return http.StatusForbidden
	case fault.CodeInvalidState:
		return http.StatusConflict
	case fault.CodeInsufficientStock:
		return http.StatusConflict
	case fault.CodeValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeEnvelope(w http.ResponseWriter, statusCode int, reasonCode, message string, details map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	envelope := ErrorEnvelope{
		Error: ErrorDetail{
			Code:       http.StatusText(statusCode),
			ReasonCode: reasonCode,
			Message:    message,
			Details:    details,
		},
	}

	json.NewEncoder(w).Encode(envelope)
}

// WriteJSON writes a JSON success response with the given status.
func WriteJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// WriteUnauthorized writes a 401 Unauthorized error.
func WriteUnauthorized(w http.ResponseWriter, reasonCode, message string) {
	WriteError(w, http.StatusUnauthorized, reasonCode, message)
}

// WriteBadRequest writes a 400 Bad Request error.
func WriteBadRequest(w http.ResponseWriter, reasonCode, message string) {
	WriteError(w, http.StatusBadRequest, reasonCode, message)
}

// WriteTooManyRequests writes a 429 Too Many Requests error.
func WriteTooManyRequests(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, ReasonRateLimited, message)
}

// WriteInternalError writes a 500 Internal Server Error.
// Be careful not to leak sensitive information in the message.
func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, ReasonInternalError, message)
}
