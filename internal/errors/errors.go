// Package errors defines the JSON error envelope returned by every
// HTTP endpoint.
package errors

import (
	"encoding/json"
	"net/http"
)

// Stable machine-readable error codes.
const (
	CodeBadRequest         = "BAD_REQUEST"
	CodeNotFound           = "NOT_FOUND"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeTargetNotAllowed   = "TARGET_NOT_ALLOWED"
	CodeInternalError      = "INTERNAL_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// HTTPErrorResponse is the envelope for all error responses.
type HTTPErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody carries the error code, a human-readable message, the
// request correlation id, and optional structured details.
type ErrorBody struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// Respond writes the error envelope with the given status. requestID
// and details may be empty.
func Respond(w http.ResponseWriter, status int, code, message, requestID string, details map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(HTTPErrorResponse{Error: ErrorBody{
		Code:      code,
		Message:   message,
		RequestID: requestID,
		Details:   details,
	}})
}
