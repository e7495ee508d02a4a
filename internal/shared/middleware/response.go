package middleware

import (
	"encoding/json"
	"log"
	"net/http"
)

// Failure codes carried in ErrorResponse.Code.
const (
	CodeInvalidJSON       = "invalid_json"
	CodeValidationFailed  = "validation_failed"
	CodeUnknownEntityType = "unknown_entity_type"
	CodeUnauthorized      = "unauthorized"
	CodeMethodNotAllowed  = "method_not_allowed"
	CodeOriginNotAllowed  = "origin_not_allowed"
	CodeInternalError     = "internal_error"
)

// FieldError is one structural problem in a request body.
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ErrorResponse is the failure envelope shared by every sync endpoint.
type ErrorResponse struct {
	Success bool         `json:"success"`
	Error   string       `json:"error"`
	Code    string       `json:"code,omitempty"`
	Errors  []FieldError `json:"errors,omitempty"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

// WriteError writes a failure envelope.
func WriteError(w http.ResponseWriter, status int, code, message string, fields ...FieldError) {
	WriteJSON(w, status, ErrorResponse{
		Success: false,
		Error:   message,
		Code:    code,
		Errors:  fields,
	})
}
