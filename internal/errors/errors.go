package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors
var (
	ErrNotFound    = errors.New("resource not found")
	ErrConflict    = errors.New("resource conflict")
	ErrTimeout     = errors.New("operation timed out")
	ErrUnavailable = errors.New("service unavailable")

	// Business errors
	ErrValidation        = errors.New("validation failed")
	ErrClaimLost         = errors.New("ride already claimed")
	ErrIllegalTransition = errors.New("illegal state transition")
	ErrNotAuthorized     = errors.New("actor not authorized for this ride")
	ErrAlreadyActive     = errors.New("actor already has an active ride")
)

// APIError represents a structured API error
type APIError struct {
	Code       string `json:"error"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
}

func (e *APIError) Error() string {
	return e.Message
}

// NewAPIError creates a new API error
func NewAPIError(code, message string, statusCode int) *APIError {
	return &APIError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Common API errors
func NotFound(resource string) *APIError {
	return NewAPIError("not_found", fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

func BadRequest(message string) *APIError {
	return NewAPIError("bad_request", message, http.StatusBadRequest)
}

func Validation(message string) *APIError {
	return NewAPIError("validation_error", message, http.StatusBadRequest)
}

func Conflict(message string) *APIError {
	return NewAPIError("conflict", message, http.StatusConflict)
}

func InternalError(message string) *APIError {
	return NewAPIError("internal_error", message, http.StatusInternalServerError)
}

func Unauthorized(message string) *APIError {
	return NewAPIError("unauthorized", message, http.StatusUnauthorized)
}

// ClaimLost is the expected outcome of losing a claim race: the offer is
// withdrawn and the caller must not retry the same claim.
func ClaimLost() *APIError {
	return NewAPIError("conflict", "this ride is no longer available", http.StatusConflict)
}

func IllegalTransition() *APIError {
	return NewAPIError("illegal_transition", "this state change is not allowed", http.StatusBadRequest)
}

func NotAuthorized(message string) *APIError {
	return NewAPIError("not_authorized", message, http.StatusForbidden)
}

func AlreadyActive() *APIError {
	return NewAPIError("already_active", "you already have an active ride", http.StatusConflict)
}

func Timeout() *APIError {
	return NewAPIError("timeout", "the operation did not complete in time, retry with backoff", http.StatusGatewayTimeout)
}

func Unavailable(message string) *APIError {
	return NewAPIError("unavailable", message, http.StatusServiceUnavailable)
}
