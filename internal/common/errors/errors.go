// Package errors provides custom error types for the Foreman application.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes as constants
const (
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodeWouldCycle        = "WOULD_CYCLE"
	ErrCodeBusy              = "BUSY"
	ErrCodeBridgeUnavailable = "BRIDGE_UNAVAILABLE"
	ErrCodeBridgeTimeout     = "BRIDGE_TIMEOUT"
	ErrCodeBridgeProtocol    = "BRIDGE_PROTOCOL"
	ErrCodePersist           = "PERSIST"
	ErrCodeValidation        = "VALIDATION"
	ErrCodeInternalError     = "INTERNAL_ERROR"
)

// AppError represents an application-specific error with additional context.
type AppError struct {
	Code       string `json:"code"`
	Detail     string `json:"detail"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

// Unwrap returns the wrapped error for use with errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Err
}

func newError(code, detail string, status int) *AppError {
	return &AppError{
		Code:       code,
		Detail:     detail,
		HTTPStatus: status,
	}
}

// NotFound creates a new not found error for a resource.
func NotFound(resource string, id string) *AppError {
	return newError(ErrCodeNotFound, fmt.Sprintf("%s with id '%s' not found", resource, id), http.StatusNotFound)
}

// InvalidTransition creates an error for a status transition the lifecycle rejects.
func InvalidTransition(taskID, from, to string) *AppError {
	return newError(ErrCodeInvalidTransition,
		fmt.Sprintf("task '%s' cannot transition from %s to %s", taskID, from, to),
		http.StatusBadRequest)
}

// WouldCycle creates an error for a dependency that would introduce a cycle.
func WouldCycle(taskID, blockerID string) *AppError {
	return newError(ErrCodeWouldCycle,
		fmt.Sprintf("dependency of '%s' on '%s' would create a cycle", taskID, blockerID),
		http.StatusBadRequest)
}

// Busy creates an error for dispatch attempts when no agent is available.
func Busy(detail string) *AppError {
	return newError(ErrCodeBusy, detail, http.StatusConflict)
}

// BridgeUnavailable creates an error for an unreachable worker endpoint.
func BridgeUnavailable(bridge string, err error) *AppError {
	e := newError(ErrCodeBridgeUnavailable,
		fmt.Sprintf("bridge '%s' is unavailable", bridge),
		http.StatusBadGateway)
	e.Err = err
	return e
}

// BridgeTimeout creates an error for a bridge call that exceeded its deadline.
func BridgeTimeout(bridge string) *AppError {
	return newError(ErrCodeBridgeTimeout,
		fmt.Sprintf("bridge '%s' timed out", bridge),
		http.StatusGatewayTimeout)
}

// BridgeProtocol creates an error for a non-200 status or malformed payload from a bridge.
func BridgeProtocol(bridge string, detail string) *AppError {
	return newError(ErrCodeBridgeProtocol,
		fmt.Sprintf("bridge '%s': %s", bridge, detail),
		http.StatusBadGateway)
}

// Persist creates an error for a failed disk write with the mutation reverted.
func Persist(err error) *AppError {
	e := newError(ErrCodePersist, "failed to persist state", http.StatusInternalServerError)
	e.Err = err
	return e
}

// Validation creates a new validation error.
func Validation(detail string) *AppError {
	return newError(ErrCodeValidation, detail, http.StatusBadRequest)
}

// InternalError creates a new internal server error with a wrapped underlying error.
func InternalError(detail string, err error) *AppError {
	e := newError(ErrCodeInternalError, detail, http.StatusInternalServerError)
	e.Err = err
	return e
}

// Wrap wraps an existing error with additional context, returning an AppError.
func Wrap(err error, message string) *AppError {
	if err == nil {
		return nil
	}

	// If the error is already an AppError, preserve its code and status
	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{
			Code:       appErr.Code,
			Detail:     fmt.Sprintf("%s: %s", message, appErr.Detail),
			HTTPStatus: appErr.HTTPStatus,
			Err:        err,
		}
	}

	return InternalError(message, err)
}

// IsNotFound checks if the error is a not found error.
func IsNotFound(err error) bool {
	return HasCode(err, ErrCodeNotFound)
}

// IsWouldCycle checks if the error is a dependency cycle error.
func IsWouldCycle(err error) bool {
	return HasCode(err, ErrCodeWouldCycle)
}

// IsBusy checks if the error is a no-agent-available error.
func IsBusy(err error) bool {
	return HasCode(err, ErrCodeBusy)
}

// HasCode checks whether the error carries the given application error code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// GetHTTPStatus returns the HTTP status code for an error.
// Returns 500 Internal Server Error if the error is not an AppError.
func GetHTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}
