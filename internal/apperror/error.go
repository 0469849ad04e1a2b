// Package apperror defines the error kinds returned by the store, ledger and workflow.
// Every failure that leaves the core carries a machine-readable Code so the transport
// layer can translate it without inspecting messages.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeNotFound          = "NOT_FOUND"
	CodeInvalidState      = "INVALID_STATE"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeInsufficientStock = "INSUFFICIENT_STOCK"
	CodeConflict          = "CONFLICT"
	CodeDuplicate         = "DUPLICATE_ENTRY"
	CodeValidation        = "VALIDATION_ERROR"

	// Store failures.
	CodeTransient = "TRANSIENT_ERROR"
	CodePermanent = "PERMANENT_ERROR"
	CodeInternal  = "INTERNAL_ERROR"
)

// AppError is the error type shared by every layer of the server.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (ids, quantities, statuses)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Factory functions ---

func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewInvalidState is returned when a transition is not legal from the current status.
func NewInvalidState(entity, from, event string) *AppError {
	return &AppError{
		Code:       CodeInvalidState,
		Message:    fmt.Sprintf("cannot %s %s in status %s", event, entity, from),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "status": from, "event": event},
	}
}

func NewUnauthorized(message string) *AppError {
	return &AppError{
		Code:       CodeUnauthorized,
		Message:    message,
		HTTPStatus: http.StatusForbidden,
	}
}

func NewInsufficientStock(inventoryID string, requested, available int) *AppError {
	return &AppError{
		Code:       CodeInsufficientStock,
		Message:    fmt.Sprintf("Insufficient stock. Only %d items available.", available),
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{
			"inventory_id": inventoryID,
			"requested":    requested,
			"available":    available,
		},
	}
}

// NewConflict signals a lost optimistic-concurrency race; callers may retry.
func NewConflict(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    "Record was modified concurrently. Please retry.",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewDuplicate is a Conflict raised by a unique key on create.
func NewDuplicate(entity, field string, value any) *AppError {
	return &AppError{
		Code:       CodeDuplicate,
		Message:    fmt.Sprintf("%s with this %s already exists", entity, field),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "field": field, "value": value},
	}
}

func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewTransient wraps a store failure that is safe to retry.
func NewTransient(err error) *AppError {
	return &AppError{
		Code:       CodeTransient,
		Message:    "Storage temporarily unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

// NewPermanent wraps a non-retryable store failure.
func NewPermanent(err error) *AppError {
	return &AppError{
		Code:       CodePermanent,
		Message:    "Storage error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewInternal creates an internal server error (hides details from client)
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// --- Helper functions ---

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetHTTPStatus returns appropriate HTTP status for any error
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

func hasCode(err error, codes ...string) bool {
	appErr, ok := AsAppError(err)
	if !ok {
		return false
	}
	for _, c := range codes {
		if appErr.Code == c {
			return true
		}
	}
	return false
}

func IsNotFound(err error) bool          { return hasCode(err, CodeNotFound) }
func IsInvalidState(err error) bool      { return hasCode(err, CodeInvalidState) }
func IsUnauthorized(err error) bool      { return hasCode(err, CodeUnauthorized) }
func IsInsufficientStock(err error) bool { return hasCode(err, CodeInsufficientStock) }
func IsValidation(err error) bool        { return hasCode(err, CodeValidation) }
func IsTransient(err error) bool         { return hasCode(err, CodeTransient) }
func IsPermanent(err error) bool         { return hasCode(err, CodePermanent) }

// IsConflict reports both version conflicts and unique-key duplicates.
func IsConflict(err error) bool { return hasCode(err, CodeConflict, CodeDuplicate) }
