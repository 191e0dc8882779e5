package common

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthenticated      = errors.New("unauthenticated")
	ErrInvalidOrExpired     = errors.New("invalid or expired token")
	ErrNotFound             = errors.New("not found")
	ErrForbidden            = errors.New("forbidden")
	ErrAssignedUserNotFound = errors.New("assigned user not found")
	ErrValidation           = errors.New("validation failed")
	ErrConflict             = errors.New("already exists")
	ErrStore                = errors.New("store failure")
)

// ValidationError describes malformed input for a single field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// StoreError wraps an underlying persistence error so that it matches ErrStore
// while keeping the cause reachable.
func StoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStore, err)
}

// Kind names the failure class of err as reported to clients.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return "Unauthenticated"
	case errors.Is(err, ErrInvalidOrExpired):
		return "InvalidOrExpired"
	case errors.Is(err, ErrAssignedUserNotFound):
		return "AssignedUserNotFound"
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrForbidden):
		return "Forbidden"
	case errors.Is(err, ErrValidation):
		return "ValidationFailed"
	case errors.Is(err, ErrConflict):
		return "Conflict"
	default:
		return "StoreFailure"
	}
}
