package domain

import "errors"

type (
	// NotFoundError indicates a resource was not found
	NotFoundError struct {
		Message string
	}

	// ValidationError indicates invalid input
	ValidationError struct {
		Message string
	}
)

func (e *NotFoundError) Error() string   { return e.Message }
func (e *ValidationError) Error() string { return e.Message }

// Is lets errors.Is match the typed errors against their sentinels.
func (e *NotFoundError) Is(target error) bool   { return target == ErrNotFound }
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Sentinel errors - use with errors.Is()
var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")

	// ErrIdentityProvider marks failures of the identity provider admin API
	ErrIdentityProvider = errors.New("authentication service error")
)

// NewNotFound returns a NotFoundError for the given resource description.
func NewNotFound(msg string) error {
	return &NotFoundError{Message: msg}
}

// NewValidation returns a ValidationError carrying msg.
func NewValidation(msg string) error {
	return &ValidationError{Message: msg}
}
