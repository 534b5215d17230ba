package identity

import (
	"errors"
	"fmt"
)

// NotFoundError indicates a referenced user or API key does not exist.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.Key)
}

// NewNotFound creates a NotFoundError for a resource and lookup key.
func NewNotFound(resource string, key any) *NotFoundError {
	return &NotFoundError{Resource: resource, Key: fmt.Sprintf("%v", key)}
}

// AlreadyExistsError indicates a uniqueness constraint was violated.
type AlreadyExistsError struct {
	Resource string
	Key      string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s already exists: %s", e.Resource, e.Key)
}

// NewAlreadyExists creates an AlreadyExistsError for a resource and key.
func NewAlreadyExists(resource string, key any) *AlreadyExistsError {
	return &AlreadyExistsError{Resource: resource, Key: fmt.Sprintf("%v", key)}
}

// ValidationError indicates invalid input for an identity operation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

// IsAlreadyExists reports whether err is an AlreadyExistsError.
func IsAlreadyExists(err error) bool {
	var e *AlreadyExistsError
	return errors.As(err, &e)
}
