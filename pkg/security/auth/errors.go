package auth

import "errors"

// AuthenticationError means the request carried no usable credentials
// or the credentials failed verification. Mapped to HTTP 401.
type AuthenticationError struct {
	Message string
}

func (e *AuthenticationError) Error() string {
	return e.Message
}

// NewAuthentication creates an AuthenticationError with the given message.
// The message is returned to the caller, so it must not echo credential
// material.
func NewAuthentication(message string) *AuthenticationError {
	return &AuthenticationError{Message: message}
}

// AuthorizationError means an authenticated principal lacks the group
// membership an operation requires. Mapped to HTTP 403.
type AuthorizationError struct {
	Message string
}

func (e *AuthorizationError) Error() string {
	return e.Message
}

// NewAuthorization creates an AuthorizationError with the given message.
func NewAuthorization(message string) *AuthorizationError {
	return &AuthorizationError{Message: message}
}

// IsAuthentication reports whether err is an AuthenticationError.
func IsAuthentication(err error) bool {
	var e *AuthenticationError
	return errors.As(err, &e)
}

// IsAuthorization reports whether err is an AuthorizationError.
func IsAuthorization(err error) bool {
	var e *AuthorizationError
	return errors.As(err, &e)
}
