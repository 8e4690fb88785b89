package domain

import "errors"

// Sentinel errors shared by the repositories, the policy engine and the HTTP layer.
var (
	ErrValidation         = errors.New("validation failed")
	ErrAuthRequired       = errors.New("authentication required")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrUsernameTaken      = errors.New("username taken")
	ErrUserNotFound       = errors.New("user does not exist")
	ErrWeakPassword       = errors.New("password too weak")
	ErrPasswordMismatch   = errors.New("passwords don't match")
	ErrVerificationFailed = errors.New("verification failed, try again")
)

// ValidationError is a user-correctable rejection of a single input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// Is makes every ValidationError match ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Invalid builds a ValidationError for field.
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// ErrorResponse is the JSON error envelope returned to clients.
type ErrorResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after,omitempty"`
}
