// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
	"fmt"
)

// Common application errors.
var (
	// Database errors.
	ErrNotFound = errors.New("not found")

	// Plaid errors.
	ErrPlaidConnection = errors.New("plaid connection failed")
	ErrPlaidRateLimit  = errors.New("plaid rate limit exceeded")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// ConfigurationError reports missing credentials or configuration. It is fatal for the
// operation that needed the configuration, not for the whole run.
type ConfigurationError struct {
	Err     error
	Setting string
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error (%s): %v", e.Setting, e.Err)
	}
	return fmt.Sprintf("configuration error: %s is not configured", e.Setting)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// NewConfigurationError creates a ConfigurationError for setting.
func NewConfigurationError(setting string, err error) error {
	if err == nil {
		err = ErrMissingConfig
	}
	return &ConfigurationError{Setting: setting, Err: err}
}

// ValidationError reports a malformed response from an external collaborator.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// NewValidationError creates a ValidationError.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// UpstreamError reports a network or provider failure. Callers decide whether to retry.
type UpstreamError struct {
	Err        error
	Provider   string
	StatusCode int
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s upstream error (status %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s upstream error: %v", e.Provider, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// NewUpstreamError wraps err as an UpstreamError from provider.
func NewUpstreamError(provider string, statusCode int, err error) error {
	return &UpstreamError{Provider: provider, StatusCode: statusCode, Err: err}
}

// InvariantViolation reports an attempted write to a protected spreadsheet region.
type InvariantViolation struct {
	Range  string
	Reason string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation: refusing to write %s: %s", e.Range, e.Reason)
}

// Kind returns a short machine-readable name for the error class, used in audit payloads.
func Kind(err error) string {
	var (
		cfgErr  *ConfigurationError
		valErr  *ValidationError
		upErr   *UpstreamError
		invErr  *InvariantViolation
		userErr *UserError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &cfgErr):
		return "configuration"
	case errors.As(err, &valErr):
		return "validation"
	case errors.As(err, &upErr):
		return "upstream"
	case errors.As(err, &invErr):
		return "invariant"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.As(err, &userErr):
		return "user"
	default:
		return "internal"
	}
}

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}
