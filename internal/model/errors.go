package model

import (
	"errors"
	"fmt"

	"github.com/edwinlov3tt/ignite-report-ai-sub002/internal/resilience"
)

// ValidationError reports malformed input: a missing required field, invalid
// JSON, or an unknown enum value. It is never retried.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// NewValidationError builds a ValidationError.
func NewValidationError(msg string) *ValidationError {
	return &ValidationError{Message: msg}
}

// Validationf builds a ValidationError from a format string.
func Validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a missing session, parent entity, source or record.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.Key)
}

// NewNotFoundError builds a NotFoundError.
func NewNotFoundError(resource, key string) *NotFoundError {
	return &NotFoundError{Resource: resource, Key: key}
}

// BudgetExceededError reports that a session has used up its token budget.
type BudgetExceededError struct {
	SessionID   string
	TokensUsed  int
	TokensLimit int
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("session %s token budget exceeded (%d/%d); start a new session",
		e.SessionID, e.TokensUsed, e.TokensLimit)
}

// Retryable is always false: retrying the same session cannot succeed.
func (e *BudgetExceededError) Retryable() bool { return false }

// ExternalServiceError wraps a failure from the embedder, the language model,
// the search RPC or a fetch/research provider.
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// Retryable reports whether the underlying failure is transient.
func (e *ExternalServiceError) Retryable() bool { return resilience.IsTransient(e.Err) }

// NewExternalServiceError wraps err as a failure of the named service.
func NewExternalServiceError(service string, err error) *ExternalServiceError {
	return &ExternalServiceError{Service: service, Err: err}
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsNotFound reports whether err is or wraps a NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsBudgetExceeded reports whether err is or wraps a BudgetExceededError.
func IsBudgetExceeded(err error) bool {
	var target *BudgetExceededError
	return errors.As(err, &target)
}

// IsExternal reports whether err is or wraps an ExternalServiceError.
func IsExternal(err error) bool {
	var target *ExternalServiceError
	return errors.As(err, &target)
}
