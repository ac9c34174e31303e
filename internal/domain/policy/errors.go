package policy

import (
	"fmt"
	"strings"
)

// FieldError describes a single offending config field.
type FieldError struct {
	// Field is the dotted path of the offending field (e.g. "moderation.roles").
	Field string `json:"field"`
	// Reason is a human-readable explanation of the failure.
	Reason string `json:"reason"`
}

// Error implements the error interface.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// ValidationError rejects a config document in full. It carries one entry
// per offending field, all collected before returning.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Error()
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// NewValidationError creates a ValidationError from field errors.
func NewValidationError(fields ...FieldError) *ValidationError {
	return &ValidationError{Fields: fields}
}

// NotFoundError indicates an unknown template or version id.
type NotFoundError struct {
	// Kind is "template" or "version".
	Kind string
	// ID is the identifier that was not found.
	ID string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// NewTemplateNotFound creates a NotFoundError for a template id.
func NewTemplateNotFound(id string) *NotFoundError {
	return &NotFoundError{Kind: "template", ID: id}
}

// NewVersionNotFound creates a NotFoundError for a version id.
func NewVersionNotFound(id string) *NotFoundError {
	return &NotFoundError{Kind: "version", ID: id}
}

// StateError indicates an operation that is illegal for the current
// version status, e.g. publishing an archived version.
type StateError struct {
	// Op is the attempted operation.
	Op string
	// Status is the version's current status.
	Status Status
}

// Error implements the error interface.
func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s a %s version", e.Op, e.Status)
}

// ConflictError indicates a lost concurrency race (publish) or an
// ambiguous scope resolution. Designed to be retried by the caller after
// re-fetching current state; never retried internally.
type ConflictError struct {
	// Reason explains the conflict.
	Reason string
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	return e.Reason
}

// ProviderError indicates the simulation's external data fetch failed or
// timed out. Reported to the caller, not retried automatically.
type ProviderError struct {
	// Op is the provider operation that failed.
	Op string
	// Err is the underlying failure.
	Err error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("domain data provider: %s: %v", e.Op, e.Err)
}

// Unwrap exposes the underlying error for errors.Is/As.
func (e *ProviderError) Unwrap() error {
	return e.Err
}
