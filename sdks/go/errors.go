package deskguard

import (
	"errors"
	"fmt"
)

// Sentinel errors for use with errors.Is().
var (
	// ErrNotFound is returned when the requested template or version
	// does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalid is returned when the server rejects a request as
	// invalid.
	ErrInvalid = errors.New("invalid request")

	// ErrConflict is returned when the operation loses a concurrent
	// update or hits ambiguous policy scopes.
	ErrConflict = errors.New("conflict")

	// ErrServerUnreachable is returned when the Deskguard server cannot
	// be contacted and the client is configured to fail closed.
	ErrServerUnreachable = errors.New("server unreachable")
)

// APIError is the base error type for server-reported failures.
type APIError struct {
	// StatusCode is the HTTP status the server returned.
	StatusCode int
	// Message is the server's error message.
	Message string
}

// Error returns the error message.
func (e *APIError) Error() string {
	return fmt.Sprintf("deskguard [HTTP %d]: %s", e.StatusCode, e.Message)
}

// FieldError is one invalid field in a rejected request.
type FieldError struct {
	// Field is the dotted path of the offending field.
	Field string `json:"field"`
	// Reason explains why the field was rejected.
	Reason string `json:"reason"`
}

// ValidationError is returned for HTTP 400 responses. It carries the
// complete per-field breakdown the server produced.
type ValidationError struct {
	// Message is the server's summary message.
	Message string
	// Fields lists every invalid field.
	Fields []FieldError
}

// Error returns a human-readable description of the validation failure.
func (e *ValidationError) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("validation failed (%d fields): %s", len(e.Fields), e.Message)
	}
	return "validation failed: " + e.Message
}

// Is reports whether this error matches the target error.
// It supports errors.Is(err, ErrInvalid).
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalid
}

// NotFoundError is returned for HTTP 404 responses.
type NotFoundError struct {
	// Message is the server's error message.
	Message string
}

// Error returns a human-readable description.
func (e *NotFoundError) Error() string {
	return e.Message
}

// Is reports whether this error matches the target error.
// It supports errors.Is(err, ErrNotFound).
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ConflictError is returned for HTTP 409 responses: illegal lifecycle
// transitions, lost publish races, or ambiguous scope resolution.
type ConflictError struct {
	// Message is the server's error message.
	Message string
}

// Error returns a human-readable description.
func (e *ConflictError) Error() string {
	return e.Message
}

// Is reports whether this error matches the target error.
// It supports errors.Is(err, ErrConflict).
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// ServerUnreachableError is returned when the Deskguard server cannot
// be contacted and the client fails closed.
type ServerUnreachableError struct {
	// Cause is the underlying transport error.
	Cause error
}

// Error returns a human-readable description.
func (e *ServerUnreachableError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("server unreachable: %v", e.Cause)
	}
	return "server unreachable"
}

// Unwrap returns the underlying error cause.
func (e *ServerUnreachableError) Unwrap() error {
	return e.Cause
}

// Is reports whether this error matches the target error.
// It supports errors.Is(err, ErrServerUnreachable).
func (e *ServerUnreachableError) Is(target error) bool {
	return target == ErrServerUnreachable
}
