package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for the request/ingestion surface. Handlers map these to
// HTTP status codes; services wrap them with context via fmt.Errorf and %w.
var (
	// ErrInvalidArgument indicates bad caller input (400).
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnauthorized indicates a failed webhook or API credential check (403).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrJobNotFound indicates no job exists for the given ID, or the job is
	// not visible to the requesting user (404).
	ErrJobNotFound = errors.New("job not found")

	// ErrInvalidTransition indicates a state-machine transition was requested
	// from a status that does not permit it.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ProviderErrorKind distinguishes how an outbound provider call failed.
type ProviderErrorKind string

const (
	ProviderErrorAPI         ProviderErrorKind = "provider_error"       // non-success HTTP status
	ProviderErrorTimeout     ProviderErrorKind = "provider_timeout"     // deadline exceeded
	ProviderErrorUnavailable ProviderErrorKind = "provider_unavailable" // transport failure
)

// ProviderError wraps a failed scraping-provider call. The caller contract
// requires the job to be marked FAILED with Message before this error is
// surfaced, so the provider call and the job's failure state never diverge.
type ProviderError struct {
	Kind    ProviderErrorKind
	Message string
	Err     error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError builds a ProviderError with a human-readable message.
func NewProviderError(kind ProviderErrorKind, message string, err error) *ProviderError {
	return &ProviderError{Kind: kind, Message: message, Err: err}
}

// IsProviderError reports whether err is a ProviderError of any kind.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}

// SchemaValidationError indicates a payload (LLM output or webhook body) that
// does not conform to its fixed schema. Jobs are marked FAILED with Detail;
// the non-conforming payload is never persisted as a report.
type SchemaValidationError struct {
	Subject string
	Err     error
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("schema validation failed for %s: %v", e.Subject, e.Err)
}

func (e *SchemaValidationError) Unwrap() error {
	return e.Err
}

// NewSchemaValidationError wraps a validation failure for Subject.
func NewSchemaValidationError(subject string, err error) *SchemaValidationError {
	return &SchemaValidationError{Subject: subject, Err: err}
}

// IsSchemaValidationError reports whether err is a SchemaValidationError.
func IsSchemaValidationError(err error) bool {
	var se *SchemaValidationError
	return errors.As(err, &se)
}
