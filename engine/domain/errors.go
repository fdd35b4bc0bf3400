package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrEmptyText        = errors.New("empty text")
	ErrEmptyQuery       = errors.New("empty query")
	ErrQueryTooLong     = errors.New("query too long")
	ErrInvalidTopK      = errors.New("invalid top_k")
	ErrInvalidID        = errors.New("invalid id")
	ErrInvalidUnit      = errors.New("invalid content unit")
	ErrRetrieval        = errors.New("retrieval failed")
	ErrIndexNotReady    = errors.New("vector index not ready")
)

// ValidationError wraps a sentinel with context.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}
