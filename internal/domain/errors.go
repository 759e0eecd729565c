package domain

import (
	"errors"
	"fmt"
)

// ValidationError reports a malformed or unknown request input. Detail is
// safe to show to end users verbatim.
type ValidationError struct {
	Field  string
	Detail string
}

// NewValidationError creates a ValidationError for the named request field.
func NewValidationError(field, detail string) *ValidationError {
	return &ValidationError{Field: field, Detail: detail}
}

func (e *ValidationError) Error() string {
	return e.Detail
}

// UpstreamError is a feed hard failure: the provider could not be reached or
// answered with something unusable after the retry budget was spent.
type UpstreamError struct {
	Feed Feed
	Err  error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s feed unavailable: %v", e.Feed, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// InternalError is an unexpected failure inside rule evaluation or
// aggregation.
type InternalError struct {
	Op  string
	Err error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal error during %s: %v", e.Op, e.Err)
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

// ErrDecisionNotFound is returned by audit stores for an unknown decision id.
var ErrDecisionNotFound = errors.New("decision not found")
