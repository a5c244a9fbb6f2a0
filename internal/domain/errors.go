package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrUpstreamFetch = errors.New("upstream fetch failed")
)

// ErrInsufficientData is never returned; it labels the note on reports built from an empty window.
var ErrInsufficientData = errors.New("insufficient data")

// ValidationError rejects a request parameter before any fetch happens.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// UpstreamError reports a data provider that was unreachable or answered with a non-success status.
type UpstreamError struct {
	Provider string
	Status   int
	Err      error
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

// Is matches ErrUpstreamFetch so callers can test the category without unwrapping.
func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstreamFetch
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
