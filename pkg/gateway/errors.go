package gateway

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidLookup is matched by every error returned from Validate.
	ErrInvalidLookup = errors.New("invalid lookup")
	// ErrNotFound is returned by single lookups when the item does not exist or is
	// not visible to the caller.
	ErrNotFound = errors.New("not found")
)

// ValidationError reports the lookup field that failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrInvalidLookup, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidLookup
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
