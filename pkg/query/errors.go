package query

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedOperation is returned when an operation cannot be answered
	// correctly because the query needs in-memory filtering or ordering.
	ErrUnsupportedOperation = errors.New("operation not supported for queries requiring in-memory processing")
	ErrInvalidPaging        = errors.New("invalid paging")
	ErrInvalidOrdering      = errors.New("invalid ordering")
	ErrNoSource             = errors.New("query has no source")
)

// InvalidOperationError names the entity and operation that was rejected.
type InvalidOperationError struct {
	Entity string
	Op     string
}

func (e *InvalidOperationError) Error() string {
	return fmt.Sprintf("%s.%s: %s", e.Entity, e.Op, ErrUnsupportedOperation)
}

func (e *InvalidOperationError) Unwrap() error {
	return ErrUnsupportedOperation
}
