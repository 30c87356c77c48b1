package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrCollision if an item already exists within the store.
	ErrCollision = errors.New("item already exists")

	// ErrUnknownField if a statement references a field the table does not map.
	ErrUnknownField = errors.New("unknown field")

	ErrCancelled = errors.New("request has been cancelled")
	ErrNotFound  = errors.New("not found")
)

// UnknownFieldError reports a field that table does not map to a column.
func UnknownFieldError(table, field string) error {
	return fmt.Errorf("%w: %q on table %q", ErrUnknownField, field, table)
}
