package remote

import (
	"errors"
	"fmt"
)

// ErrUnderpinningService matches every UnderpinningServiceError.
var ErrUnderpinningService = errors.New("underpinning service error")

// UnderpinningServiceError is a fault of a remote collaborator: a transport failure,
// a non-2xx response or a payload that could not be parsed.
type UnderpinningServiceError struct {
	Service string
	// StatusCode is 0 when no response was received.
	StatusCode int
	// CorrelationID is the request id sent with the failing request.
	CorrelationID string
	Err           error
}

func (e *UnderpinningServiceError) Error() string {
	msg := fmt.Sprintf("%s: service %q failed", ErrUnderpinningService, e.Service)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" with status %d", e.StatusCode)
	}
	if e.CorrelationID != "" {
		msg += fmt.Sprintf(" (correlation id %s)", e.CorrelationID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UnderpinningServiceError) Is(target error) bool {
	return target == ErrUnderpinningService
}

func (e *UnderpinningServiceError) Unwrap() error {
	return e.Err
}

var errUnparsable = errors.New("unparsable payload")
