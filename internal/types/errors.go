package types

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConcurrencyConflict is returned when a unit of work is already in flight for a target.
var ErrConcurrencyConflict = errors.New("sync already in progress for target")

// TransientExternalError is a retryable platform failure: rate limits, timeouts, 5xx.
type TransientExternalError struct {
	Op     string
	Status int
	Err    error
}

func (e *TransientExternalError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: transient external error (status %d): %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: transient external error: %v", e.Op, e.Err)
}

func (e *TransientExternalError) Unwrap() error { return e.Err }

// FatalExternalError is a platform failure that will not resolve by retrying,
// such as revoked auth or a playlist deleted upstream.
type FatalExternalError struct {
	Op     string
	Status int
	Err    error
}

func (e *FatalExternalError) Error() string {
	return fmt.Sprintf("%s: fatal external error (status %d): %v", e.Op, e.Status, e.Err)
}

func (e *FatalExternalError) Unwrap() error { return e.Err }

// IsFatal reports whether err carries a FatalExternalError.
func IsFatal(err error) bool {
	var fatal *FatalExternalError
	return errors.As(err, &fatal)
}

// IsTransient reports whether err carries a TransientExternalError.
func IsTransient(err error) bool {
	var transient *TransientExternalError
	return errors.As(err, &transient)
}
