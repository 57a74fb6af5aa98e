// Package store holds what every persistence backend shares: the errors they
// return and the retry policy they apply to transient failures.
package store

import (
	"database/sql/driver"
	"fmt"

	"github.com/pkg/errors"
	"github.com/remind101/pagecrypt/retry"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("store: not found")

	// ErrAlreadyConsumed is returned by the compare-and-mark operations
	// when another request marked the grant first.
	ErrAlreadyConsumed = errors.New("store: grant already consumed")

	// ErrDuplicate is returned when an insert would violate a uniqueness
	// constraint, such as a second enabled key record for a user.
	ErrDuplicate = errors.New("store: duplicate record")
)

// PersistenceError wraps a backend failure with the operation that failed.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Wrap returns nil for a nil err, passes the package sentinel errors through
// unchanged and wraps anything else in a *PersistenceError.
func Wrap(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrAlreadyConsumed), errors.Is(err, ErrDuplicate):
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// Transient reports whether err is worth retrying. Backends extend this with
// their own throttling errors.
func Transient(err error) bool {
	return errors.Is(err, driver.ErrBadConn)
}

// NewRetrier returns the retrier backends use for idempotent reads and writes.
// The compare-and-mark updates are never retried: a lost race is a result,
// not a failure.
func NewRetrier(name string, shouldRetry func(error) bool) *retry.Retrier {
	return retry.NewRetrier(name, retry.DefaultBackOffOpts, shouldRetry)
}
