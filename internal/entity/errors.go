package entity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrNotFound marks an identity miss. It is an outcome, not a failure: the
// caller takes the create path.
var ErrNotFound = errors.New("record not found")

// ErrUnsupported is returned by adapters for operations their backing system
// does not allow (e.g. writing bookings).
var ErrUnsupported = errors.New("operation not supported by this store")

// TransientError wraps failures that are worth retrying: timeouts, rate
// limits, 5xx responses and network errors.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// FatalError wraps failures that will not go away by retrying.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// RecordError describes a malformed record rejected at the adapter boundary.
type RecordError struct {
	Row    int
	Field  string
	Reason string
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("row %d: %s %s", e.Row, e.Field, e.Reason)
}

func NewTransient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Op: op, Err: err}
}

func NewFatal(op string, err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Op: op, Err: err}
}

func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

func IsFatal(err error) bool {
	var f *FatalError
	return errors.As(err, &f)
}

// IsRetryable decides whether the retry engine may try again. Unclassified
// errors are treated as transient; not-found, fatal and caller cancellation
// are not.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrUnsupported):
		return false
	case errors.Is(err, context.Canceled):
		return false
	case IsFatal(err):
		return false
	}
	var rec *RecordError
	return !errors.As(err, &rec)
}

// ClassifyHTTPStatus maps an upstream HTTP status to a typed error.
func ClassifyHTTPStatus(op string, status int, body string) error {
	err := fmt.Errorf("status %d: %s", status, body)
	if status == http.StatusTooManyRequests || status == http.StatusRequestTimeout || status >= 500 {
		return NewTransient(op, err)
	}
	if status == http.StatusNotFound {
		return ErrNotFound
	}
	return NewFatal(op, err)
}
