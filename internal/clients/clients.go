// Package clients defines the error classification shared by the external
// API clients. Transient errors are worth retrying, permanent ones are not.
package clients

import (
	"errors"
	"fmt"
)

// TransientError marks a provider failure that a later retry may clear:
// network trouble, 5xx responses, rate limiting.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks a provider failure that retrying cannot fix:
// rejected credentials, invalid parameters, missing resources.
type PermanentError struct {
	Op  string
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

func Transientf(op, format string, args ...any) error {
	return &TransientError{Op: op, Err: fmt.Errorf(format, args...)}
}

func Permanentf(op, format string, args ...any) error {
	return &PermanentError{Op: op, Err: fmt.Errorf(format, args...)}
}

// IsTransient reports whether err is retriable. Unclassified errors count
// as transient so that plain network failures get their retries.
func IsTransient(err error) bool {
	var perm *PermanentError
	return !errors.As(err, &perm)
}

// ClassifyStatus wraps an HTTP-level failure as transient or permanent
// based on the status code.
func ClassifyStatus(op string, status int, body string) error {
	if status >= 500 || status == 429 {
		return Transientf(op, "unexpected status %d: %s", status, body)
	}
	return Permanentf(op, "unexpected status %d: %s", status, body)
}
