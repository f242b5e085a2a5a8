package publish

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"instapost/internal/clients"
)

// Policy is an attempt-bounded exponential backoff: Base before the second
// attempt, multiplied by Factor for each further one.
type Policy struct {
	MaxAttempts int
	Base        time.Duration
	Factor      float64
}

func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 5, Base: 2 * time.Second, Factor: 1.5}
}

// Delay returns the pause after the given failed attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	d := float64(p.Base)
	for i := 1; i < attempt; i++ {
		d *= p.Factor
	}
	return time.Duration(d)
}

// RetryExhaustedError reports that every attempt of a retried operation failed.
type RetryExhaustedError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Err }

// SleepFunc pauses for d or returns early with the context's error.
// Injectable so tests can run the backoff schedule without waiting it out.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// retry runs fn until it succeeds, fails non-retriably, or the policy's
// attempts run out.
func retry(ctx context.Context, op string, p Policy, sleep SleepFunc, retriable func(error) bool, fn func(context.Context) error) error {
	var last error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, p.Delay(attempt-1)); err != nil {
				return err
			}
		}
		last = fn(ctx)
		if last == nil {
			return nil
		}
		if !retriable(last) {
			return last
		}
	}
	return &RetryExhaustedError{Op: op, Attempts: p.MaxAttempts, Err: last}
}

// Provider error texts that experience shows clear up on their own. Kept
// deliberately narrow; anything else fails fast.
var transientSubstrings = []string{
	"media not ready",
	"Media Not Found",
	"2207027",
	"2207006",
}

// isTransportError reports whether err is worth a second pass at the whole
// post step: transport-level trouble or a narrowly matched transient
// provider message. Credential, validation and quota errors are not.
func isTransportError(err error) bool {
	if err == nil {
		return false
	}
	var exhausted *RetryExhaustedError
	if errors.As(err, &exhausted) {
		return false
	}
	var perm *clients.PermanentError
	if errors.As(err, &perm) {
		msg := err.Error()
		for _, s := range transientSubstrings {
			if strings.Contains(msg, s) {
				return true
			}
		}
		return false
	}
	return clients.IsTransient(err)
}
