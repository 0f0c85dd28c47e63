// Package services implements the case state machine: one service per
// transition, each following the same shape — load snapshot, validate
// preconditions, apply a compare-and-swap mutation, then write side effects.
// State conflicts are outcomes, not errors; errors are reserved for I/O
// failures the worker may retry.
package services

import (
	"errors"
	"fmt"
)

// ErrDecisionInvariant is returned when a doctor decision violates the
// deny-implies-no-support invariant or carries out-of-range values. The API
// surfaces it as 400; it is never retried.
var ErrDecisionInvariant = errors.New("invalid doctor decision")

// RetriableError is a handler failure the worker should retry. Cause is a
// stable machine label; Details is free text. Both are copied into the
// Room-1 failure reply if the job dead-letters.
type RetriableError struct {
	Cause   string
	Details string
	Err     error
}

func (e *RetriableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Cause, e.Details, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Cause, e.Details)
}

func (e *RetriableError) Unwrap() error {
	return e.Err
}

// Retriable wraps an I/O failure with its dead-letter labels.
func Retriable(cause, details string, err error) *RetriableError {
	return &RetriableError{Cause: cause, Details: details, Err: err}
}

// FailureLabels extracts the (cause, details) pair to propagate at
// dead-letter time. Non-retriable errors fall back to a generic cause.
func FailureLabels(err error) (cause, details string) {
	var re *RetriableError
	if errors.As(err, &re) {
		return re.Cause, re.Details
	}
	return "job_failed", err.Error()
}
