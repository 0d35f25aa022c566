// Package errs defines the categorized error kinds used across the trust
// engine (§7), following the teacher's pkg/utils.Wrap convention but adding
// a Kind so callers can branch on error category with errors.As.
package errs

import (
	"errors"
	"fmt"
)

// Kind categorizes an Error per the propagation policy of §7.
type Kind string

const (
	InvalidInput            Kind = "InvalidInput"
	WeightInvariantViolation Kind = "WeightInvariantViolation"
	ProfileNotFound          Kind = "ProfileNotFound"
	GraphNotInitialized      Kind = "GraphNotInitialized"
	GraphIO                  Kind = "GraphIO"
	CacheIO                  Kind = "CacheIO"
	RateLimitExceeded        Kind = "RateLimitExceeded"
	Timeout                  Kind = "Timeout"
	Network                  Kind = "Network"
)

// Error is a categorized, wrapped error.
type Error struct {
	kind Kind
	msg  string
	err  error
}

// New creates a categorized error with no wrapped cause.
func New(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

// Wrap adds context and a category to err. Returns nil if err is nil,
// mirroring the teacher's utils.Wrap.
func Wrap(kind Kind, err error, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{kind: kind, msg: message, err: err}
}

func (e *Error) Error() string {
	if e.err == nil {
		return fmt.Sprintf("%s: %s", e.kind, e.msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.kind, e.msg, e.err)
}

func (e *Error) Unwrap() error { return e.err }

// Kind returns the error category.
func (e *Error) Kind() Kind { return e.kind }

// KindOf extracts the Kind from err, or "" if err is not a categorized
// *Error.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.kind
	}
	return ""
}

// Is reports whether err is a categorized Error of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
