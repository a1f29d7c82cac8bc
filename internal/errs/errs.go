// Package errs provides the error taxonomy every collaborator in the
// planner reports through, so the dispatcher can branch on kind instead of
// parsing error strings.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for retry and reporting decisions.
type Kind string

const (
	// KindNotFound means the referenced entity does not exist. Terminal,
	// no retry.
	KindNotFound Kind = "not_found"
	// KindTransient means a temporary failure in a collaborator
	// (rate-limit, timeout, 5xx-equivalent). Retried per policy.
	KindTransient Kind = "transient"
	// KindValidation means the collaborator's response failed a
	// structural check. Retried once.
	KindValidation Kind = "validation"
	// KindPermanent means a caller-side unrecoverable failure (auth,
	// quota, 4xx-equivalent non-rate-limit). No retry.
	KindPermanent Kind = "permanent"
	// KindCancelled means the call was cancelled via context, typically
	// by the job-level deadline. No retry.
	KindCancelled Kind = "cancelled"
	// KindTimeout means the job-level deadline expired. All in-flight
	// work is cancelled.
	KindTimeout Kind = "timeout"
	// KindPoison means the queue redelivery threshold was exceeded.
	// No re-run.
	KindPoison Kind = "poison"
	// KindInternal means an orchestrator-side invariant violation. The
	// job fails; the queue message may still be retried.
	KindInternal Kind = "internal"
)

// Error wraps an underlying cause with a Kind, satisfying errors.Is/As via
// Unwrap.
type Error struct {
	Kind  Kind
	Msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Unwrap exposes the wrapped cause to errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.cause
}

// New builds an Error with no wrapped cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap builds an Error carrying kind around an existing cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, cause: cause}
}

// Newf builds an Error with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error, defaulting to KindInternal otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Retryable reports whether an error of this kind should be retried by the
// generic backoff policy. validation retries are bounded separately by the
// caller (one extra attempt only).
func (k Kind) Retryable() bool {
	switch k {
	case KindTransient, KindValidation:
		return true
	default:
		return false
	}
}
