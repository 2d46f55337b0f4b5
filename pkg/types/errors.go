// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"errors"
	"fmt"
)

// FailureKind classifies conversion protocol errors. Every error that
// crosses a component boundary in this system is a *Failure with one of
// these kinds, so callers can branch on class rather than message text.
type FailureKind string

const (
	// FailValidation: bad file type, size, or options. Resolved locally;
	// a validation failure never reaches the backend.
	FailValidation FailureKind = "validation"

	// FailSubmission: the backend rejected the conversion request.
	FailSubmission FailureKind = "submission"

	// FailTransport: the backend was unreachable. Retryable after a delay.
	FailTransport FailureKind = "transport"

	// FailConversion: the backend processed the job and reported failure.
	FailConversion FailureKind = "conversion"

	// FailNotFound: the job or artifact no longer exists (expired or unknown).
	FailNotFound FailureKind = "not_found"

	// FailTimeout: the client gave up polling before a terminal status.
	FailTimeout FailureKind = "timeout"
)

// Failure is a classified protocol error carrying a user-displayable
// message. HTTPStatus holds the backend status code that produced it,
// when one exists.
type Failure struct {
	Kind       FailureKind
	Message    string
	HTTPStatus int
}

// Error returns the user-displayable message.
func (f *Failure) Error() string {
	return f.Message
}

// Retryable reports whether retrying the same request later can succeed.
// Only transport failures qualify; everything else is terminal for the job.
func (f *Failure) Retryable() bool {
	return f.Kind == FailTransport
}

// NewFailure builds a Failure of the given kind with a formatted message.
func NewFailure(kind FailureKind, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// AsFailure extracts a *Failure from err's chain. The second return value
// reports whether one was found.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// FailureIs reports whether err carries a Failure of the given kind.
func FailureIs(err error, kind FailureKind) bool {
	f, ok := AsFailure(err)
	return ok && f.Kind == kind
}
