// Package apperr carries the error taxonomy shared by the lifecycle
// services. The orchestrator is the sole decision point for
// retry-vs-abort-vs-rollback, so every component surfaces one of these
// kinds instead of raw upstream errors.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	// InvalidArgument marks malformed input; no remote call was made.
	InvalidArgument Kind = "INVALID_ARGUMENT"
	// NotFound marks an absent resource; idempotent deletes swallow it.
	NotFound Kind = "NOT_FOUND"
	// Conflict marks a duplicate in-flight workflow for a tenant.
	Conflict Kind = "CONFLICT"
	// UpstreamFailure marks a remote system error during a workflow step.
	UpstreamFailure Kind = "UPSTREAM_FAILURE"
	// IdentityCreationFailed marks the domain rejecting a new identity's attributes.
	IdentityCreationFailed Kind = "IDENTITY_CREATION_FAILED"
	// AuthenticationRequired marks a missing or unparseable bearer token.
	AuthenticationRequired Kind = "AUTHENTICATION_REQUIRED"
)

type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.Kind == t.Kind
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error. Returns nil
// for a nil cause so call sites can wrap unconditionally.
func Wrap(err error, kind Kind, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Cause: err}
}

// KindOf extracts the kind from an error chain; unclassified errors
// report UpstreamFailure.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return UpstreamFailure
}

// Message returns the outermost classified message with the wrapped
// cause chain stripped. Responses use it so upstream error payloads
// stay in the logs and never reach a caller verbatim.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "upstream failure"
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
