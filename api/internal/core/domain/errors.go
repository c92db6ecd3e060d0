package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed set of failure categories the core can surface.
// Handlers map each kind onto exactly one HTTP status; services never
// reach for transport concepts directly.
type ErrorKind int

const (
	// KindNotFound: the entity or relation does not exist within the
	// caller's scope.
	KindNotFound ErrorKind = iota
	// KindConflict: a uniqueness or state-transition rule was violated.
	KindConflict
	// KindBadRequest: the request is well-formed but semantically invalid
	// (disallowed file type, publish without a completed version).
	KindBadRequest
	// KindForbidden: the caller does not own the entity it is touching.
	KindForbidden
	// KindUpstream: an external collaborator (object storage) failed in a
	// way we cannot degrade around.
	KindUpstream
)

// Error carries a stable kind plus a human-readable message. Repositories
// translate driver errors into these; services add their own rule failures.
type Error struct {
	Kind    ErrorKind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

func NotFound(msg string) *Error   { return &Error{Kind: KindNotFound, Message: msg} }
func Conflict(msg string) *Error   { return &Error{Kind: KindConflict, Message: msg} }
func BadRequest(msg string) *Error { return &Error{Kind: KindBadRequest, Message: msg} }
func Forbidden(msg string) *Error  { return &Error{Kind: KindForbidden, Message: msg} }
func Upstream(msg string, cause error) *Error {
	return &Error{Kind: KindUpstream, Message: msg, cause: cause}
}

// KindOf extracts the kind from an error chain. Errors that are not
// domain errors report as Upstream so they surface as 502s, never as
// silent successes.
func KindOf(err error) (ErrorKind, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return KindUpstream, false
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
