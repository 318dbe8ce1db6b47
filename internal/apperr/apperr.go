// Package apperr defines the error taxonomy shared by the booking, messaging,
// and session packages.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an Error.
type Kind int

const (
	KindUnknown Kind = iota
	KindConflict
	KindNotFound
	KindValidation
	KindForbidden
	KindTransport
)

// User-facing copy for the two races every client must explain.
const (
	MsgInvitationExists  = "an invitation already exists"
	MsgNoLongerAvailable = "this invitation is no longer available"
)

func (k Kind) String() string {
	switch k {
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindForbidden:
		return "forbidden"
	case KindTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// Error is a classified failure. Op names the failing operation
// ("booking: accept bk-1"), Msg is safe to show to a user, and Err carries the
// underlying cause when there is one.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Msg != "":
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Conflict reports a violated state precondition or the one-booking-per-pair rule.
func Conflict(op, msg string) error {
	return &Error{Kind: KindConflict, Op: op, Msg: msg}
}

// NotFound reports a booking or message that no longer exists.
func NotFound(op, msg string) error {
	return &Error{Kind: KindNotFound, Op: op, Msg: msg}
}

// Validation reports malformed input.
func Validation(op, msg string) error {
	return &Error{Kind: KindValidation, Op: op, Msg: msg}
}

// Forbidden reports an action the actor is not allowed to take.
func Forbidden(op, msg string) error {
	return &Error{Kind: KindForbidden, Op: op, Msg: msg}
}

// Transport wraps a failed store or bus call. Always retryable.
func Transport(op string, err error) error {
	return &Error{Kind: KindTransport, Op: op, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func IsConflict(err error) bool   { return KindOf(err) == KindConflict }
func IsNotFound(err error) bool   { return KindOf(err) == KindNotFound }
func IsValidation(err error) bool { return KindOf(err) == KindValidation }
func IsForbidden(err error) bool  { return KindOf(err) == KindForbidden }
func IsTransport(err error) bool  { return KindOf(err) == KindTransport }

// Retryable reports whether the caller may safely retry the operation.
func Retryable(err error) bool {
	return IsTransport(err)
}

// UserMessage returns the copy a client should display for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if !errors.As(err, &e) {
		return "something went wrong"
	}
	if e.Kind == KindTransport {
		return "could not reach the server, please try again"
	}
	if e.Msg != "" {
		return e.Msg
	}
	return "something went wrong"
}
