package errors

import "fmt"

// Error is the structured error type returned by storage, search, commit,
// and job-handling code. It carries a Kind (see §7 of the design: not_found,
// conflict, validation, unauthorized, forbidden, rate_limited, unavailable,
// internal), a short message, and an optional detail map for structured
// logging.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches on Kind so errors.Is(err, &Error{Kind: KindNotFound}) works
// regardless of message or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// WithDetail attaches a key/value detail and returns the error for chaining.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an Error of the given kind around an existing cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// NotFound builds a not_found error.
func NotFound(message string) *Error { return New(KindNotFound, message) }

// Conflict builds a conflict error.
func Conflict(message string) *Error { return New(KindConflict, message) }

// Validation builds a validation error.
func Validation(message string) *Error { return New(KindValidation, message) }

// Unavailable builds an unavailable error.
func Unavailable(message string) *Error { return New(KindUnavailable, message) }

// RateLimited builds a rate_limited error, used by embedder clients that
// exhaust their retry budget against an HTTP 429 response.
func RateLimited(message string) *Error { return New(KindRateLimited, message) }

// Forbidden builds a forbidden error.
func Forbidden(message string) *Error { return New(KindForbidden, message) }

// Unauthorized builds an unauthorized error.
func Unauthorized(message string) *Error { return New(KindUnauthorized, message) }

// Internal wraps an unexpected error as internal.
func Internal(message string, cause error) *Error {
	return Wrap(KindInternal, message, cause)
}

// KindOf extracts the Kind from err, defaulting to KindInternal when err is
// not an *Error (an unclassified failure is internal by construction).
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if as(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// as is a tiny local wrapper to avoid importing the standard errors package
// under the same name as this package.
func as(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
