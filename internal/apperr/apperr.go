// Package apperr defines the single error type used between the service
// layer and the HTTP surface.  Every failure carries a Kind that maps to
// exactly one HTTP status, a short machine-readable Code and a message
// that is safe to show to the caller.  The wrapped cause is for logs only.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies a failure.
type Kind uint8

const (
	KindInternal   Kind = iota // store or transport failure
	KindValidation             // malformed or missing input
	KindDuplicate              // unique constraint violation
	KindAuth                   // bad credentials or unusable token
	KindForbidden              // authenticated but not allowed
	KindNotFound               // unknown id
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindDuplicate:
		return "duplicate"
	case KindAuth:
		return "auth"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	}
	return "internal"
}

// Status returns the HTTP status code for the kind.
func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindDuplicate:
		return http.StatusConflict
	case KindAuth:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// Codes used by the access control gate and the services.  Handlers and
// tests match on these instead of on message text.
const (
	CodeMissingToken       = "missing_token"
	CodeInvalidToken       = "invalid_token"
	CodeTokenExpired       = "token_expired"
	CodeSessionInvalidated = "session_invalidated"
	CodeAccountInactive    = "account_inactive"
	CodeAccountBlocked     = "account_blocked"
	CodeInsufficientRole   = "insufficient_role"
	CodeBadCredentials     = "bad_credentials"
	CodeSelfAction         = "self_action"
)

// Error is the concrete error returned across layers.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(k Kind, msg string) *Error { return &Error{Kind: k, Code: k.String(), Message: msg} }

func Validation(msg string) *Error { return newErr(KindValidation, msg) }
func Duplicate(msg string) *Error  { return newErr(KindDuplicate, msg) }
func Auth(msg string) *Error       { return newErr(KindAuth, msg) }
func Forbidden(msg string) *Error  { return newErr(KindForbidden, msg) }
func NotFound(msg string) *Error   { return newErr(KindNotFound, msg) }

// Internal wraps a cause that must not be shown to the caller.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Code: KindInternal.String(), Message: "Internal server error", Err: err}
}

// WithCode returns a copy of e carrying the given code.
func (e *Error) WithCode(code string) *Error {
	cp := *e
	cp.Code = code
	return &cp
}

// Wrap returns a copy of e that wraps cause.
func (e *Error) Wrap(cause error) *Error {
	cp := *e
	cp.Err = cause
	return &cp
}

// From returns err as an *Error, classifying anything else as internal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return Internal(err)
}

// KindOf returns the kind of err (KindInternal for foreign errors).
func KindOf(err error) Kind { return From(err).Kind }

// CodeOf returns the code of err.
func CodeOf(err error) string { return From(err).Code }
