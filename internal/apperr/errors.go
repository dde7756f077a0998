// Package apperr defines the error taxonomy shared by services and handlers.
//
// Services return *Error values (or wrap them); the API layer maps the Kind
// to an HTTP status in exactly one place. Anything that is not an *Error is
// treated as a ServerError and never shown to the caller verbatim.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindInvalidCredentials Kind = "invalid_credentials"
	KindAccountInactive    Kind = "account_inactive"
	KindSessionExpired     Kind = "session_expired"
	KindSessionInvalid     Kind = "session_invalid"
	KindTenantNotFound     Kind = "tenant_not_found"
	KindTenantRequired     Kind = "tenant_required"
	KindForbidden          Kind = "forbidden"
	KindNotFound           Kind = "not_found"
	KindValidation         Kind = "validation_error"
	KindAlreadyConverted   Kind = "already_converted"
	KindConflict           Kind = "conflict"
	KindRateLimited        Kind = "rate_limited"
	KindServer             Kind = "server_error"
)

// Error is a classified, user-presentable failure.
type Error struct {
	Kind    Kind
	Message string
	// Fields holds per-field messages for KindValidation.
	Fields map[string][]string
	// Err is the underlying cause. It is logged, never rendered.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind so errors.Is(err, apperr.ErrNotFound) holds for any
// NotFound, whatever its message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrInvalidCredentials = &Error{Kind: KindInvalidCredentials, Message: "invalid email or password"}
	ErrAccountInactive    = &Error{Kind: KindAccountInactive, Message: "account is inactive"}
	ErrSessionExpired     = &Error{Kind: KindSessionExpired, Message: "session has expired, please log in again"}
	ErrSessionInvalid     = &Error{Kind: KindSessionInvalid, Message: "invalid session"}
	ErrTenantNotFound     = &Error{Kind: KindTenantNotFound, Message: "tenant not found"}
	ErrTenantRequired     = &Error{Kind: KindTenantRequired, Message: "a tenant subdomain is required"}
	ErrForbidden          = &Error{Kind: KindForbidden, Message: "you do not have permission to perform this action"}
	ErrNotFound           = &Error{Kind: KindNotFound, Message: "resource not found"}
	ErrAlreadyConverted   = &Error{Kind: KindAlreadyConverted, Message: "lead has already been converted to a client"}
	ErrConflict           = &Error{Kind: KindConflict, Message: "resource already exists"}
	ErrRateLimited        = &Error{Kind: KindRateLimited, Message: "too many requests, please try again later"}
	ErrServer             = &Error{Kind: KindServer, Message: "something went wrong, please try again"}
)

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func NotFound(what string) *Error {
	return &Error{Kind: KindNotFound, Message: what + " not found"}
}

func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

// Validation builds a ValidationError from a field → messages map.
func Validation(fields map[string][]string) *Error {
	return &Error{Kind: KindValidation, Message: "validation failed", Fields: fields}
}

// Field is shorthand for a single-field ValidationError.
func Field(name, message string) *Error {
	return Validation(map[string][]string{name: {message}})
}

// Internal wraps an unexpected failure (database, cache, crypto).
func Internal(err error) *Error {
	return &Error{Kind: KindServer, Message: ErrServer.Message, Err: err}
}

// From classifies err. Unknown errors become ServerError.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}

func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	return From(err).Kind
}

func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInvalidCredentials, KindSessionExpired, KindSessionInvalid:
		return http.StatusUnauthorized
	case KindAccountInactive, KindForbidden:
		return http.StatusForbidden
	case KindTenantNotFound, KindNotFound:
		return http.StatusNotFound
	case KindTenantRequired:
		return http.StatusBadRequest
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindAlreadyConverted, KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
