// Package apperr defines the error taxonomy shared by all gatehouse
// components. Every failure that crosses a package boundary is an *Error
// carrying an explicit Kind discriminant, a stable machine-readable code,
// and a human-readable message, so callers can switch on the kind instead
// of probing error shapes.
package apperr

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies an error into one of the domain outcomes. The zero value
// is KindInternal on purpose: an unclassified error must never be treated
// as an authentication or authorization decision.
type Kind int

const (
	// KindInternal covers store or provider failures ("the system is broken").
	KindInternal Kind = iota

	// KindUnauthenticated covers missing, malformed, or rejected credentials.
	KindUnauthenticated

	// KindForbidden covers authenticated callers without sufficient permission.
	KindForbidden

	// KindNotFound covers absent roles, permissions, tokens, or identities.
	KindNotFound

	// KindConflict covers uniqueness violations (role name, resource:action).
	KindConflict

	// KindThrottled covers login backoff impositions; carries RetryAfter.
	KindThrottled

	// KindRateLimited covers volumetric limiter rejections; carries RetryAfter.
	KindRateLimited

	// KindValidation covers malformed input.
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindThrottled:
		return "throttled"
	case KindRateLimited:
		return "rate_limited"
	case KindValidation:
		return "validation"
	default:
		return "internal"
	}
}

// Error is the tagged-variant error used across the service.
type Error struct {
	Kind    Kind
	Code    string // stable machine-readable code, e.g. "INVALID_CREDENTIALS"
	Message string

	// RetryAfter is set for KindThrottled and KindRateLimited.
	RetryAfter time.Duration

	// Err is the wrapped cause, if any. Never shown to callers for
	// internal kinds outside dev mode.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Code, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s (%s): %s", e.Code, e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches two *Errors by kind and code so sentinel-style comparisons
// with errors.Is work for predefined errors.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind && (t.Code == "" || e.Code == t.Code)
}

// E builds a new Error.
func E(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap builds a new Error around a cause.
func Wrap(kind Kind, code, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

// Internal wraps an unexpected failure as KindInternal with the generic
// DATABASE_ERROR/INTERNAL_ERROR codes used at the HTTP boundary.
func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Code: CodeInternal, Message: message, Err: err}
}

// Database is Internal specialised to credential-store failures, keeping
// "login was wrong" distinguishable from "the store is down".
func Database(op string, err error) *Error {
	return &Error{Kind: KindInternal, Code: CodeDatabase, Message: op + " failed", Err: err}
}

// KindOf extracts the Kind from any error. Non-apperr errors are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// RetryAfterOf returns the retry hint carried by err, or zero.
func RetryAfterOf(err error) time.Duration {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}

// CodeOf returns the machine-readable code carried by err, or CodeInternal.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Code != "" {
		return e.Code
	}
	return CodeInternal
}

// Stable machine-readable codes surfaced in HTTP bodies.
const (
	CodeInvalidCredentials  = "INVALID_CREDENTIALS"
	CodeAccountDisabled     = "ACCOUNT_DISABLED"
	CodeLoginThrottled      = "LOGIN_THROTTLED"
	CodeInvalidRefreshToken = "INVALID_REFRESH_TOKEN"
	CodeRefreshTokenExpired = "REFRESH_TOKEN_EXPIRED"
	CodeUnauthenticated     = "UNAUTHENTICATED"
	CodeForbidden           = "FORBIDDEN"
	CodeNotFound            = "NOT_FOUND"
	CodeConflict            = "CONFLICT"
	CodeRateLimited         = "RATE_LIMITED"
	CodeValidation          = "VALIDATION_ERROR"
	CodeInternal            = "INTERNAL_ERROR"
	CodeDatabase            = "DATABASE_ERROR"
)

// Predefined errors for the common authentication outcomes.
var (
	ErrInvalidCredentials = E(KindUnauthenticated, CodeInvalidCredentials, "invalid email or password")
	ErrAccountDisabled    = E(KindUnauthenticated, CodeAccountDisabled, "account is disabled")
	ErrInvalidRefresh     = E(KindUnauthenticated, CodeInvalidRefreshToken, "refresh token is invalid")
	ErrRefreshExpired     = E(KindUnauthenticated, CodeRefreshTokenExpired, "refresh token has expired")
	ErrUnauthenticated    = E(KindUnauthenticated, CodeUnauthenticated, "authentication required")
	ErrForbidden          = E(KindForbidden, CodeForbidden, "insufficient permissions")
)

// Throttled builds a login-throttle rejection carrying the retry hint.
func Throttled(retryAfter time.Duration) *Error {
	return &Error{
		Kind:       KindThrottled,
		Code:       CodeLoginThrottled,
		Message:    "too many failed login attempts",
		RetryAfter: retryAfter,
	}
}

// RateLimited builds a volumetric limiter rejection carrying the retry hint.
func RateLimited(retryAfter time.Duration) *Error {
	return &Error{
		Kind:       KindRateLimited,
		Code:       CodeRateLimited,
		Message:    "too many requests",
		RetryAfter: retryAfter,
	}
}
