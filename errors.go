package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/zengzjie/food-delivery-sass/auth/internal/rate"
)

// Code is the stable machine-readable classification carried by every [Error].
// Codes are emitted as GraphQL extensions.code and JSON "code" fields.
type Code string

const (
	CodeUnauthenticated    Code = "UNAUTHENTICATED"
	CodeSupersededSession  Code = "SUPERSEDED_SESSION"
	CodeTokenExpired       Code = "TOKEN_EXPIRED"
	CodeTokenMalformed     Code = "TOKEN_MALFORMED"
	CodeRefreshFailed      Code = "REFRESH_FAILED"
	CodeForbidden          Code = "FORBIDDEN"
	CodeWrongTokenPurpose  Code = "WRONG_TOKEN_PURPOSE"
	CodeBadRequest         Code = "BAD_REQUEST"
	CodeInvalidCredentials Code = "INVALID_CREDENTIALS"
	CodeAccountExists      Code = "ACCOUNT_EXISTS"
	CodeUserNotFound       Code = "USER_NOT_FOUND"
	CodeRateLimited        Code = "RATE_LIMITED"
	CodeResetLinkInvalid   Code = "RESET_LINK_INVALID"
	CodeActivationInvalid  Code = "ACTIVATION_INVALID"
	CodeInternal           Code = "INTERNAL"
)

// Error is the single error type returned across the package boundary.
//
// Two errors are equal under errors.Is when their codes match, so callers
// compare against the sentinels below regardless of message or cause.
type Error struct {
	Code    Code
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

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Wrap returns a copy of e carrying cause. The sentinel itself is never mutated.
func (e *Error) Wrap(cause error) *Error {
	out := *e
	out.Err = cause
	return &out
}

// WithMessage returns a copy of e with a caller-facing message.
func (e *Error) WithMessage(msg string) *Error {
	out := *e
	out.Message = msg
	return &out
}

// HTTPStatus maps the code onto a transport status.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeUnauthenticated, CodeSupersededSession, CodeTokenExpired,
		CodeTokenMalformed, CodeWrongTokenPurpose, CodeInvalidCredentials:
		return http.StatusUnauthorized
	case CodeForbidden, CodeRefreshFailed:
		return http.StatusForbidden
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// IsAuthFailure reports whether the code belongs to the gate rejection family.
func (c Code) IsAuthFailure() bool {
	switch c {
	case CodeUnauthenticated, CodeSupersededSession, CodeTokenExpired,
		CodeTokenMalformed, CodeWrongTokenPurpose, CodeRefreshFailed, CodeForbidden:
		return true
	}
	return false
}

// AsError classifies any error into an *Error. Unclassified errors become
// INTERNAL with the cause attached.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return ErrInternal.Wrap(err)
}

const supersededMessage = "Your account has been logged in from another location, please log in again."

var (
	ErrUnauthenticated   = &Error{Code: CodeUnauthenticated, Message: "Unauthorized access without login，Please log in first！"}
	ErrSupersededSession = &Error{Code: CodeSupersededSession, Message: supersededMessage}
	ErrTokenExpired      = &Error{Code: CodeTokenExpired, Message: "Token has expired"}
	ErrTokenMalformed    = &Error{Code: CodeTokenMalformed, Message: "Token is malformed"}
	ErrRefreshFailed     = &Error{Code: CodeRefreshFailed, Message: "Refresh token is invalid or expired, please log in again."}
	ErrForbidden         = &Error{Code: CodeForbidden, Message: "Current character has no permission to operate！"}
	ErrWrongTokenPurpose = &Error{Code: CodeWrongTokenPurpose, Message: "Token was issued for a different purpose"}

	ErrBadRequest         = &Error{Code: CodeBadRequest, Message: "Bad request"}
	ErrInvalidCredentials = &Error{Code: CodeInvalidCredentials, Message: "Invalid credentials"}
	ErrAccountExists      = &Error{Code: CodeAccountExists, Message: "Email already exists with this email!"}
	ErrUserNotFound       = &Error{Code: CodeUserNotFound, Message: "User not found"}
	ErrRateLimited        = &Error{Code: CodeRateLimited, Message: "Too many attempts, please try again later."}
	ErrResetLinkInvalid   = &Error{Code: CodeResetLinkInvalid, Message: "This link is invalid or has expired, please try sending the password reset email again."}
	ErrActivationInvalid  = &Error{Code: CodeActivationInvalid, Message: "Invalid activation code"}
	ErrInternal           = &Error{Code: CodeInternal, Message: "Server internal error, please contact the administrator！"}

	// ErrEngineNotReady is returned when a required dependency was not wired.
	ErrEngineNotReady = ErrInternal.WithMessage("auth engine not initialized")
)

// RetryAfter reports how long a RATE_LIMITED error asks the caller to wait.
// It is false when err carries no throttle window.
func RetryAfter(err error) (time.Duration, bool) {
	return rate.RetryAfter(err)
}

// rateLimited wraps a throttle denial, naming the wait when it is known.
func rateLimited(cause error) *Error {
	out := ErrRateLimited.Wrap(cause)
	if d, ok := rate.RetryAfter(cause); ok {
		out.Message = fmt.Sprintf("Too many attempts, please try again in %s.", d.Round(time.Second))
	}
	return out
}
