package oauth

import (
	"errors"
	"fmt"
	"net/http"
)

// OAuth error codes (RFC 6749 Section 5.2 and 4.1.2.1, RFC 8628 Section 3.5)
const (
	ErrorCodeInvalidRequest       = "invalid_request"
	ErrorCodeInvalidClient        = "invalid_client"
	ErrorCodeInvalidGrant         = "invalid_grant"
	ErrorCodeInvalidScope         = "invalid_scope"
	ErrorCodeUnsupportedGrantType = "unsupported_grant_type"
	ErrorCodeAccessDenied         = "access_denied"
	ErrorCodeServerError          = "server_error"

	ErrorCodeAuthorizationPending = "authorization_pending"
	ErrorCodeSlowDown             = "slow_down"
	ErrorCodeExpiredToken         = "expired_token"
)

// Error is an OAuth 2.0 protocol error. It is the only error type the core
// hands back to the HTTP boundary; anything else is wrapped as server_error
// by AsError.
type Error struct {
	Code        string // OAuth error code (e.g., "invalid_request", "invalid_grant")
	Description string // Human-readable error description
	Status      int    // HTTP status code

	// Err is the internal cause. It is never serialized.
	Err error
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Unwrap returns the internal cause
func (e *Error) Unwrap() error {
	return e.Err
}

// WithCause returns a copy of e carrying err as its internal cause
func (e *Error) WithCause(err error) *Error {
	c := *e
	c.Err = err
	return &c
}

// Response renders the error as a neutral JSON response
func (e *Error) Response() *Response {
	body := ErrorResponse{
		Error:            e.Code,
		ErrorDescription: e.Description,
	}
	resp := NewResponse(e.Status, body)
	resp.Headers.Set("Cache-Control", "no-store")
	resp.Headers.Set("Pragma", "no-cache")
	if e.Code == ErrorCodeInvalidClient && e.Status == http.StatusUnauthorized {
		resp.Headers.Set("WWW-Authenticate", `Basic realm="oauth"`)
	}
	return resp
}

// NewError creates a new OAuth error
func NewError(code, description string, status int) *Error {
	return &Error{
		Code:        code,
		Description: description,
		Status:      status,
	}
}

var (
	// ErrInvalidRequest indicates the request is malformed or missing required parameters
	ErrInvalidRequest = func(desc string) *Error {
		return NewError(ErrorCodeInvalidRequest, desc, http.StatusBadRequest)
	}

	// ErrInvalidParameter is ErrInvalidRequest for a single named parameter
	ErrInvalidParameter = func(param string, hint ...string) *Error {
		desc := fmt.Sprintf("Check the `%s` parameter", param)
		if len(hint) > 0 && hint[0] != "" {
			desc = fmt.Sprintf("%s: %s", desc, hint[0])
		}
		return NewError(ErrorCodeInvalidRequest, desc, http.StatusBadRequest)
	}

	// ErrInvalidClient indicates client authentication failed
	ErrInvalidClient = func(desc string) *Error {
		return NewError(ErrorCodeInvalidClient, desc, http.StatusUnauthorized)
	}

	// ErrInvalidGrant indicates the authorization code, refresh token or
	// resource owner credentials are invalid, expired or revoked
	ErrInvalidGrant = func(desc string) *Error {
		return NewError(ErrorCodeInvalidGrant, desc, http.StatusBadRequest)
	}

	// ErrInvalidScope indicates the requested scope is unknown or not allowed
	ErrInvalidScope = func(desc string) *Error {
		return NewError(ErrorCodeInvalidScope, desc, http.StatusBadRequest)
	}

	// ErrUnsupportedGrantType indicates no enabled grant claims the request
	ErrUnsupportedGrantType = func(desc string) *Error {
		return NewError(ErrorCodeUnsupportedGrantType, desc, http.StatusBadRequest)
	}

	// ErrAccessDenied indicates the resource owner did not approve the request
	ErrAccessDenied = func(desc string) *Error {
		return NewError(ErrorCodeAccessDenied, desc, http.StatusBadRequest)
	}

	// ErrServerError indicates an unexpected internal failure
	ErrServerError = func(desc string) *Error {
		return NewError(ErrorCodeServerError, desc, http.StatusInternalServerError)
	}

	// ErrAuthorizationPending indicates the device authorization is still pending
	ErrAuthorizationPending = func(desc string) *Error {
		return NewError(ErrorCodeAuthorizationPending, desc, http.StatusBadRequest)
	}

	// ErrSlowDown indicates the device is polling faster than allowed
	ErrSlowDown = func(desc string) *Error {
		return NewError(ErrorCodeSlowDown, desc, http.StatusBadRequest)
	}

	// ErrExpiredToken indicates the device code has expired
	ErrExpiredToken = func(desc string) *Error {
		return NewError(ErrorCodeExpiredToken, desc, http.StatusBadRequest)
	}
)

// AsError converts err into an *Error. Errors that already are (or wrap) an
// *Error are returned as is; anything else becomes server_error so that
// repository internals never reach the wire.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var oe *Error
	if errors.As(err, &oe) {
		return oe
	}
	return ErrServerError("The authorization server encountered an unexpected condition").WithCause(err)
}

// IsErrorCode reports whether err is an *Error with the given code
func IsErrorCode(err error, code string) bool {
	var oe *Error
	return errors.As(err, &oe) && oe.Code == code
}
