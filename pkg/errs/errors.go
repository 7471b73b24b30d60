// Package errs defines the coded error type shared by every layer of the
// storefront. Codes drive the HTTP and gRPC status a caller sees; Msg is
// meant for operators; Op and Err chain errors into a logical stack.
package errs

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const (
	EInternal      = "internal error"
	ENotFound      = "not found"
	EConflict      = "conflict"
	EInvalid       = "invalid"
	EForbidden     = "forbidden"
	EUnauthorized  = "unauthorized"
	EUnavailable   = "unavailable"
	ENotConfigured = "not configured"
	// ETimeout means the outcome of a remote call is unknown: it may have
	// been applied.
	ETimeout = "timeout"
)

// Error is the error struct of the storefront.
//
// To create a simple error,
//
//	&Error{Code: ENotFound}
//
// To show where the error happens, add Op.
//
//	&Error{Code: ENotFound, Op: "repository.FindStoreByOwner"}
//
// To wrap an upstream failure,
//
//	&Error{Code: EUnavailable, Err: err}
type Error struct {
	Code string
	Msg  string
	Op   string
	Err  error
}

// Error implements the error interface by writing out the recursive messages.
func (e *Error) Error() string {
	if e.Msg != "" && e.Err != nil {
		var b strings.Builder
		b.WriteString(e.Msg)
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
		return b.String()
	} else if e.Msg != "" {
		return e.Msg
	} else if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("<%s>", e.Code)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Code returns the code of the root error, if available; otherwise returns EInternal.
func Code(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if !errors.As(err, &e) || e == nil {
		return EInternal
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Err != nil {
		return Code(e.Err)
	}
	return EInternal
}

// Message returns the human-readable message of the first coded error in the chain.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e != nil {
		if e.Msg != "" {
			return e.Msg
		}
		var inner *Error
		if e.Err != nil && errors.As(e.Err, &inner) {
			return Message(e.Err)
		}
		return e.Code
	}
	return "An internal error has occurred"
}

// Is reports whether err carries the given code.
func Is(err error, code string) bool {
	return Code(err) == code
}

func New(code, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

func Wrap(err error, code, op string) *Error {
	return &Error{Code: code, Op: op, Err: err}
}

func NotFound(msg string) *Error {
	return &Error{Code: ENotFound, Msg: msg}
}

func Invalid(msg string) *Error {
	return &Error{Code: EInvalid, Msg: msg}
}

func Forbidden(msg string) *Error {
	return &Error{Code: EForbidden, Msg: msg}
}

// NotConfigured is returned at the first call site of a component whose
// external credentials are missing.
func NotConfigured(service string) *Error {
	return &Error{Code: ENotConfigured, Msg: service + " not configured"}
}

var statusCodes = map[string]int{
	EInternal:      http.StatusInternalServerError,
	ENotFound:      http.StatusNotFound,
	EConflict:      http.StatusConflict,
	EInvalid:       http.StatusBadRequest,
	EForbidden:     http.StatusForbidden,
	EUnauthorized:  http.StatusUnauthorized,
	EUnavailable:   http.StatusBadGateway,
	ENotConfigured: http.StatusServiceUnavailable,
	ETimeout:       http.StatusGatewayTimeout,
}

// HTTPStatus maps the code of err to an HTTP status.
func HTTPStatus(err error) int {
	if s, ok := statusCodes[Code(err)]; ok {
		return s
	}
	return http.StatusInternalServerError
}
