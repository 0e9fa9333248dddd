// Package apperr defines the error taxonomy shared by services and HTTP handlers.
// Every failure that reaches a route boundary is classified into a Kind, which
// determines the HTTP status and the machine-readable code of the JSON body.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies an error for transport.
type Kind int

// Error kinds.
const (
	KindInternal Kind = iota
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindValidation
	KindQuotaExceeded
	KindUpstream
)

// String returns the kind name used in logs.
func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindQuotaExceeded:
		return "quota_exceeded"
	case KindUpstream:
		return "upstream"
	default:
		return "internal"
	}
}

// Error is a classified application error.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error without a cause.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap creates an Error around a cause.
func Wrap(kind Kind, code, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

// Unauthorized returns a KindUnauthorized error.
func Unauthorized(code, message string) *Error {
	return New(KindUnauthorized, code, message)
}

// Forbidden returns a KindForbidden error.
func Forbidden(code, message string) *Error {
	return New(KindForbidden, code, message)
}

// NotFound returns a KindNotFound error.
func NotFound(code, message string) *Error {
	return New(KindNotFound, code, message)
}

// Validation returns a KindValidation error.
func Validation(code, message string) *Error {
	return New(KindValidation, code, message)
}

// Upstream wraps a failed call to the identity provider, database or add-on library.
func Upstream(code, message string, err error) *Error {
	return Wrap(KindUpstream, code, message, err)
}

// Internal is the fallback classification for unexpected errors.
func Internal(err error) *Error {
	return Wrap(KindInternal, "INTERNAL_ERROR", "internal server error", err)
}

// From classifies err. Errors that carry no *Error in their chain are internal.
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

// KindOf returns the kind of err.
func KindOf(err error) Kind {
	if ae := From(err); ae != nil {
		return ae.Kind
	}
	return KindInternal
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps a kind to its HTTP status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindQuotaExceeded:
		return http.StatusTooManyRequests
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Body is the JSON error envelope returned by every route.
type Body struct {
	Error BodyError `json:"error"`
}

// BodyError carries the code and message of an error response.
type BodyError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Detailer is implemented by errors that expose structured details to clients.
type Detailer interface {
	Details() map[string]any
}

// ToBody converts err into its response envelope and status code.
// Internal errors never leak their cause to the client.
func ToBody(err error) (int, Body) {
	ae := From(err)
	body := Body{Error: BodyError{Code: ae.Code, Message: ae.Message}}

	var d Detailer
	if errors.As(err, &d) {
		body.Error.Details = d.Details()
	}

	return HTTPStatus(ae.Kind), body
}
