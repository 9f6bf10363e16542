// Package errors classifies failures in the analyzer by kind. A kind is a
// sentinel error that decides the HTTP status; an AppError pairs a kind
// with a message that is safe to show to API clients and, optionally, the
// underlying cause that should only reach the logs.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kinds.
var (
	ErrDocumentNotFound  = errors.New("document not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrPayloadTooLarge   = errors.New("payload too large")
	ErrUnsupportedFormat = errors.New("unsupported export format")
	ErrUnavailable       = errors.New("dependency unavailable")
	ErrInternal          = errors.New("internal error")
	ErrTimeout           = errors.New("operation timed out")
)

var statusByKind = []struct {
	kind   error
	status int
}{
	{ErrDocumentNotFound, http.StatusNotFound},
	{ErrInvalidInput, http.StatusBadRequest},
	{ErrUnsupportedFormat, http.StatusBadRequest},
	{ErrPayloadTooLarge, http.StatusRequestEntityTooLarge},
	{ErrUnavailable, http.StatusServiceUnavailable},
	{ErrTimeout, http.StatusServiceUnavailable},
	{ErrInternal, http.StatusInternalServerError},
}

type AppError struct {
	Kind    error
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%v: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%v: %s", e.Kind, e.Message)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *AppError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}
	return []error{e.Kind}
}

func New(kind error, message string) *AppError {
	return &AppError{Kind: kind, Message: message}
}

func Newf(kind error, format string, args ...any) *AppError {
	return &AppError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches cause to a client-facing message of the given kind.
func Wrap(kind, cause error, message string) *AppError {
	return &AppError{Kind: kind, Message: message, Cause: cause}
}

// HTTPStatusCode maps err to a status by the first kind it matches.
// Unclassified errors are 500.
func HTTPStatusCode(err error) int {
	for _, s := range statusByKind {
		if errors.Is(err, s.kind) {
			return s.status
		}
	}
	return http.StatusInternalServerError
}

// PublicMessage returns the client-facing message of the outermost
// AppError in err's chain.
func PublicMessage(err error) (string, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message, true
	}
	return "", false
}
