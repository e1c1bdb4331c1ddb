package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation        Code = "VALIDATION_ERROR"
	CodeUnauthorized      Code = "UNAUTHORIZED"
	CodeForbidden         Code = "FORBIDDEN"
	CodeNotFound          Code = "NOT_FOUND"
	CodeConflict          Code = "CONFLICT"
	CodeOutOfStock        Code = "OUT_OF_STOCK"
	CodeWindowExpired     Code = "WINDOW_EXPIRED"
	CodeInvalidTransition Code = "INVALID_TRANSITION"
	CodeIdempotency       Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit         Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal          Code = "INTERNAL"
	CodeDependency        Code = "DEPENDENCY_ERROR"
)

// Metadata is how a code surfaces over HTTP. Client-facing codes answer with the error's
// own message; the rest answer with PublicMessage so internals never leak.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	ClientFacing   bool
	PublicMessage  string
	DetailsAllowed bool
}

type option func(*Metadata)

func withDetails(m *Metadata) { m.DetailsAllowed = true }

func clientError(status int, public string, opts ...option) Metadata {
	m := Metadata{HTTPStatus: status, ClientFacing: true, PublicMessage: public}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

func serverError(status int, public string, opts ...option) Metadata {
	m := Metadata{HTTPStatus: status, Retryable: true, PublicMessage: public}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:        clientError(http.StatusBadRequest, "validation failed", withDetails),
	CodeUnauthorized:      clientError(http.StatusUnauthorized, "authentication required"),
	CodeForbidden:         clientError(http.StatusForbidden, "access denied"),
	CodeNotFound:          clientError(http.StatusNotFound, "resource not found"),
	CodeConflict:          clientError(http.StatusConflict, "conflict detected"),
	CodeOutOfStock:        clientError(http.StatusConflict, "insufficient stock", withDetails),
	CodeWindowExpired:     clientError(http.StatusUnprocessableEntity, "cancellation window expired", withDetails),
	CodeInvalidTransition: clientError(http.StatusUnprocessableEntity, "state transition disallowed", withDetails),
	CodeIdempotency:       clientError(http.StatusConflict, "idempotency key reused", withDetails),
	CodeRateLimit:         clientError(http.StatusTooManyRequests, "rate limit exceeded"),
	CodeInternal:          serverError(http.StatusInternalServerError, "internal server error"),
	CodeDependency:        serverError(http.StatusServiceUnavailable, "dependency unavailable", withDetails),
}

// MetadataFor falls back to CodeInternal for unknown codes.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// Error is the typed error every layer returns once a failure has a known meaning.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

// WithDetails attaches a client-visible payload; it is only rendered for codes whose
// metadata allows details.
func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.cause != nil:
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	default:
		return fmt.Sprintf("%s: %s", e.code, e.message)
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the outermost *Error in err's chain, or nil.
func As(err error) *Error {
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether the outermost typed error in err's chain carries code.
func IsCode(err error, code Code) bool {
	return As(err).codeOr("") == code
}

func (e *Error) codeOr(fallback Code) Code {
	if e == nil {
		return fallback
	}
	return e.code
}

// Internal wraps an untyped storage or infrastructure failure. Typed errors pass through
// untouched; database contention and duplicate keys get their own codes.
func Internal(err error, message string) error {
	if err == nil || As(err) != nil {
		return err
	}
	if f, ok := inspectStorage(err); ok {
		if code, public, ok := f.classify(); ok {
			return Wrap(code, err, message+": "+public)
		}
	}
	return Wrap(CodeInternal, err, message)
}
