// Package apperror is the error taxonomy shared by services and handlers.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindTooManyRequests
	KindUnavailable
)

func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindTooManyRequests:
		return http.StatusTooManyRequests
	case KindUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// FieldErrors collects validation messages per field.
type FieldErrors map[string][]string

func (e FieldErrors) Add(field, msg string) {
	e[field] = append(e[field], msg)
}

type Error struct {
	Kind       Kind
	Code       string
	Message    string
	Fields     FieldErrors
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Status() int { return e.Kind.Status() }

// Validation returns nil when fields is empty, so callers can write
// `if err := apperror.Validation(errs); err != nil`.
func Validation(fields FieldErrors) error {
	if len(fields) == 0 {
		return nil
	}
	return &Error{Kind: KindValidation, Code: "VALIDATION_ERROR", Message: "Validation error", Fields: fields}
}

// Invalid is a single-field validation error with a specific code.
func Invalid(code, field, msg string) *Error {
	f := FieldErrors{}
	f.Add(field, msg)
	return &Error{Kind: KindValidation, Code: code, Message: msg, Fields: f}
}

func Unauthorized(code, msg string) *Error {
	return &Error{Kind: KindUnauthorized, Code: code, Message: msg}
}

func Forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Code: "FORBIDDEN", Message: msg}
}

func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Code: "NOT_FOUND", Message: msg}
}

func Conflict(code, msg string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: msg}
}

func TooManyRequests(retryAfter time.Duration) *Error {
	return &Error{
		Kind:       KindTooManyRequests,
		Code:       "TOO_MANY_REQUESTS",
		Message:    "Too many attempts, please try again later",
		RetryAfter: retryAfter,
	}
}

// Unavailable reports an optional backend (object storage, mail) that is
// not configured.
func Unavailable(msg string) *Error {
	return &Error{Kind: KindUnavailable, Code: "SERVICE_UNAVAILABLE", Message: msg}
}

func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Code: "SERVER_ERROR", Message: "Internal server error", Err: err}
}

// As extracts an *Error from err.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err, KindInternal when it is not an *Error.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// RetryAfterSeconds rounds up to whole seconds, never below one.
func (e *Error) RetryAfterSeconds() int {
	s := int((e.RetryAfter + time.Second - 1) / time.Second)
	if s < 1 {
		s = 1
	}
	return s
}
