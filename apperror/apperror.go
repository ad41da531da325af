// Package apperror is the error taxonomy shared by the gateway, the broker and the client engine.
package apperror

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindForbidden  Kind = "forbidden"
	KindTransport  Kind = "transport"
	KindUpload     Kind = "upload"
)

var (
	ErrValidation = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrNotFound   = &Error{Kind: KindNotFound, Message: "not found"}
	ErrForbidden  = &Error{Kind: KindForbidden, Message: "forbidden"}
	ErrTransport  = &Error{Kind: KindTransport, Message: "transport failure"}
	ErrUpload     = &Error{Kind: KindUpload, Message: "upload failed"}
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrForbidden) works for every forbidden error.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Validation(format string, args ...any) *Error {
	return New(KindValidation, fmt.Sprintf(format, args...))
}

func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, fmt.Sprintf(format, args...))
}

func Forbidden(format string, args ...any) *Error {
	return New(KindForbidden, fmt.Sprintf(format, args...))
}

func Transport(message string, err error) *Error {
	return Wrap(KindTransport, message, err)
}

func Upload(message string, err error) *Error {
	return Wrap(KindUpload, message, err)
}

// KindOf returns the kind of the first *Error in the chain, or "" when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Retryable reports whether a manual retry can reasonably succeed. Only transport failures qualify.
func Retryable(err error) bool {
	return KindOf(err) == KindTransport
}
