// Package apperr defines the error taxonomy shared by every subsystem.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	Validation    Kind = "VALIDATION"
	Authorization Kind = "AUTHORIZATION"
	Conflict      Kind = "CONFLICT"
	NotFound      Kind = "NOT_FOUND"
	PatchConflict Kind = "PATCH_CONFLICT"
	Storage       Kind = "STORAGE"
)

type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind so callers can test with sentinel values
// such as errors.Is(err, &apperr.Error{Kind: apperr.Conflict}).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Message == "" && t.Err == nil
}

func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

func Wrap(kind Kind, op string, err error, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

func Validationf(op, format string, args ...any) *Error {
	return New(Validation, op, fmt.Sprintf(format, args...))
}

func Conflictf(op, format string, args ...any) *Error {
	return New(Conflict, op, fmt.Sprintf(format, args...))
}

func NotFoundf(op, format string, args ...any) *Error {
	return New(NotFound, op, fmt.Sprintf(format, args...))
}

func Unauthorizedf(op, format string, args ...any) *Error {
	return New(Authorization, op, fmt.Sprintf(format, args...))
}

// KindOf classifies err. Errors outside the taxonomy are treated as storage
// failures.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Storage
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Retriable reports whether the caller should resync and try again.
func Retriable(err error) bool {
	switch KindOf(err) {
	case Conflict, PatchConflict, Storage:
		return true
	}
	return false
}

func HTTPStatus(kind Kind) int {
	switch kind {
	case Validation:
		return http.StatusBadRequest
	case Authorization:
		return http.StatusForbidden
	case Conflict:
		return http.StatusConflict
	case NotFound:
		return http.StatusNotFound
	case PatchConflict:
		return http.StatusInternalServerError
	default:
		return http.StatusServiceUnavailable
	}
}

// Message returns the human-readable part of err without the op prefix.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
