package utils

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidInput = errors.New("invalid input")
)

// AppError carries a human readable message and unwraps to one of the sentinel kinds.
type AppError struct {
	Kind    error
	Message string
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Kind
}

func NewError(kind error, message string) error {
	return &AppError{Kind: kind, Message: message}
}

func Forbidden(message string) error    { return NewError(ErrForbidden, message) }
func NotFound(message string) error     { return NewError(ErrNotFound, message) }
func Conflict(message string) error     { return NewError(ErrConflict, message) }
func InvalidInput(message string) error { return NewError(ErrInvalidInput, message) }

// Kind returns the sentinel kind of err, or nil if it is not a domain error.
func Kind(err error) error {
	for _, kind := range []error{ErrUnauthorized, ErrForbidden, ErrNotFound, ErrConflict, ErrInvalidInput} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// Message returns the client-facing message for a domain error.
func Message(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	if kind := Kind(err); kind != nil {
		return kind.Error()
	}
	return "internal server error"
}
