package apperrors

import (
	"fmt"
	"net/http"
)

type ErrorType string

const (
	// ErrValidation covers malformed or inconsistent caller input: zero
	// quantities, identical asset pairs, disabled assets. Never retried,
	// never mutates state.
	ErrValidation ErrorType = "VALIDATION"
	// ErrSlippage is raised when a trade realizes less than the caller's
	// minimum. The whole lifecycle operation aborts with it.
	ErrSlippage ErrorType = "SLIPPAGE"
	// ErrExternalState is a rejection surfaced verbatim from a money
	// market or trade venue.
	ErrExternalState ErrorType = "EXTERNAL_STATE"
	// ErrReentrant means a collaborator called back into a vault whose
	// lifecycle lock was already held.
	ErrReentrant    ErrorType = "REENTRANT_CALL"
	ErrUnauthorized ErrorType = "UNAUTHORIZED"
	ErrNotFound     ErrorType = "NOT_FOUND"
	ErrInternal     ErrorType = "INTERNAL_ERROR"
)

// AppError is the standard error struct for the application.
type AppError struct {
	Type       ErrorType `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"-"`
	Cause      error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(errType ErrorType, msg string, cause error) *AppError {
	return &AppError{
		Type:       errType,
		Message:    msg,
		Cause:      cause,
		HTTPStatus: mapTypeToStatus(errType),
	}
}

func NewValidation(format string, args ...any) *AppError {
	return New(ErrValidation, fmt.Sprintf(format, args...), nil)
}

func NewSlippage(format string, args ...any) *AppError {
	return New(ErrSlippage, fmt.Sprintf(format, args...), nil)
}

func NewExternalState(msg string, cause error) *AppError {
	return New(ErrExternalState, msg, cause)
}

func NewUnauthorized(msg string) *AppError {
	return New(ErrUnauthorized, msg, nil)
}

func NewNotFound(format string, args ...any) *AppError {
	return New(ErrNotFound, fmt.Sprintf(format, args...), nil)
}

func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return New(ErrInternal, err.Error(), err)
}

// Is reports whether err is an AppError of the given type.
func Is(err error, t ErrorType) bool {
	appErr, ok := err.(*AppError)
	return ok && appErr.Type == t
}

func mapTypeToStatus(t ErrorType) int {
	switch t {
	case ErrValidation, ErrSlippage:
		return http.StatusBadRequest
	case ErrUnauthorized:
		return http.StatusUnauthorized
	case ErrReentrant:
		return http.StatusConflict
	case ErrNotFound:
		return http.StatusNotFound
	case ErrExternalState:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
