package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound                  = errors.New("not found")
	ErrInvalidArgument           = errors.New("invalid argument")
	ErrInvalidState              = errors.New("invalid state")
	ErrInvalidTransition         = errors.New("invalid transition")
	ErrPaymentVerificationFailed = errors.New("payment verification failed")
	ErrForbidden                 = errors.New("forbidden")

	// ErrInsufficientStock is a kind of ErrInvalidState.
	ErrInsufficientStock = fmt.Errorf("%w: insufficient stock", ErrInvalidState)
)

// Error is a user-actionable failure. Kind is one of the sentinel errors above and
// Message is safe to show to the caller.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func Errorf(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) error {
	return Errorf(ErrNotFound, format, args...)
}

func InvalidArgument(format string, args ...any) error {
	return Errorf(ErrInvalidArgument, format, args...)
}

func InvalidState(format string, args ...any) error {
	return Errorf(ErrInvalidState, format, args...)
}

func InsufficientStock(product string, available, requested int) error {
	return Errorf(ErrInsufficientStock, "insufficient stock for %s: available %d, requested %d", product, available, requested)
}
