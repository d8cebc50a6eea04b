package apperr

import (
	"errors"
	"fmt"
)

// Sentinel errors. Each one maps to a distinct HTTP status and error code.
var (
	ErrValidation         = errors.New("validation error")
	ErrInvalidTransition  = errors.New("invalid transition")
	ErrConflict           = errors.New("conflict")
	ErrStaleState         = errors.New("stale state")
	ErrIncompleteOrder    = errors.New("incomplete order")
	ErrInsufficientPoints = errors.New("insufficient points")
	ErrBelowMinimum       = errors.New("below minimum redemption")
	ErrCannotRegress      = errors.New("cannot regress")
	ErrNotFound           = errors.New("not found")
)

// Error carries a human readable message on top of one of the sentinels.
type Error struct {
	Kind    error
	Message string
	// LineIDs is populated for ErrIncompleteOrder.
	LineIDs []int64
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Message)
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func newf(kind error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...interface{}) error {
	return newf(ErrValidation, format, args...)
}

func InvalidTransition(format string, args ...interface{}) error {
	return newf(ErrInvalidTransition, format, args...)
}

func Conflict(format string, args ...interface{}) error {
	return newf(ErrConflict, format, args...)
}

func StaleState(format string, args ...interface{}) error {
	return newf(ErrStaleState, format, args...)
}

func InsufficientPoints(format string, args ...interface{}) error {
	return newf(ErrInsufficientPoints, format, args...)
}

func BelowMinimum(format string, args ...interface{}) error {
	return newf(ErrBelowMinimum, format, args...)
}

func CannotRegress(format string, args ...interface{}) error {
	return newf(ErrCannotRegress, format, args...)
}

func NotFound(format string, args ...interface{}) error {
	return newf(ErrNotFound, format, args...)
}

// IncompleteOrder names the lines that keep an order from being served.
func IncompleteOrder(orderID int64, lineIDs []int64) error {
	return &Error{
		Kind:    ErrIncompleteOrder,
		Message: fmt.Sprintf("order %d has unserved lines", orderID),
		LineIDs: lineIDs,
	}
}

// Code returns the stable machine readable code for err, or "internal".
func Code(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrStaleState):
		return "stale_state"
	case errors.Is(err, ErrIncompleteOrder):
		return "incomplete_order"
	case errors.Is(err, ErrInsufficientPoints):
		return "insufficient_points"
	case errors.Is(err, ErrBelowMinimum):
		return "below_minimum"
	case errors.Is(err, ErrCannotRegress):
		return "cannot_regress"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}

// LineIDs extracts the offending line ids from an IncompleteOrder error.
func LineIDs(err error) []int64 {
	var e *Error
	if errors.As(err, &e) {
		return e.LineIDs
	}
	return nil
}
