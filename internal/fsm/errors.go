package fsm

import (
	"errors"
	"fmt"
)

// Code classifies a rejected event. Every code is recoverable.
type Code string

const (
	CodeInvalidCity        Code = "INVALID_CITY"
	CodeProductUnavailable Code = "PRODUCT_UNAVAILABLE"
	CodeEmptyCart          Code = "EMPTY_CART"
	CodeCartCityMismatch   Code = "CART_CITY_MISMATCH"
	CodeStateViolation     Code = "STATE_VIOLATION"
	CodeStorageFailure     Code = "STORAGE_FAILURE"
	CodeInvalidQuantity    Code = "INVALID_QUANTITY"
	CodeInvalidPhone       Code = "INVALID_PHONE"
	CodeMissingContact     Code = "MISSING_CONTACT"
	CodeEmptyFeedback      Code = "EMPTY_FEEDBACK"
	CodeInvalidArea        Code = "INVALID_AREA"
	CodeMissingArea        Code = "MISSING_AREA"
	// CodeCancelled is reported when the caller gave up while the user's
	// previous event was still being handled.
	CodeCancelled Code = "CANCELLED"
)

// Error is returned for every rejected event. The session is never modified
// when an Error is returned.
type Error struct {
	Kind      Code
	State     string
	Event     EventType
	ProductID int64
	Err       error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("fsm: %s on %s in %s", e.Kind, e.Event, e.State)
	if e.ProductID != 0 {
		msg += fmt.Sprintf(" (product %d)", e.ProductID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Code exposes the classification to the router summary logging.
func (e *Error) Code() string { return string(e.Kind) }

// Retryable reports whether repeating the same event may succeed.
func (e *Error) Retryable() bool { return e.Kind == CodeStorageFailure }

// CodeOf returns the Code carried by err, or "" when err is not an *Error.
func CodeOf(err error) Code {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// IsCode reports whether err is an *Error of the given kind.
func IsCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

func reject(kind Code, ev Event, from string) *Error {
	return &Error{Kind: kind, State: from, Event: ev.Type}
}

func cancelled(ev Event, err error) *Error {
	return &Error{Kind: CodeCancelled, Event: ev.Type, Err: err}
}

func storageFailure(ev Event, from string, err error) *Error {
	return &Error{Kind: CodeStorageFailure, State: from, Event: ev.Type, Err: err}
}
