package admin

import (
	"errors"
	"fmt"

	"github.com/m3rciful/flowerbot/internal/storage"
)

// ValidationError rejects admin input before it reaches storage.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Code implements the handler summary error code contract.
func (e *ValidationError) Code() string { return "VALIDATION" }

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// Describe turns a service error into a short admin-facing message.
func Describe(err error) string {
	var v *ValidationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &v):
		return v.Error()
	case errors.Is(err, storage.ErrNotFound):
		return "not found, it may have been deleted"
	case errors.Is(err, storage.ErrConflict):
		return "conflict: the record already exists or was changed by someone else"
	}
	return "storage error, please try again"
}
