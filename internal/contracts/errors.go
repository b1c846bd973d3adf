package contracts

import (
	"errors"
	"fmt"
)

// ErrInsufficientHistory means the ledger span cannot fit a single
// observation + gap + prediction window. Callers may recover from it.
var ErrInsufficientHistory = errors.New("insufficient history for any cutoff")

// ErrNotFound is returned by read repositories when nothing was published yet
var ErrNotFound = errors.New("not found")

// ValidationError reports a bad input or parameter, naming the field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

// NewValidationError builds a ValidationError with a formatted message
func NewValidationError(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IntegrityError reports a broken invariant in produced data.
// It is never corrected silently.
type IntegrityError struct {
	Check  string
	Detail string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity check %q failed: %s", e.Check, e.Detail)
}

// NewIntegrityError builds an IntegrityError with a formatted detail
func NewIntegrityError(check, format string, args ...interface{}) *IntegrityError {
	return &IntegrityError{Check: check, Detail: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err wraps a ValidationError
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsIntegrity reports whether err wraps an IntegrityError
func IsIntegrity(err error) bool {
	var ie *IntegrityError
	return errors.As(err, &ie)
}
