// Package errs defines the error taxonomy shared by the value host packages.
//
// A SevereError is never swallowed or converted into a validation issue. A
// CodingError is a SevereError raised for programmer or configuration mistakes
// such as an unknown merge rule, a conflicting rule registration or a missing
// required service.
package errs

import (
	"errors"
	"fmt"
)

// SevereError marks failures that must propagate to the caller.
type SevereError struct {
	Message string
	Err     error
}

func (e *SevereError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *SevereError) Unwrap() error { return e.Err }

// CodingError reports a programmer or configuration mistake.
type CodingError struct {
	SevereError
}

// NewCodingError creates a CodingError with a formatted message.
func NewCodingError(format string, args ...interface{}) *CodingError {
	return &CodingError{SevereError{Message: fmt.Sprintf(format, args...)}}
}

// WrapCodingError creates a CodingError that wraps err.
func WrapCodingError(err error, format string, args ...interface{}) *CodingError {
	return &CodingError{SevereError{Message: fmt.Sprintf(format, args...), Err: err}}
}

// Unwrap exposes the embedded SevereError so errors.As finds both types.
func (e *CodingError) Unwrap() error { return &e.SevereError }

// IsCodingError reports whether err or any error it wraps is a CodingError.
func IsCodingError(err error) bool {
	var coding *CodingError
	return errors.As(err, &coding)
}

// IsSevere reports whether err or any error it wraps is a SevereError.
func IsSevere(err error) bool {
	var severe *SevereError
	return errors.As(err, &severe)
}
