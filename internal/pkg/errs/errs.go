package errs

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// CustomError is the error type used across the relay. It pairs a business code with a
// client-facing message and the HTTP status used when it is written as a response.
type CustomError struct {
	// Code is the business error code.
	Code int

	// Message is the client-facing description.
	Message string

	// Status is the HTTP status code for this error.
	Status int
}

// Error implements the error interface.
func (e CustomError) Error() string {
	return fmt.Sprintf("Error Code %d (HTTP %d): %s", e.Code, e.Status, e.Message)
}

// Is reports whether target is a CustomError with the same code.
func (e *CustomError) Is(target error) bool {
	var other *CustomError
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

// NewError builds a *CustomError from a known code. details are printf arguments for
// templates that contain verbs; unknown codes fall back to ErrUnknown.
func NewError(code int, details ...any) *CustomError {
	template, ok := errorMap[code]
	if !ok {
		template = errorMap[ErrUnknown]
	}

	customErr := template
	if customErr.Status == 0 {
		customErr.Status = http.StatusOK
	}

	if ok && len(details) > 0 && strings.Contains(customErr.Message, "%") {
		customErr.Message = fmt.Sprintf(customErr.Message, details...)
	}

	return &customErr
}
