package errors

import (
	"errors"
	"fmt"
)

// Domain error types for business logic

var (
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists indicates a resource already exists
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrInvalidInput indicates invalid input parameters
	ErrInvalidInput = errors.New("invalid input")

	// ErrForbidden indicates action is forbidden
	ErrForbidden = errors.New("forbidden")

	// ErrConfiguration indicates invalid configuration supplied by the integrator
	ErrConfiguration = errors.New("invalid configuration")

	// ErrInternal indicates an internal error
	ErrInternal = errors.New("internal error")

	// ErrTimeout indicates an operation timeout
	ErrTimeout = errors.New("operation timeout")
)

// Menu session errors. Each wraps the taxonomy sentinel it belongs to, so
// callers can match either the specific or the broad class with errors.Is.

var (
	// ErrSessionExpired indicates the referenced session no longer exists
	ErrSessionExpired = fmt.Errorf("session expired: %w", ErrNotFound)

	// ErrInvalidPage indicates a page index outside the valid range
	ErrInvalidPage = fmt.Errorf("invalid page index: %w", ErrInvalidInput)

	// ErrReservedAction indicates a user action name shadows a navigation primitive
	ErrReservedAction = fmt.Errorf("action name is reserved for navigation: %w", ErrConfiguration)

	// ErrMenuInUse indicates a private session is held by another user
	ErrMenuInUse = fmt.Errorf("menu in use by another user: %w", ErrForbidden)
)

// Delivery errors returned by Messenger implementations

var (
	// ErrMessageGone indicates the target message no longer exists
	ErrMessageGone = errors.New("message no longer exists")

	// ErrTokenExpired indicates the interaction token is no longer valid
	ErrTokenExpired = errors.New("interaction token expired")
)

// DomainError wraps an error with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// MultiError wraps multiple errors
type MultiError struct {
	Errors []error
}

// Error implements the error interface
func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}
	return fmt.Sprintf("multiple errors (%d): %v", len(m.Errors), m.Errors[0])
}

// Add adds an error to the list
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// HasErrors returns true if there are any errors
func (m *MultiError) HasErrors() bool {
	return len(m.Errors) > 0
}

// ToError returns the MultiError as an error, or nil if no errors
func (m *MultiError) ToError() error {
	if !m.HasErrors() {
		return nil
	}
	return m
}

// Helper functions

// Is checks if err is or wraps target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target type
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap wraps an error with context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

func New(message string) error {
	return errors.New(message)
}

func Newf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}
