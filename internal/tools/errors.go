package tools

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Error represents a registry error
type Error struct {
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// Error codes for registry operations
const (
	ErrDuplicateName     = "DUPLICATE_NAME"
	ErrUnknownTool       = "UNKNOWN_TOOL"
	ErrRegistryFrozen    = "REGISTRY_FROZEN"
	ErrInvalidDescriptor = "INVALID_DESCRIPTOR"
)

// NewDuplicateNameError creates a duplicate tool name error
func NewDuplicateNameError(name string) *Error {
	return &Error{
		Code:    ErrDuplicateName,
		Message: fmt.Sprintf("tool already registered: %q", name),
	}
}

// NewUnknownToolError creates an unknown tool error
func NewUnknownToolError(name string) *Error {
	return &Error{
		Code:    ErrUnknownTool,
		Message: fmt.Sprintf("unknown tool: %q", name),
	}
}

// NewRegistryFrozenError creates an error for registration after the registry was frozen
func NewRegistryFrozenError(name string) *Error {
	return &Error{
		Code:    ErrRegistryFrozen,
		Message: fmt.Sprintf("registry is frozen, cannot register %q", name),
	}
}

// NewInvalidDescriptorError creates an invalid descriptor error
func NewInvalidDescriptorError(message string, cause error) *Error {
	return &Error{
		Code:    ErrInvalidDescriptor,
		Message: message,
		Cause:   cause,
	}
}

// IsCode reports whether err is a registry error with the given code.
func IsCode(err error, code string) bool {
	var toolErr *Error
	if errors.As(err, &toolErr) {
		return toolErr.Code == code
	}
	return false
}
