package schema

import "fmt"

// GenerationError reports a parameter type whose schema cannot be advertised.
// It is a programming error and is surfaced at registration.
type GenerationError struct {
	Type  string
	Cause error
}

// Error implements the error interface
func (e *GenerationError) Error() string {
	return fmt.Sprintf("cannot generate input schema for %s: %v", e.Type, e.Cause)
}

// Unwrap returns the underlying cause
func (e *GenerationError) Unwrap() error {
	return e.Cause
}

// NewGenerationError creates a schema generation error
func NewGenerationError(typeName string, cause error) *GenerationError {
	return &GenerationError{
		Type:  typeName,
		Cause: cause,
	}
}
