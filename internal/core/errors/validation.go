package errors

import (
	"fmt"
)

// ConfigValidationError wraps every field error found while validating a configuration.
type ConfigValidationError struct {
	Errors []error
}

func (e *ConfigValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %v", e.Errors[0])
	}
	return fmt.Sprintf("configuration validation failed with %d errors: %v", len(e.Errors), e.Errors[0])
}

func (e *ConfigValidationError) Unwrap() []error {
	return e.Errors
}

// NewConfigValidationError creates a new configuration validation error
func NewConfigValidationError(errs ...error) error {
	if len(errs) == 0 {
		return nil
	}
	return &ConfigValidationError{Errors: errs}
}
