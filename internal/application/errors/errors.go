// Package apperrors defines application-level error types.
package apperrors

import (
	"fmt"
)

// ValidationError indicates a build request or registry failed validation.
type ValidationError struct {
	Field   string   // Field that failed validation
	Message string   // Error message
	Details []string // Additional details
}

func (e *ValidationError) Error() string {
	if len(e.Details) == 0 {
		return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s: %s (%d issues)", e.Field, e.Message, len(e.Details))
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string, details ...string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Details: details,
	}
}

// EvaluationError attributes a failure to the node that raised it.
type EvaluationError struct {
	Cause    error
	Unit     string
	Node     string
	Binding  string
	Template string
}

func (e *EvaluationError) Error() string {
	where := fmt.Sprintf("unit %s, node %s", e.Unit, e.Node)
	if e.Template != "" {
		where += fmt.Sprintf(" (template %s)", e.Template)
	}
	if e.Cause != nil {
		return fmt.Sprintf("evaluation failed for %s: %v", where, e.Cause)
	}
	return fmt.Sprintf("evaluation failed for %s", where)
}

func (e *EvaluationError) Unwrap() error {
	return e.Cause
}

// NewEvaluationError creates a new evaluation error.
func NewEvaluationError(unit, node, binding, template string, cause error) *EvaluationError {
	return &EvaluationError{
		Unit:     unit,
		Node:     node,
		Binding:  binding,
		Template: template,
		Cause:    cause,
	}
}

// ConfigurationError indicates build config or setup issue.
type ConfigurationError struct {
	Cause   error
	Aspect  string
	Message string
}

func (e *ConfigurationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("configuration error (%s): %s: %v", e.Aspect, e.Message, e.Cause)
	}
	return fmt.Sprintf("configuration error (%s): %s", e.Aspect, e.Message)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Cause
}

// NewConfigurationError creates a new configuration error.
func NewConfigurationError(aspect, message string, cause error) *ConfigurationError {
	return &ConfigurationError{
		Aspect:  aspect,
		Message: message,
		Cause:   cause,
	}
}
