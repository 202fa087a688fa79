package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Global validator instance
var validate = validator.New()

// ValidationError represents a field-level validation error
type ValidationError struct {
	Field   string
	Message string
}

// ValidationErrors holds multiple validation errors
type ValidationErrors struct {
	Errors []ValidationError
}

// Error implements the error interface for ValidationErrors
func (v *ValidationErrors) Error() string {
	if len(v.Errors) == 0 {
		return "validation failed"
	}
	messages := make([]string, len(v.Errors))
	for i, e := range v.Errors {
		messages[i] = fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// Validate checks field constraints, then the wiring rules that span
// fields: input pins are unique and no indicator shares a pin with an input.
func (c Config) Validate() error {
	if len(c.Detectors) == 0 {
		return ErrNoDetectors
	}

	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("validate config: %w", err)
		}
		out := &ValidationErrors{}
		for _, e := range fieldErrs {
			out.Errors = append(out.Errors, ValidationError{
				Field:   e.Namespace(),
				Message: formatValidationMessage(e),
			})
		}
		return out
	}

	out := &ValidationErrors{}
	inputs := map[int]bool{}
	for i, d := range c.Detectors {
		if inputs[d.Pin] {
			out.Errors = append(out.Errors, ValidationError{
				Field:   fmt.Sprintf("Config.Detectors[%d].Pin", i),
				Message: fmt.Sprintf("pin %d is configured twice", d.Pin),
			})
		}
		inputs[d.Pin] = true
	}
	for _, pin := range c.Outputs() {
		if inputs[pin] {
			out.Errors = append(out.Errors, ValidationError{
				Field:   "Config.Outputs",
				Message: fmt.Sprintf("indicator pin %d is also a detector input", pin),
			})
		}
	}
	if len(out.Errors) > 0 {
		return out
	}
	return nil
}

// formatValidationMessage creates human-readable error messages
func formatValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "gt":
		return fmt.Sprintf("must be greater than %s", e.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", e.Param())
	default:
		return fmt.Sprintf("failed %s validation", e.Tag())
	}
}
