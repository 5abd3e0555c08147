// Package validator wraps request validation for the matchmaker's edges.
package validator

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// ValidateStruct validates a struct and returns the raw validator error.
func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}

// ValidateRequest validates a request struct and returns formatted errors.
// Returns nil if validation passes, or a map of field errors.
func ValidateRequest(s interface{}) map[string]string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	errors := make(map[string]string)

	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		for _, e := range validationErrs {
			field := strings.ToLower(e.Field())
			errors[field] = formatValidationError(e)
		}
	}

	return errors
}

// BindJSON binds the request body into req and validates it. Returns a
// human-readable problem description, or "" when the request is valid.
func BindJSON(c *gin.Context, req interface{}) string {
	if err := c.ShouldBindJSON(req); err != nil {
		return "Invalid request format"
	}

	if errs := ValidateRequest(req); errs != nil {
		parts := make([]string, 0, len(errs))
		for field, msg := range errs {
			parts = append(parts, fmt.Sprintf("%s: %s", field, msg))
		}
		return "Validation failed: " + strings.Join(parts, "; ")
	}
	return ""
}

// formatValidationError converts validator errors to human-readable messages
func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", e.Field())
	case "min":
		return fmt.Sprintf("Must be at least %s", e.Param())
	case "max":
		return fmt.Sprintf("Must be at most %s", e.Param())
	case "gte":
		return fmt.Sprintf("Must be greater than or equal to %s", e.Param())
	case "lte":
		return fmt.Sprintf("Must be less than or equal to %s", e.Param())
	default:
		return fmt.Sprintf("Validation failed: %s", e.Tag())
	}
}
