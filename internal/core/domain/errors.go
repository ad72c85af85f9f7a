package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for user operations.
var (
	// ErrUserNotFound indicates the requested user does not exist.
	// HTTP Status: 404 Not Found
	ErrUserNotFound = errors.New("user not found")

	// ErrInvalidID indicates the id is not a well-formed record identifier.
	// HTTP Status: 404 Not Found (treated as a missing record)
	ErrInvalidID = errors.New("invalid user id")
)

// FieldError describes one failed field check.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports every field that failed validation.
// HTTP Status: 400 Bad Request
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// HasField reports whether the named field is among the failures.
func (e *ValidationError) HasField(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}
