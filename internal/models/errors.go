package models

import (
	"fmt"
	"strings"
)

// ValidationError is a business-rule rejection raised before any request is sent.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError creates a ValidationError for a field.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// FieldError is one entry of a server-side validation failure (HTTP 422).
type FieldError struct {
	Loc  []any  `json:"loc"`
	Msg  string `json:"msg"`
	Type string `json:"type"`
}

// HTTPValidationError is the body of a server-side validation failure.
type HTTPValidationError struct {
	Detail []FieldError `json:"detail"`
}

// Summary joins the field errors into one line.
func (e HTTPValidationError) Summary() string {
	parts := make([]string, 0, len(e.Detail))
	for _, d := range e.Detail {
		loc := make([]string, 0, len(d.Loc))
		for _, l := range d.Loc {
			loc = append(loc, fmt.Sprint(l))
		}
		parts = append(parts, fmt.Sprintf("%s: %s", strings.Join(loc, "."), d.Msg))
	}
	return strings.Join(parts, "; ")
}
