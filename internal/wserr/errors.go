// Package wserr provides a lightweight structured error type for
// category-based classification across the allocator and the reclamation
// scheduler.
package wserr

import (
	"errors"
	"fmt"
)

// ErrNotApplicable signals that the allocator declines to compute a
// workspace root because the configured root pattern is not one of the
// recognized defaults (or the allocator is disabled). It is a deliberate
// pass-through, not a failure: the host falls back to its own default.
var ErrNotApplicable = errors.New("workspace allocator not applicable")

// Category classifies an allocator error.
type Category string

const (
	// Allocation-path errors; synchronous, visible to the caller.
	CategoryCollision  Category = "collision"
	CategoryConfig     Category = "config"
	CategoryStore      Category = "store"
	CategoryValidation Category = "validation"

	// Reclamation-path errors; asynchronous, surfaced via logs and metrics.
	CategoryReclamation Category = "reclamation"
	CategoryFileSystem  Category = "filesystem"

	CategoryInternal Category = "internal"
)

// Severity indicates how critical an error is.
type Severity string

const (
	SeverityFatal   Severity = "fatal"
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Error is a structured error with category, severity, and context.
type Error struct {
	Category Category       `json:"category"`
	Severity Severity       `json:"severity"`
	Message  string         `json:"message"`
	Cause    error          `json:"cause,omitempty"`
	Context  map[string]any `json:"context,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Category, e.Severity, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Category, e.Severity, e.Message)
}

// Unwrap supports errors.Is / errors.As chains.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithContext attaches a structured context field to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// New creates a new structured error.
func New(category Category, severity Severity, message string) *Error {
	return &Error{Category: category, Severity: severity, Message: message}
}

// Wrap creates a structured error wrapping an existing one.
func Wrap(err error, category Category, severity Severity, message string) *Error {
	return &Error{Category: category, Severity: severity, Message: message, Cause: err}
}

// IsCategory checks whether err (or anything it wraps) carries the category.
func IsCategory(err error, category Category) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Category == category
	}
	return false
}

// GetCategory extracts the category from err, or CategoryInternal when err
// is not a structured error.
func GetCategory(err error) Category {
	var e *Error
	if errors.As(err, &e) {
		return e.Category
	}
	return CategoryInternal
}
