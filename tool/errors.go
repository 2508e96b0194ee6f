package tool

import (
	"errors"
	"fmt"
)

// Tool error sentinel values for type checking
var (
	// ErrToolNotFound is returned when the model names a tool that is not registered.
	ErrToolNotFound = errors.New("tool not found")

	// ErrInvalidArguments is returned when arguments do not satisfy the tool schema.
	ErrInvalidArguments = errors.New("invalid arguments")

	// ErrToolTimeout is returned when a tool exceeds its timeout.
	ErrToolTimeout = errors.New("tool timed out")

	// ErrToolCancelled is returned when the caller cancels while a tool runs.
	ErrToolCancelled = errors.New("tool cancelled")

	// ErrToolPanicked is returned when a tool handler panics.
	ErrToolPanicked = errors.New("tool panicked")

	// ErrToolSkipped is returned for calls beyond the per-turn call limit.
	ErrToolSkipped = errors.New("tool call skipped")
)

// ToolError records which tool failed and why.
type ToolError struct {
	// Name is the requested tool name
	Name string

	// Err is the underlying error
	Err error

	// Detail is extra guidance appended to the message
	Detail string
}

// Error returns the error message.
func (e *ToolError) Error() string {
	msg := fmt.Sprintf("tool %s: %v", e.Name, e.Err)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ToolError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is an unknown-tool error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrToolNotFound)
}

// IsTimeout reports whether err is a tool timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrToolTimeout)
}
