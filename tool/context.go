package tool

import (
	"context"

	"github.com/google/uuid"
)

// Context keys for call information passed to tools
type contextKey string

const (
	runContextKey contextKey = "aepilot_run_context"
)

// RunContext contains call-level information available to tools during execution.
// Tools can access this via GetRunContext() or the convenience GetVariable() helper.
type RunContext struct {
	// RunID identifies the conversation run that issued the call
	RunID uuid.UUID

	// SessionID identifies the conversation session
	SessionID string

	// CallID is the id of the tool call being executed
	CallID string

	// Variables contains per-session values supplied by the caller,
	// such as the project path or composition name.
	Variables map[string]any
}

// WithRunContext attaches run context to the given context.
// The invoker calls this before executing a tool.
func WithRunContext(ctx context.Context, rc RunContext) context.Context {
	return context.WithValue(ctx, runContextKey, rc)
}

// GetRunContext extracts the run context.
// Returns false if the context was not enriched with run information.
func GetRunContext(ctx context.Context) (RunContext, bool) {
	rc, ok := ctx.Value(runContextKey).(RunContext)
	return rc, ok
}

// GetSessionID extracts the session ID from the context.
func GetSessionID(ctx context.Context) (string, bool) {
	rc, ok := GetRunContext(ctx)
	return rc.SessionID, ok && rc.SessionID != ""
}

// GetVariable extracts a single variable from the context by key.
// The type parameter T specifies the expected type of the variable.
// Returns the zero value and false if the variable is not found or has wrong type.
//
// Example:
//
//	comp, ok := tool.GetVariable[string](ctx, "composition")
//	if !ok {
//	    return "", errors.New("composition not provided")
//	}
func GetVariable[T any](ctx context.Context, key string) (T, bool) {
	var zero T
	rc, ok := GetRunContext(ctx)
	if !ok || rc.Variables == nil {
		return zero, false
	}
	val, ok := rc.Variables[key]
	if !ok {
		return zero, false
	}
	typed, ok := val.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}

// GetVariableOr extracts a variable from the context or returns the default value.
func GetVariableOr[T any](ctx context.Context, key string, defaultValue T) T {
	val, ok := GetVariable[T](ctx, key)
	if !ok {
		return defaultValue
	}
	return val
}
