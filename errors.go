package aepilot

import (
	"errors"
	"fmt"

	"github.com/youssefsiam38/aepilot/streaming"
)

// Common errors
var (
	// ErrInvalidConfig is returned when the agent configuration is invalid
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidToolSchema is returned when a tool schema is invalid
	ErrInvalidToolSchema = errors.New("invalid tool schema")

	// ErrRefused is returned when the provider refuses a turn. Refusals are
	// terminal and never retried.
	ErrRefused = errors.New("request refused by provider")

	// ErrTransport is returned when the upstream request or its stream fails.
	// The loop does not retry; callers decide.
	ErrTransport = streaming.ErrTransport

	// ErrCancelled is returned when the caller cancels a run
	ErrCancelled = errors.New("run cancelled")

	// ErrProtocol is returned when the model's messages cannot be recorded,
	// for example a tool result without a matching call
	ErrProtocol = errors.New("conversation protocol violation")

	// ErrSessionNotFound is returned when a stored session does not exist
	ErrSessionNotFound = errors.New("session not found")

	// ErrNoStore is returned when persistence is requested without a store
	ErrNoStore = errors.New("no store configured")
)

// AgentError represents an error with additional context
type AgentError struct {
	Op        string         // Operation that failed
	Err       error          // Underlying error
	SessionID string         // Session ID if applicable
	Context   map[string]any // Additional context
}

// Error implements the error interface
func (e *AgentError) Error() string {
	if e.SessionID != "" {
		return fmt.Sprintf("%s (session=%s): %v", e.Op, e.SessionID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *AgentError) Unwrap() error {
	return e.Err
}

// WithContext adds additional context to the error
func (e *AgentError) WithContext(key string, value any) *AgentError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// NewAgentError creates a new AgentError
func NewAgentError(op string, err error) *AgentError {
	return &AgentError{
		Op:  op,
		Err: err,
	}
}

// NewAgentErrorWithSession creates a new AgentError with session ID
func NewAgentErrorWithSession(op string, sessionID string, err error) *AgentError {
	return &AgentError{
		Op:        op,
		Err:       err,
		SessionID: sessionID,
	}
}
