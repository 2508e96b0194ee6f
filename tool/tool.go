// Package tool registers the tools a model may call and executes the calls it
// requests: argument validation, per-session result caching, timeouts and
// payload truncation.
package tool

import (
	"context"
	"encoding/json"
	"time"
)

// Tool is the interface that all tools must implement
type Tool interface {
	// Name returns the tool name (used in API calls)
	Name() string

	// Description returns a human-readable description of what the tool does
	Description() string

	// InputSchema returns the JSON Schema for the tool's input parameters
	// Must include "type", "properties", and optionally "required" array
	InputSchema() ToolSchema

	// Execute runs the tool with the provided input and returns the payload
	// handed back to the model.
	Execute(ctx context.Context, input json.RawMessage) (string, error)
}

// HandlerFunc is the function form of Tool.Execute
type HandlerFunc func(ctx context.Context, input json.RawMessage) (string, error)

// ToolSchema defines the JSON Schema for a tool's input parameters
type ToolSchema struct {
	// Type must be "object"
	Type string `json:"type"`

	// Properties defines the tool's parameters
	Properties map[string]PropertyDef `json:"properties"`

	// Required lists the names of required parameters
	Required []string `json:"required,omitempty"`
}

// PropertyDef defines a single property in the tool schema
type PropertyDef struct {
	// Type is the JSON Schema type (string, number, integer, boolean, array, object)
	Type string `json:"type"`

	// Description explains what this parameter is for
	Description string `json:"description,omitempty"`

	// Enum restricts the parameter to specific values
	Enum []string `json:"enum,omitempty"`

	// Items defines the schema for array items (when Type is "array")
	Items *PropertyDef `json:"items,omitempty"`

	// Properties defines nested object properties (when Type is "object")
	Properties map[string]PropertyDef `json:"properties,omitempty"`

	// Minimum/Maximum for number types
	Minimum *float64 `json:"minimum,omitempty"`
	Maximum *float64 `json:"maximum,omitempty"`

	// MinLength/MaxLength for string types, counted in characters
	MinLength *int `json:"minLength,omitempty"`
	MaxLength *int `json:"maxLength,omitempty"`
}

// Definition is the provider-neutral description of a tool sent with each
// request that allows tool use.
type Definition struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	InputSchema ToolSchema `json:"input_schema"`
}

// Request is a tool call requested by the model.
type Request struct {
	// ID pairs the call with its result
	ID string `json:"id"`

	// Name is the exact registered tool name
	Name string `json:"name"`

	// Arguments is the decoded argument object
	Arguments map[string]any `json:"arguments"`
}

// Result is the normalized outcome of a tool call. ID always equals the ID
// of the Request that produced it.
type Result struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Success   bool          `json:"success"`
	Payload   string        `json:"payload,omitempty"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
	Truncated bool          `json:"truncated,omitempty"`
	Cached    bool          `json:"cached,omitempty"`
}

// Content returns the text handed back to the model for this result.
func (r Result) Content() string {
	if r.Success {
		return r.Payload
	}
	if r.Error == "" {
		return "tool failed"
	}
	return r.Error
}

// funcTool is a simple Tool implementation using a function
type funcTool struct {
	name        string
	description string
	schema      ToolSchema
	fn          HandlerFunc
}

// Name implements Tool
func (t *funcTool) Name() string {
	return t.name
}

// Description implements Tool
func (t *funcTool) Description() string {
	return t.description
}

// InputSchema implements Tool
func (t *funcTool) InputSchema() ToolSchema {
	return t.schema
}

// Execute implements Tool
func (t *funcTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	return t.fn(ctx, input)
}

// NewFuncTool creates a Tool from a function
// This is useful for simple tools where you don't want to create a full struct
func NewFuncTool(name string, description string, schema ToolSchema, fn HandlerFunc) Tool {
	return &funcTool{
		name:        name,
		description: description,
		schema:      schema,
		fn:          fn,
	}
}
