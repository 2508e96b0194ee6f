package builtin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/youssefsiam38/aepilot/tool"
)

// DelegateTool hands a self-contained task to a separate conversation and
// returns its final answer
type DelegateTool struct {
	runner      TaskRunner
	name        string
	description string
}

// NewDelegateTool creates a delegation tool.
// An empty description is replaced with a generic one.
func NewDelegateTool(runner TaskRunner, name, description string) (*DelegateTool, error) {
	if runner == nil {
		return nil, fmt.Errorf("task runner cannot be nil")
	}
	if name == "" {
		return nil, fmt.Errorf("name cannot be empty")
	}
	if description == "" {
		description = fmt.Sprintf("Delegate a self-contained task to the %s assistant and return its answer", name)
	}

	return &DelegateTool{
		runner:      runner,
		name:        name,
		description: description,
	}, nil
}

// Name returns the tool name
func (d *DelegateTool) Name() string {
	return d.name
}

// Description returns the tool description
func (d *DelegateTool) Description() string {
	return d.description
}

// InputSchema returns the JSON schema for the tool's input
func (d *DelegateTool) InputSchema() tool.ToolSchema {
	return tool.ToolSchema{
		Type: "object",
		Properties: map[string]tool.PropertyDef{
			"task": {
				Type:        "string",
				Description: "The task or question to delegate",
			},
			"context": {
				Type:        "string",
				Description: "Additional context for the task (optional)",
			},
		},
		Required: []string{"task"},
	}
}

// Execute runs the delegated conversation with the given task
func (d *DelegateTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	var params struct {
		Task    string `json:"task"`
		Context string `json:"context"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	if params.Task == "" {
		return "", fmt.Errorf("task is required")
	}

	prompt := params.Task
	if params.Context != "" {
		prompt = fmt.Sprintf("Context: %s\n\nTask: %s", params.Context, params.Task)
	}

	answer, err := d.runner.RunTask(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("delegated task failed: %w", err)
	}
	return answer, nil
}
