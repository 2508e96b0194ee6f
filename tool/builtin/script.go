package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/youssefsiam38/aepilot/tool"
)

// ScriptTool runs script source in the host application
type ScriptTool struct {
	runner CommandRunner
}

// NewScriptTool creates the run_script tool
func NewScriptTool(runner CommandRunner) (*ScriptTool, error) {
	if runner == nil {
		return nil, fmt.Errorf("command runner cannot be nil")
	}
	return &ScriptTool{runner: runner}, nil
}

// Name implements tool.Tool
func (s *ScriptTool) Name() string {
	return "run_script"
}

// Description implements tool.Tool
func (s *ScriptTool) Description() string {
	return "Run an ExtendScript snippet in the open After Effects project and return its output and log lines."
}

// InputSchema implements tool.Tool
func (s *ScriptTool) InputSchema() tool.ToolSchema {
	return tool.ToolSchema{
		Type: "object",
		Properties: map[string]tool.PropertyDef{
			"source": {
				Type:        "string",
				Description: "Script source to evaluate",
				MinLength:   intPtr(1),
			},
		},
		Required: []string{"source"},
	}
}

// Execute implements tool.Tool
func (s *ScriptTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	var params struct {
		Source string `json:"source"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}

	res, err := s.runner.RunCommand(ctx, params.Source)
	if err != nil {
		return "", fmt.Errorf("run script: %w", err)
	}
	if !res.Success {
		msg := res.Error
		if msg == "" {
			msg = "script failed"
		}
		if len(res.LogLines) > 0 {
			msg += "\nlog:\n" + strings.Join(res.LogLines, "\n")
		}
		return "", fmt.Errorf("%s", msg)
	}

	var b strings.Builder
	b.WriteString(res.Output)
	if len(res.LogLines) > 0 {
		b.WriteString("\n\n## Log\n\n")
		b.WriteString(strings.Join(res.LogLines, "\n"))
	}
	fmt.Fprintf(&b, "\n\n(executed in %d ms)", res.ExecutionTimeMs)
	return b.String(), nil
}

func intPtr(i int) *int {
	return &i
}
