package builtin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/youssefsiam38/aepilot/tool"
)

// GraphQueries are the named project graph queries the model may run
var GraphQueries = []string{
	"composition_hierarchy",
	"dependencies",
	"related_by_name",
	"effects_chain",
	"expression_dependencies",
	"time_relationships",
	"unused_elements",
	"render_path",
}

// GraphTool exposes named project graph queries
type GraphTool struct {
	graph GraphQuerier
}

// NewGraphTool creates the query_graph tool
func NewGraphTool(graph GraphQuerier) (*GraphTool, error) {
	if graph == nil {
		return nil, fmt.Errorf("graph querier cannot be nil")
	}
	return &GraphTool{graph: graph}, nil
}

// Name implements tool.Tool
func (g *GraphTool) Name() string {
	return "query_graph"
}

// Description implements tool.Tool
func (g *GraphTool) Description() string {
	return "Query the project graph of compositions, layers, effects and expressions. " +
		"Pick a named query and pass its parameters, for example {\"composition_id\": \"comp_1\", \"depth\": 2}."
}

// InputSchema implements tool.Tool
func (g *GraphTool) InputSchema() tool.ToolSchema {
	return tool.ToolSchema{
		Type: "object",
		Properties: map[string]tool.PropertyDef{
			"query": {
				Type:        "string",
				Description: "Named query to run",
				Enum:        GraphQueries,
			},
			"params": {
				Type:        "object",
				Description: "Query parameters such as composition_id, layer_id, node_id, search_term or depth",
			},
		},
		Required: []string{"query"},
	}
}

// Execute implements tool.Tool
func (g *GraphTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	var params struct {
		Query  string         `json:"query"`
		Params map[string]any `json:"params"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	if params.Params == nil {
		params.Params = map[string]any{}
	}

	out, err := g.graph.Query(ctx, params.Query, params.Params)
	if err != nil {
		return "", fmt.Errorf("graph query %s: %w", params.Query, err)
	}
	if len(out) == 0 {
		return "[]", nil
	}
	return string(out), nil
}
