// Package builtin adapts the assistant's external collaborators (the host
// scripting bridge, the documentation and web search backends, the project
// graph and nested conversations) into tools.
package builtin

import (
	"context"
	"encoding/json"
)

// CommandResult is the outcome of running a script in the host application
type CommandResult struct {
	Success         bool     `json:"success"`
	Output          string   `json:"output"`
	Error           string   `json:"error,omitempty"`
	ExecutionTimeMs int64    `json:"execution_time_ms"`
	LogLines        []string `json:"log_lines,omitempty"`
}

// CommandRunner executes script source inside the host application
type CommandRunner interface {
	RunCommand(ctx context.Context, source string) (CommandResult, error)
}

// SearchHit is one retrieved passage
type SearchHit struct {
	Content  string `json:"content"`
	SourceID string `json:"source_id"`

	// SourceQuery is the expanded query that found the passage
	SourceQuery string `json:"source_query,omitempty"`
}

// SearchResponse is the outcome of a retrieval query
type SearchResponse struct {
	Success      bool        `json:"success"`
	Results      []SearchHit `json:"results"`
	TotalResults int         `json:"total_results"`
	Error        string      `json:"error,omitempty"`
}

// Searcher retrieves passages for a query
type Searcher interface {
	Search(ctx context.Context, query string, topK int) (SearchResponse, error)
}

// GraphQuerier runs a named query against the project graph
type GraphQuerier interface {
	Query(ctx context.Context, name string, params map[string]any) (json.RawMessage, error)
}

// TaskRunner runs a prompt to completion in a separate conversation
type TaskRunner interface {
	RunTask(ctx context.Context, prompt string) (string, error)
}
