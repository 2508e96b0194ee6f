package builtin

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/youssefsiam38/aepilot/tool"
)

type fakeRunner struct {
	result CommandResult
	err    error
	source string
}

func (f *fakeRunner) RunCommand(ctx context.Context, source string) (CommandResult, error) {
	f.source = source
	return f.result, f.err
}

type fakeSearcher struct {
	resp  SearchResponse
	err   error
	query string
	topK  int
}

func (f *fakeSearcher) Search(ctx context.Context, query string, topK int) (SearchResponse, error) {
	f.query, f.topK = query, topK
	return f.resp, f.err
}

type fakeGraph struct {
	name   string
	params map[string]any
	out    json.RawMessage
}

func (f *fakeGraph) Query(ctx context.Context, name string, params map[string]any) (json.RawMessage, error) {
	f.name, f.params = name, params
	return f.out, nil
}

type fakeTaskRunner struct {
	prompt string
}

func (f *fakeTaskRunner) RunTask(ctx context.Context, prompt string) (string, error) {
	f.prompt = prompt
	return "delegated answer", nil
}

func TestScriptTool(t *testing.T) {
	tests := []struct {
		name      string
		runner    *fakeRunner
		wantErr   string
		wantParts []string
	}{
		{
			name: "success with logs",
			runner: &fakeRunner{result: CommandResult{
				Success: true, Output: "3 layers", ExecutionTimeMs: 12, LogLines: []string{"selected Main Comp"},
			}},
			wantParts: []string{"3 layers", "## Log", "selected Main Comp", "12 ms"},
		},
		{
			name:    "script failure",
			runner:  &fakeRunner{result: CommandResult{Success: false, Error: "ReferenceError: foo", LogLines: []string{"line 2"}}},
			wantErr: "ReferenceError: foo",
		},
		{
			name:    "bridge error",
			runner:  &fakeRunner{err: errors.New("bridge offline")},
			wantErr: "bridge offline",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := NewScriptTool(tt.runner)
			if err != nil {
				t.Fatal(err)
			}
			out, err := st.Execute(context.Background(), json.RawMessage(`{"source":"app.project.numItems"}`))
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Execute() error = %v", err)
			}
			for _, part := range tt.wantParts {
				if !strings.Contains(out, part) {
					t.Errorf("output %q missing %q", out, part)
				}
			}
			if tt.runner.source != "app.project.numItems" {
				t.Errorf("runner got source %q", tt.runner.source)
			}
		})
	}
}

func TestSearchTools(t *testing.T) {
	searcher := &fakeSearcher{resp: SearchResponse{
		Success:      true,
		TotalResults: 7,
		Results: []SearchHit{
			{Content: "<p>Use <b>wiggle(freq, amp)</b> &amp; friends</p><script>alert(1)</script>", SourceID: "https://example.com/wiggle"},
		},
	}}

	docs, _ := NewDocsSearchTool(searcher)
	web, _ := NewWebSearchTool(searcher)

	out, err := web.Execute(context.Background(), json.RawMessage(`{"query":"wiggle"}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if searcher.topK != defaultTopK {
		t.Errorf("topK = %d, want default %d", searcher.topK, defaultTopK)
	}
	if strings.Contains(out, "<b>") || strings.Contains(out, "alert") {
		t.Errorf("web output not sanitized: %q", out)
	}
	if !strings.Contains(out, "Use wiggle(freq, amp) & friends") {
		t.Errorf("web output lost text: %q", out)
	}
	if !strings.Contains(out, "## Result 1") || !strings.Contains(out, "1 of 7") {
		t.Errorf("unexpected layout: %q", out)
	}

	out, err = docs.Execute(context.Background(), json.RawMessage(`{"query":"wiggle","top_k":2}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if searcher.topK != 2 {
		t.Errorf("topK = %d, want 2", searcher.topK)
	}
	if !strings.Contains(out, "<b>") {
		t.Errorf("docs output should be passed through: %q", out)
	}

	searcher.resp = SearchResponse{Success: false, Error: "index not loaded"}
	if _, err := docs.Execute(context.Background(), json.RawMessage(`{"query":"x"}`)); err == nil || !strings.Contains(err.Error(), "index not loaded") {
		t.Errorf("expected backend failure, got %v", err)
	}

	searcher.resp = SearchResponse{Success: true}
	out, _ = docs.Execute(context.Background(), json.RawMessage(`{"query":"nothing"}`))
	if !strings.Contains(out, "No results") {
		t.Errorf("expected empty message, got %q", out)
	}
}

func TestGraphTool(t *testing.T) {
	graph := &fakeGraph{out: json.RawMessage(`[{"id":"comp_1","name":"Main Comp"}]`)}
	gt, _ := NewGraphTool(graph)

	out, err := gt.Execute(context.Background(), json.RawMessage(`{"query":"composition_hierarchy","params":{"composition_id":"comp_1"}}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if graph.name != "composition_hierarchy" || graph.params["composition_id"] != "comp_1" {
		t.Errorf("graph called with %q %v", graph.name, graph.params)
	}
	if !strings.Contains(out, "Main Comp") {
		t.Errorf("output = %q", out)
	}
}

func TestDelegateTool(t *testing.T) {
	runner := &fakeTaskRunner{}
	dt, err := NewDelegateTool(runner, "expression_expert", "")
	if err != nil {
		t.Fatal(err)
	}

	out, err := dt.Execute(context.Background(), json.RawMessage(`{"task":"write a bounce","context":"layer is a shape"}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if out != "delegated answer" {
		t.Errorf("output = %q", out)
	}
	if !strings.Contains(runner.prompt, "Context: layer is a shape") || !strings.Contains(runner.prompt, "Task: write a bounce") {
		t.Errorf("prompt = %q", runner.prompt)
	}
	if !strings.Contains(dt.Description(), "expression_expert") {
		t.Errorf("default description = %q", dt.Description())
	}

	if _, err := NewDelegateTool(nil, "x", ""); err == nil {
		t.Error("expected error for nil runner")
	}
}

func TestBuiltinsRegister(t *testing.T) {
	registry := tool.NewRegistry()
	script, _ := NewScriptTool(&fakeRunner{})
	docs, _ := NewDocsSearchTool(&fakeSearcher{})
	web, _ := NewWebSearchTool(&fakeSearcher{})
	graph, _ := NewGraphTool(&fakeGraph{})
	delegate, _ := NewDelegateTool(&fakeTaskRunner{}, "delegate_task", "")

	if err := registry.RegisterAll([]tool.Tool{script, docs, web, graph, delegate}); err != nil {
		t.Fatalf("RegisterAll() error = %v", err)
	}
	want := []string{"delegate_task", "query_graph", "run_script", "search_docs", "search_web"}
	if got := registry.List(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("List() = %v, want %v", got, want)
	}
}
