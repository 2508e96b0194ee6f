// Package aepilot drives tool-using conversations with a streaming language
// model on behalf of a creative-application assistant.
//
// A run sends the conversation upstream, decodes the streamed reply into an
// assistant message, executes any tools the model asked for and feeds their
// results back until the model answers in plain text.
//
// # Quick Start
//
//	p, _ := anthropic.NewFromAPIKey(os.Getenv("ANTHROPIC_API_KEY"))
//	agent, err := aepilot.New(
//	    aepilot.Config{
//	        Provider:     p,
//	        Model:        "claude-sonnet-4-5-20250929",
//	        SystemPrompt: "You are a motion design assistant",
//	    },
//	    aepilot.WithTools(searchTool, scriptTool),
//	    aepilot.WithMaxTurns(8),
//	)
//
//	session := agent.NewSession("")
//	result, err := session.Run(ctx, "Add a fade to the title layer")
//	fmt.Println(result.Text)
//
// # Custom Tools
//
// Implement tool.Tool, or wrap a function:
//
//	t := tool.NewFuncTool("list_layers", "List composition layers",
//	    tool.ToolSchema{Type: "object"},
//	    func(ctx context.Context, input json.RawMessage) (string, error) {
//	        return "title, background", nil
//	    })
//
// Tool failures never abort a run. The model receives the error text as the
// call's result and decides what to do next.
//
// # Run States
//
// Each request moves the run from awaiting_model to decoding. A reply with
// tool calls leads to tools_requested and back to awaiting_model; a reply
// without them ends in done. Refusals and transport errors end in failed, and
// caller cancellation in cancelled. When the turn limit is reached while tools
// are still requested, one more request without tools asks for a summary.
//
// # Delegation
//
// An Agent satisfies builtin.TaskRunner, so a specialist agent can be offered
// to another agent as a tool:
//
//	expert, _ := builtin.NewDelegateTool(specialist, "scene_expert", "")
//	agent, _ := aepilot.New(cfg, aepilot.WithTools(expert))
//
// # Observability
//
// Hooks observe every request, message, tool call and finished run. The
// metrics package exposes the same events as Prometheus collectors, and runs,
// requests and tool calls are traced with OpenTelemetry.
package aepilot
