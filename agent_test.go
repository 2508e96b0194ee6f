package aepilot

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/youssefsiam38/aepilot/loopstate"
	"github.com/youssefsiam38/aepilot/provider/providertest"
	"github.com/youssefsiam38/aepilot/storage"
	"github.com/youssefsiam38/aepilot/tool"
	"github.com/youssefsiam38/aepilot/tool/builtin"
)

func TestNew_Validation(t *testing.T) {
	p := providertest.New()
	badSchema := tool.NewFuncTool("bad", "bad schema", tool.ToolSchema{Type: "array"},
		func(ctx context.Context, input json.RawMessage) (string, error) { return "", nil })

	tests := []struct {
		name string
		cfg  Config
		opts []Option
		want error
	}{
		{"missing provider", Config{Model: "m"}, nil, ErrInvalidConfig},
		{"missing model", Config{Provider: p}, nil, ErrInvalidConfig},
		{"zero max turns", Config{Provider: p, Model: "m"}, []Option{WithMaxTurns(0)}, ErrInvalidConfig},
		{"temperature out of range", Config{Provider: p, Model: "m"}, []Option{WithTemperature(1.5)}, ErrInvalidConfig},
		{"negative timeout", Config{Provider: p, Model: "m"}, []Option{WithRequestTimeout(-time.Second)}, ErrInvalidConfig},
		{"zero burst", Config{Provider: p, Model: "m"}, []Option{WithRateLimit(1, 0)}, ErrInvalidConfig},
		{"non-object tool schema", Config{Provider: p, Model: "m"}, []Option{WithTools(badSchema)}, ErrInvalidToolSchema},
		{"valid", Config{Provider: p, Model: "m"}, []Option{WithMaxTurns(3), WithReasoning(2048), WithRateLimit(10, 1)}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg, tt.opts...)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("New() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("New() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestNew_DuplicateTool(t *testing.T) {
	_, err := New(Config{Provider: providertest.New(), Model: "m"}, WithTools(searchTool(nil), searchTool(nil)))
	if err == nil {
		t.Error("expected error for duplicate tool names")
	}
}

func TestNewSession_GeneratesID(t *testing.T) {
	agent := newTestAgent(t, providertest.New())
	a, b := agent.NewSession(""), agent.NewSession("")
	if a.ID() == "" || a.ID() == b.ID() {
		t.Errorf("session ids %q and %q should be unique", a.ID(), b.ID())
	}
	if got := agent.NewSession("fixed").ID(); got != "fixed" {
		t.Errorf("ID() = %q", got)
	}
	if a.State() != loopstate.AwaitingModel {
		t.Errorf("new session state = %s", a.State())
	}
}

func TestRequestParameters(t *testing.T) {
	p := providertest.New(providertest.TextResponse("ok"))
	agent := newTestAgent(t, p, WithMaxTokens(9000), WithTemperature(0.3), WithReasoning(2048))

	if _, err := agent.NewSession("").Ask(context.Background(), "hi"); err != nil {
		t.Fatal(err)
	}
	req := p.Requests()[0]
	if req.MaxTokens != 9000 || !req.Reasoning || req.ReasoningBudget != 2048 {
		t.Errorf("request = %+v", req)
	}
	if req.Temperature == nil || *req.Temperature != 0.3 {
		t.Errorf("temperature = %v", req.Temperature)
	}
}

func TestAgent_RunTask(t *testing.T) {
	p := providertest.New(providertest.TextResponse("sub answer"), providertest.TextResponse("other"))
	agent := newTestAgent(t, p)

	got, err := agent.RunTask(context.Background(), "summarize the timeline")
	if err != nil {
		t.Fatalf("RunTask() error = %v", err)
	}
	if got != "sub answer" {
		t.Errorf("RunTask() = %q", got)
	}

	// Each task starts from an empty conversation
	if _, err := agent.RunTask(context.Background(), "again"); err != nil {
		t.Fatal(err)
	}
	if n := len(p.Requests()[1].Turns); n != 1 {
		t.Errorf("second task carried %d turns, want 1", n)
	}
}

func TestAgent_AsDelegateTool(t *testing.T) {
	sub := newTestAgent(t, providertest.New(providertest.TextResponse("The scene has 4 layers.")))
	delegate, err := builtin.NewDelegateTool(sub, "scene_expert", "")
	if err != nil {
		t.Fatal(err)
	}

	p := providertest.New(
		providertest.ToolResponse(providertest.ToolCall{ID: "call_1", Name: "scene_expert", Arguments: `{"task":"count layers"}`}),
		providertest.TextResponse("It has 4 layers."),
	)
	res, err := newTestAgent(t, p, WithTools(delegate)).NewSession("").Run(context.Background(), "how many layers?")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.ToolResults) != 1 || res.ToolResults[0].Payload != "The scene has 4 layers." {
		t.Errorf("tool results = %+v", res.ToolResults)
	}
}

func TestSession_Complete(t *testing.T) {
	p := providertest.New(providertest.TextResponse("  a plan  "))
	session := newTestAgent(t, p, WithTools(searchTool(nil))).NewSession("")

	got, err := session.Complete(context.Background(), "make a plan")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got != "a plan" {
		t.Errorf("Complete() = %q", got)
	}
	if session.Transcript().Len() != 0 {
		t.Error("Complete must not touch the transcript")
	}
	if len(p.Requests()[0].Tools) != 0 {
		t.Error("Complete must not offer tools")
	}

	refused := newTestAgent(t, providertest.New(providertest.TextResponseWithReason("", "refusal"))).NewSession("")
	if _, err := refused.Complete(context.Background(), "x"); !errors.Is(err, ErrRefused) {
		t.Errorf("Complete() error = %v, want ErrRefused", err)
	}
}

func TestSession_Reset(t *testing.T) {
	store := storage.NewMemoryStore()
	cache := tool.NewMemoryCache()
	p := providertest.New(
		providertest.ToolResponse(providertest.ToolCall{ID: "call_1", Name: "search_docs", Arguments: `{"query":"a"}`}),
		providertest.TextResponse("ok"),
	)
	session := newTestAgent(t, p, WithTools(searchTool(nil)), WithStore(store), WithCache(cache)).NewSession("reset-me")

	ctx := context.Background()
	if _, err := session.Run(ctx, "go"); err != nil {
		t.Fatal(err)
	}
	if cache.Len("reset-me") != 1 {
		t.Fatalf("cache entries = %d, want 1", cache.Len("reset-me"))
	}

	if err := session.Reset(ctx); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if session.Transcript().Len() != 0 || session.State() != loopstate.AwaitingModel {
		t.Errorf("after reset: %d turns in %s", session.Transcript().Len(), session.State())
	}
	if cache.Len("reset-me") != 0 {
		t.Error("cache namespace was not cleared")
	}
	if _, err := store.LoadTranscript(ctx, "reset-me"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("stored transcript should be deleted, got %v", err)
	}
}
