package aepilot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/youssefsiam38/aepilot/compaction"
	"github.com/youssefsiam38/aepilot/loopstate"
	"github.com/youssefsiam38/aepilot/provider/providertest"
	"github.com/youssefsiam38/aepilot/storage"
	"github.com/youssefsiam38/aepilot/streaming"
	"github.com/youssefsiam38/aepilot/transcript"
)

var smallWindow = compaction.Config{
	Trigger:          0.5,
	MaxContextTokens: 1000,
	PreserveLastN:    2,
	ProtectedTokens:  100,
	PruneMinimum:     50,
}

// longHistory stores five verbose exchanges under id and returns the store
func longHistory(t *testing.T, id string) *storage.MemoryStore {
	t.Helper()
	var turns []transcript.Turn
	for i := 0; i < 5; i++ {
		callID := fmt.Sprintf("call_%d", i)
		turns = append(turns,
			transcript.Turn{Role: transcript.RoleUser, Text: fmt.Sprintf("question %d %s", i, strings.Repeat("q", 700))},
			transcript.Turn{Role: transcript.RoleAssistant, ToolCalls: []streaming.ToolCall{{ID: callID, Name: "search", Arguments: map[string]any{"query": "q"}}}},
			transcript.Turn{Role: transcript.RoleToolResult, Result: &transcript.ToolResult{ToolCallID: callID, ToolName: "search", Success: true, Payload: "ok"}},
			transcript.Turn{Role: transcript.RoleAssistant, Text: fmt.Sprintf("answer %d", i)},
		)
	}

	store := storage.NewMemoryStore()
	rec := &storage.Record{SessionID: id, Turns: turns, LastState: loopstate.Done}
	if err := store.SaveTranscript(context.Background(), rec); err != nil {
		t.Fatal(err)
	}
	return store
}

func TestRun_CompactsLongTranscript(t *testing.T) {
	store := longHistory(t, "long")
	p := providertest.New(
		providertest.TextResponse("The user asked about layers four times."),
		providertest.TextResponse("Here is the fifth answer."),
	)
	agent := newTestAgent(t, p, WithStore(store), WithCompaction(smallWindow))

	ctx := context.Background()
	session, err := agent.LoadSession(ctx, "long")
	if err != nil {
		t.Fatal(err)
	}

	res, err := session.Run(ctx, "and the fifth?")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Text != "Here is the fifth answer." || res.Requests != 1 {
		t.Errorf("result = %q after %d requests", res.Text, res.Requests)
	}
	if len(res.Turns) != 2 {
		t.Errorf("run turns = %d, want only the new exchange", len(res.Turns))
	}

	reqs := p.Requests()
	if len(reqs) != 2 {
		t.Fatalf("requests = %d, want summary plus answer", len(reqs))
	}
	if len(reqs[0].Tools) != 0 {
		t.Error("summary request must not offer tools")
	}
	sent := reqs[1].Turns
	if !strings.HasPrefix(sent[0].Text, compaction.SummaryPrefix) {
		t.Errorf("first turn sent = %q", sent[0].Text)
	}
	if len(sent) != 1+4+1 {
		t.Errorf("sent %d turns, want summary, last exchange and prompt", len(sent))
	}

	rec, err := store.LoadTranscript(ctx, "long")
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.Turns) != session.Transcript().Len() {
		t.Errorf("stored %d turns, session has %d", len(rec.Turns), session.Transcript().Len())
	}
}

func TestRun_CompactionFailureKeepsTranscript(t *testing.T) {
	store := longHistory(t, "long")
	p := providertest.New(
		providertest.TextResponse("   "),
		providertest.TextResponse("answer"),
	)
	agent := newTestAgent(t, p, WithStore(store), WithCompaction(smallWindow))

	ctx := context.Background()
	session, err := agent.LoadSession(ctx, "long")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := session.Run(ctx, "next"); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := session.Transcript().Len(); got != 20+2 {
		t.Errorf("transcript = %d turns, want the full history plus the new exchange", got)
	}
}

func TestSession_Compact(t *testing.T) {
	p := providertest.New(providertest.TextResponse("hi"))
	agent := newTestAgent(t, p)
	session := agent.NewSession("")

	if _, err := session.Run(context.Background(), "hello"); err != nil {
		t.Fatal(err)
	}
	_, err := session.Compact(context.Background())
	if !errors.Is(err, compaction.ErrNothingToCompact) {
		t.Errorf("Compact() error = %v, want ErrNothingToCompact", err)
	}
	if session.Transcript().Len() != 2 {
		t.Errorf("transcript changed: %d turns", session.Transcript().Len())
	}
}

func TestWithCompaction_Validation(t *testing.T) {
	_, err := New(Config{Provider: providertest.New(), Model: "m"}, WithCompaction(compaction.Config{Trigger: 2}))
	if !errors.Is(err, ErrInvalidConfig) || !errors.Is(err, compaction.ErrInvalidConfig) {
		t.Errorf("error = %v", err)
	}
}

type staticCounter struct {
	tokens int
}

func (c staticCounter) CountTokens(ctx context.Context, turns []transcript.Turn) (int, error) {
	return c.tokens, nil
}

func TestRun_CompactionUsesTokenCounter(t *testing.T) {
	tests := []struct {
		name         string
		tokens       int
		wantRequests int
		wantTurns    int
	}{
		{"counter under threshold", 10, 1, 22},
		{"counter over threshold", 900, 2, 5 + 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := longHistory(t, "long")
			p := providertest.New(
				providertest.TextResponse("summary of the layer questions"),
				providertest.TextResponse("answer"),
			)
			cfg := smallWindow
			cfg.Counter = staticCounter{tokens: tt.tokens}
			agent := newTestAgent(t, p, WithStore(store), WithCompaction(cfg))

			ctx := context.Background()
			session, err := agent.LoadSession(ctx, "long")
			if err != nil {
				t.Fatal(err)
			}
			if _, err := session.Run(ctx, "next"); err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if got := len(p.Requests()); got != tt.wantRequests {
				t.Errorf("requests = %d, want %d", got, tt.wantRequests)
			}
			if got := session.Transcript().Len(); got != tt.wantTurns {
				t.Errorf("transcript = %d turns, want %d", got, tt.wantTurns)
			}
		})
	}
}
