package transcript

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/youssefsiam38/aepilot/streaming"
	"github.com/youssefsiam38/aepilot/tool"
)

func toolMessage(ids ...string) *streaming.Message {
	msg := &streaming.Message{StopReason: streaming.StopReasonToolRequest}
	for _, id := range ids {
		msg.ToolCalls = append(msg.ToolCalls, streaming.ToolCall{ID: id, Name: "search_docs", Arguments: map[string]any{"query": "cat"}})
	}
	return msg
}

func TestTranscript_Pairing(t *testing.T) {
	tr := New()

	if err := tr.AppendUser("how do I wiggle?"); err != nil {
		t.Fatalf("AppendUser() error = %v", err)
	}
	if err := tr.AppendToolResult(tool.Result{ID: "call_1", Success: true}); !errors.Is(err, ErrUnpairedToolResult) {
		t.Errorf("result before assistant turn: error = %v, want ErrUnpairedToolResult", err)
	}

	if err := tr.AppendAssistant(toolMessage("call_1", "call_2")); err != nil {
		t.Fatalf("AppendAssistant() error = %v", err)
	}
	if got := len(tr.PendingToolCalls()); got != 2 {
		t.Errorf("PendingToolCalls() = %d, want 2", got)
	}

	if err := tr.AppendUser("hello?"); !errors.Is(err, ErrPendingToolCalls) {
		t.Errorf("user turn with open calls: error = %v, want ErrPendingToolCalls", err)
	}
	if err := tr.AppendToolResult(tool.Result{ID: "call_x", Success: true}); !errors.Is(err, ErrUnpairedToolResult) {
		t.Errorf("unknown id: error = %v, want ErrUnpairedToolResult", err)
	}

	if err := tr.AppendToolResult(tool.Result{ID: "call_2", Success: true, Payload: "two"}); err != nil {
		t.Fatalf("AppendToolResult(call_2) error = %v", err)
	}
	if err := tr.AppendToolResult(tool.Result{ID: "call_2", Success: true}); !errors.Is(err, ErrUnpairedToolResult) {
		t.Errorf("duplicate result: error = %v, want ErrUnpairedToolResult", err)
	}
	if err := tr.AppendToolResult(tool.Result{ID: "call_1", Success: false, Error: "boom"}); err != nil {
		t.Fatalf("AppendToolResult(call_1) error = %v", err)
	}

	if pending := tr.PendingToolCalls(); len(pending) != 0 {
		t.Errorf("PendingToolCalls() = %v, want none", pending)
	}
	if err := tr.AppendAssistant(&streaming.Message{Text: "Use wiggle(2, 30).", StopReason: streaming.StopReasonEnd}); err != nil {
		t.Fatalf("AppendAssistant() error = %v", err)
	}

	turns := tr.Turns()
	if len(turns) != 5 {
		t.Fatalf("Len = %d, want 5", len(turns))
	}
	if turns[2].Result.ToolName != "search_docs" {
		t.Errorf("result tool name = %q, want search_docs", turns[2].Result.ToolName)
	}
	if turns[3].Result.Content() != "boom" {
		t.Errorf("failed result content = %q, want boom", turns[3].Result.Content())
	}
	if err := Validate(turns); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestTranscript_JSONRoundTrip(t *testing.T) {
	tr := New()
	_ = tr.AppendUser("find cats")
	_ = tr.AppendAssistant(toolMessage("call_1"))
	_ = tr.AppendToolResult(tool.Result{ID: "call_1", Success: true, Payload: "3 cats"})

	data, err := json.Marshal(tr)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	restored := New()
	if err := json.Unmarshal(data, restored); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if restored.Len() != 3 {
		t.Errorf("restored Len = %d, want 3", restored.Len())
	}
	if last, _ := restored.Last(); last.Result == nil || last.Result.Payload != "3 cats" {
		t.Errorf("restored last turn = %+v", last)
	}
}

func TestTranscript_UnmarshalRejectsUnpaired(t *testing.T) {
	data := `[{"role":"user","text":"hi"},{"role":"tool_result","result":{"tool_call_id":"ghost","success":true}}]`

	if err := json.Unmarshal([]byte(data), New()); !errors.Is(err, ErrUnpairedToolResult) {
		t.Errorf("Unmarshal() error = %v, want ErrUnpairedToolResult", err)
	}
}

func TestTranscript_Reset(t *testing.T) {
	tr := New()
	_ = tr.AppendUser("one")
	tr.Reset()
	if tr.Len() != 0 {
		t.Errorf("Len() after Reset = %d", tr.Len())
	}
	if _, ok := tr.Last(); ok {
		t.Error("Last() should report no turns")
	}
}

func TestFromTurns(t *testing.T) {
	src := New()
	_ = src.AppendUser("find cats")
	_ = src.AppendAssistant(toolMessage("call_1"))

	restored, err := FromTurns(src.Turns())
	if err != nil {
		t.Fatalf("FromTurns() error = %v", err)
	}
	if got := len(restored.PendingToolCalls()); got != 1 {
		t.Errorf("PendingToolCalls() = %d, want 1", got)
	}
	if err := restored.AppendToolResult(tool.Result{ID: "call_1", Success: true}); err != nil {
		t.Errorf("AppendToolResult() on restored transcript: %v", err)
	}

	bad := []Turn{{Role: RoleToolResult, Result: &ToolResult{ToolCallID: "nope"}}}
	if _, err := FromTurns(bad); !errors.Is(err, ErrUnpairedToolResult) {
		t.Errorf("FromTurns(bad) error = %v, want ErrUnpairedToolResult", err)
	}
}
