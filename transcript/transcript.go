// Package transcript holds the ordered turns of one conversation and
// enforces that every tool result answers a tool call of the assistant turn
// before it.
package transcript

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/youssefsiam38/aepilot/streaming"
	"github.com/youssefsiam38/aepilot/tool"
)

// Role identifies who produced a turn
type Role string

const (
	RoleUser       Role = "user"
	RoleAssistant  Role = "assistant"
	RoleToolResult Role = "tool_result"
)

var (
	// ErrUnpairedToolResult is returned when a tool result does not answer an
	// open tool call of the latest assistant turn.
	ErrUnpairedToolResult = errors.New("tool result does not match an open tool call")

	// ErrPendingToolCalls is returned when a user turn is appended while the
	// latest assistant turn still has unanswered tool calls.
	ErrPendingToolCalls = errors.New("assistant turn has unanswered tool calls")
)

// ToolResult is the payload of a tool_result turn
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	ToolName   string `json:"tool_name"`
	Success    bool   `json:"success"`
	Payload    string `json:"payload,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Content returns the text the model reads for this result
func (r ToolResult) Content() string {
	if r.Success {
		return r.Payload
	}
	return r.Error
}

// Turn is one entry of the transcript
type Turn struct {
	Role      Role                         `json:"role"`
	Text      string                       `json:"text,omitempty"`
	Reasoning []streaming.ReasoningSegment `json:"reasoning,omitempty"`
	ToolCalls []streaming.ToolCall         `json:"tool_calls,omitempty"`
	Result    *ToolResult                  `json:"result,omitempty"`
	CreatedAt time.Time                    `json:"created_at"`
}

// Transcript is an append-only list of turns. It is safe for concurrent
// readers, though a conversation appends from one goroutine at a time.
type Transcript struct {
	mu    sync.RWMutex
	turns []Turn
}

// New creates an empty transcript
func New() *Transcript {
	return &Transcript{}
}

// FromTurns rebuilds a transcript from persisted turns after validating them
func FromTurns(turns []Turn) (*Transcript, error) {
	if err := Validate(turns); err != nil {
		return nil, err
	}
	t := New()
	t.turns = append([]Turn(nil), turns...)
	return t, nil
}

// AppendUser appends a user turn
func (t *Transcript) AppendUser(text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if open := t.openCallsLocked(); len(open) > 0 {
		return fmt.Errorf("%w: %d open", ErrPendingToolCalls, len(open))
	}
	t.turns = append(t.turns, Turn{Role: RoleUser, Text: text, CreatedAt: time.Now()})
	return nil
}

// AppendAssistant appends the finalized assistant message of a turn
func (t *Transcript) AppendAssistant(msg *streaming.Message) error {
	if msg == nil {
		return fmt.Errorf("message cannot be nil")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if open := t.openCallsLocked(); len(open) > 0 {
		return fmt.Errorf("%w: %d open", ErrPendingToolCalls, len(open))
	}
	t.turns = append(t.turns, Turn{
		Role:      RoleAssistant,
		Text:      msg.Text,
		Reasoning: msg.ReasoningSegments,
		ToolCalls: msg.ToolCalls,
		CreatedAt: time.Now(),
	})
	return nil
}

// AppendToolResult appends the result of one tool call. The call must be an
// unanswered call of the latest assistant turn.
func (t *Transcript) AppendToolResult(result tool.Result) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	open := t.openCallsLocked()
	call, ok := open[result.ID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnpairedToolResult, result.ID)
	}

	t.turns = append(t.turns, Turn{
		Role: RoleToolResult,
		Result: &ToolResult{
			ToolCallID: result.ID,
			ToolName:   call.Name,
			Success:    result.Success,
			Payload:    result.Payload,
			Error:      result.Error,
		},
		CreatedAt: time.Now(),
	})
	return nil
}

// openCallsLocked returns the tool calls of the latest assistant turn that
// have no result yet.
func (t *Transcript) openCallsLocked() map[string]streaming.ToolCall {
	last := -1
	for i := len(t.turns) - 1; i >= 0; i-- {
		if t.turns[i].Role == RoleAssistant {
			last = i
			break
		}
		if t.turns[i].Role == RoleUser {
			return nil
		}
	}
	if last < 0 {
		return nil
	}

	open := make(map[string]streaming.ToolCall, len(t.turns[last].ToolCalls))
	for _, call := range t.turns[last].ToolCalls {
		open[call.ID] = call
	}
	for _, turn := range t.turns[last+1:] {
		if turn.Result != nil {
			delete(open, turn.Result.ToolCallID)
		}
	}
	return open
}

// PendingToolCalls returns the unanswered tool calls of the latest assistant turn
func (t *Transcript) PendingToolCalls() []streaming.ToolCall {
	t.mu.RLock()
	defer t.mu.RUnlock()

	open := t.openCallsLocked()
	if len(open) == 0 {
		return nil
	}
	var pending []streaming.ToolCall
	for i := len(t.turns) - 1; i >= 0; i-- {
		if t.turns[i].Role != RoleAssistant {
			continue
		}
		for _, call := range t.turns[i].ToolCalls {
			if _, ok := open[call.ID]; ok {
				pending = append(pending, call)
			}
		}
		break
	}
	return pending
}

// Turns returns a copy of all turns in order
func (t *Transcript) Turns() []Turn {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Turn, len(t.turns))
	copy(out, t.turns)
	return out
}

// Len returns the number of turns
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.turns)
}

// Last returns the latest turn
func (t *Transcript) Last() (Turn, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.turns) == 0 {
		return Turn{}, false
	}
	return t.turns[len(t.turns)-1], true
}

// Reset drops all turns
func (t *Transcript) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.turns = nil
}

// Replace swaps all turns for turns after validating them
func (t *Transcript) Replace(turns []Turn) error {
	if err := Validate(turns); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.turns = append([]Turn(nil), turns...)
	return nil
}

// Validate checks the pairing rule over the whole transcript
func Validate(turns []Turn) error {
	open := map[string]bool{}
	for i, turn := range turns {
		switch turn.Role {
		case RoleUser:
			if len(open) > 0 {
				return fmt.Errorf("turn %d: %w", i, ErrPendingToolCalls)
			}
		case RoleAssistant:
			if len(open) > 0 {
				return fmt.Errorf("turn %d: %w", i, ErrPendingToolCalls)
			}
			for _, call := range turn.ToolCalls {
				open[call.ID] = true
			}
		case RoleToolResult:
			if turn.Result == nil || !open[turn.Result.ToolCallID] {
				return fmt.Errorf("turn %d: %w", i, ErrUnpairedToolResult)
			}
			delete(open, turn.Result.ToolCallID)
		default:
			return fmt.Errorf("turn %d: unknown role %q", i, turn.Role)
		}
	}
	return nil
}

// MarshalJSON encodes the turns as a JSON array
func (t *Transcript) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Turns())
}

// UnmarshalJSON replaces the turns with a decoded, validated JSON array
func (t *Transcript) UnmarshalJSON(data []byte) error {
	var turns []Turn
	if err := json.Unmarshal(data, &turns); err != nil {
		return err
	}
	if err := Validate(turns); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.turns = turns
	return nil
}
