package streaming

import (
	"encoding/json"
)

// EventType identifies a decoded stream event
type EventType string

const (
	// EventTypeTurnStart indicates the assistant turn has started
	EventTypeTurnStart EventType = "turn_start"

	// EventTypeTextDelta carries visible answer text for a block
	EventTypeTextDelta EventType = "text_delta"

	// EventTypeReasoningDelta carries reasoning text for a block
	EventTypeReasoningDelta EventType = "reasoning_delta"

	// EventTypeReasoningSignature carries the opaque signature of a reasoning block
	EventTypeReasoningSignature EventType = "reasoning_signature"

	// EventTypeToolBlockStart opens a tool call block
	EventTypeToolBlockStart EventType = "tool_block_start"

	// EventTypeToolArgumentDelta carries a JSON fragment of tool arguments
	EventTypeToolArgumentDelta EventType = "tool_argument_delta"

	// EventTypeBlockStop closes a block
	EventTypeBlockStop EventType = "block_stop"

	// EventTypeTurnStop ends the assistant turn
	EventTypeTurnStop EventType = "turn_stop"

	// EventTypeError is terminal: no further events follow it
	EventTypeError EventType = "error"
)

// Event represents a decoded streaming event
type Event interface {
	Type() EventType
}

// Usage tracks token usage
type Usage struct {
	InputTokens         int64 `json:"input_tokens"`
	OutputTokens        int64 `json:"output_tokens"`
	CacheCreationTokens int64 `json:"cache_creation_tokens,omitempty"`
	CacheReadTokens     int64 `json:"cache_read_tokens,omitempty"`
}

// Add returns the sum of two usages
func (u Usage) Add(other Usage) Usage {
	return Usage{
		InputTokens:         u.InputTokens + other.InputTokens,
		OutputTokens:        u.OutputTokens + other.OutputTokens,
		CacheCreationTokens: u.CacheCreationTokens + other.CacheCreationTokens,
		CacheReadTokens:     u.CacheReadTokens + other.CacheReadTokens,
	}
}

// TurnStartEvent is emitted when the upstream message starts
type TurnStartEvent struct {
	MessageID string
	Model     string
	Usage     Usage
}

func (e *TurnStartEvent) Type() EventType {
	return EventTypeTurnStart
}

// TextDeltaEvent is emitted when answer text arrives
type TextDeltaEvent struct {
	Index int
	Text  string
}

func (e *TextDeltaEvent) Type() EventType {
	return EventTypeTextDelta
}

// ReasoningDeltaEvent is emitted when reasoning text arrives
type ReasoningDeltaEvent struct {
	Index int
	Text  string
}

func (e *ReasoningDeltaEvent) Type() EventType {
	return EventTypeReasoningDelta
}

// ReasoningSignatureEvent is emitted when the signature of a reasoning block arrives
type ReasoningSignatureEvent struct {
	Index     int
	Signature string
}

func (e *ReasoningSignatureEvent) Type() EventType {
	return EventTypeReasoningSignature
}

// ToolBlockStartEvent is emitted when a tool call block starts.
// InitialInput holds the seed arguments sent with the block header, if any.
type ToolBlockStartEvent struct {
	Index        int
	ToolID       string
	ToolName     string
	InitialInput json.RawMessage
}

func (e *ToolBlockStartEvent) Type() EventType {
	return EventTypeToolBlockStart
}

// ToolArgumentDeltaEvent is emitted when a tool argument fragment arrives
type ToolArgumentDeltaEvent struct {
	Index       int
	PartialJSON string
}

func (e *ToolArgumentDeltaEvent) Type() EventType {
	return EventTypeToolArgumentDelta
}

// BlockStopEvent is emitted when a content block ends
type BlockStopEvent struct {
	Index int
}

func (e *BlockStopEvent) Type() EventType {
	return EventTypeBlockStop
}

// TurnStopEvent is emitted when the assistant turn ends
type TurnStopEvent struct {
	Reason    StopReason
	RawReason string
	Usage     Usage
}

func (e *TurnStopEvent) Type() EventType {
	return EventTypeTurnStop
}

// ErrorEvent is emitted once when the stream fails. It is always the last event.
type ErrorEvent struct {
	Err error
}

func (e *ErrorEvent) Type() EventType {
	return EventTypeError
}

func (e *ErrorEvent) Error() string {
	if e.Err == nil {
		return "stream error"
	}
	return e.Err.Error()
}

func (e *ErrorEvent) Unwrap() error {
	return e.Err
}

// IsTerminal reports whether no further events follow ev
func IsTerminal(ev Event) bool {
	switch ev.Type() {
	case EventTypeTurnStop, EventTypeError:
		return true
	}
	return false
}
