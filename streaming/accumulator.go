package streaming

import (
	"encoding/json"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// BlockKind identifies what a content block carries
type BlockKind string

const (
	BlockKindText      BlockKind = "text"
	BlockKindReasoning BlockKind = "reasoning"
	BlockKindToolCall  BlockKind = "tool_call"
)

// Accumulator accumulates streaming events into a complete message.
// It is owned by a single turn and is not safe for concurrent use.
type Accumulator struct {
	logger Logger

	messageID string
	model     string
	usage     Usage
	stop      *TurnStopEvent
	failed    error

	// Internal state for building content blocks
	blocks map[int]*ContentBlock
}

// ContentBlock represents a content block being accumulated
type ContentBlock struct {
	Kind    BlockKind
	Index   int
	Stopped bool

	// Text and reasoning content
	Text      strings.Builder
	Signature string

	// Tool call content
	ToolID            string
	ToolName          string
	RawArguments      strings.Builder
	SeedArguments     map[string]any
	Arguments         map[string]any
	ArgumentsComplete bool
}

// NewAccumulator creates a new stream accumulator. A nil logger discards log output.
func NewAccumulator(logger Logger) *Accumulator {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Accumulator{
		logger: logger,
		blocks: make(map[int]*ContentBlock),
	}
}

// Process applies one event. It returns the stream error when ev is an
// ErrorEvent; every other malformed input is logged and ignored.
func (a *Accumulator) Process(ev Event) error {
	if a.failed != nil {
		return a.failed
	}
	if a.stop != nil {
		a.logger.Debug("ignoring event after turn stop", "event_type", ev.Type())
		return nil
	}

	switch e := ev.(type) {
	case *TurnStartEvent:
		a.messageID = e.MessageID
		a.model = e.Model
		a.usage = e.Usage

	case *TextDeltaEvent:
		if block := a.openBlock(e.Index, BlockKindText); block != nil {
			block.Text.WriteString(e.Text)
		}

	case *ReasoningDeltaEvent:
		if block := a.openBlock(e.Index, BlockKindReasoning); block != nil {
			block.Text.WriteString(e.Text)
		}

	case *ReasoningSignatureEvent:
		if block := a.openBlock(e.Index, BlockKindReasoning); block != nil {
			block.Signature += e.Signature
		}

	case *ToolBlockStartEvent:
		a.startToolBlock(e)

	case *ToolArgumentDeltaEvent:
		a.appendArguments(e)

	case *BlockStopEvent:
		if block, exists := a.blocks[e.Index]; exists {
			block.Stopped = true
		}

	case *TurnStopEvent:
		a.stop = e
		if e.Usage.InputTokens > 0 {
			a.usage.InputTokens = e.Usage.InputTokens
		}
		a.usage.OutputTokens = e.Usage.OutputTokens

	case *ErrorEvent:
		a.failed = e.Err
		if a.failed == nil {
			a.failed = ErrUnexpectedEOF
		}
		return a.failed

	default:
		// Ignore unknown events
	}
	return nil
}

// openBlock returns the open block at index, creating a text or reasoning
// block on first sight. It returns nil when the delta must be ignored.
func (a *Accumulator) openBlock(index int, kind BlockKind) *ContentBlock {
	block, exists := a.blocks[index]
	if !exists {
		block = &ContentBlock{Kind: kind, Index: index}
		a.blocks[index] = block
		return block
	}
	if block.Stopped {
		a.logger.Debug("ignoring delta for stopped block", "index", index)
		return nil
	}
	if block.Kind != kind {
		a.logger.Warn("ignoring delta with mismatched block kind",
			"index", index, "block_kind", block.Kind, "delta_kind", kind)
		return nil
	}
	return block
}

func (a *Accumulator) startToolBlock(e *ToolBlockStartEvent) {
	if _, exists := a.blocks[e.Index]; exists {
		a.logger.Warn("ignoring duplicate block start", "index", e.Index, "tool", e.ToolName)
		return
	}

	block := &ContentBlock{
		Kind:     BlockKindToolCall,
		Index:    e.Index,
		ToolID:   e.ToolID,
		ToolName: e.ToolName,
	}
	if seed, ok := TryParse(string(e.InitialInput)); ok && len(seed) > 0 {
		block.SeedArguments = seed
	}
	a.blocks[e.Index] = block
}

func (a *Accumulator) appendArguments(e *ToolArgumentDeltaEvent) {
	block, exists := a.blocks[e.Index]
	if !exists || block.Kind != BlockKindToolCall {
		a.logger.Warn("ignoring argument fragment without tool block", "index", e.Index)
		return
	}
	if block.Stopped {
		a.logger.Debug("ignoring delta for stopped block", "index", e.Index)
		return
	}

	block.RawArguments.WriteString(e.PartialJSON)

	parsed, ok := TryParse(block.RawArguments.String())
	if !ok {
		return
	}
	merged := make(map[string]any, len(block.SeedArguments)+len(parsed))
	maps.Copy(merged, block.SeedArguments)
	maps.Copy(merged, parsed)
	block.Arguments = merged
	block.ArgumentsComplete = true
}

// Done reports whether the turn has stopped or failed.
func (a *Accumulator) Done() bool {
	return a.stop != nil || a.failed != nil
}

// Message returns the finalized message. It fails until a TurnStopEvent has
// been processed, and after an ErrorEvent.
func (a *Accumulator) Message() (*Message, error) {
	if a.failed != nil {
		return nil, a.failed
	}
	if a.stop == nil {
		return nil, ErrTurnIncomplete
	}

	msg := &Message{
		ID:            a.messageID,
		Model:         a.model,
		StopReason:    a.stop.Reason,
		RawStopReason: a.stop.RawReason,
		Usage:         a.usage,
		CreatedAt:     time.Now(),
	}

	var text, reasoning strings.Builder
	seenIDs := make(map[string]bool)
	for _, index := range slices.Sorted(maps.Keys(a.blocks)) {
		block := a.blocks[index]

		switch block.Kind {
		case BlockKindText:
			text.WriteString(block.Text.String())

		case BlockKindReasoning:
			reasoning.WriteString(block.Text.String())
			msg.ReasoningSegments = append(msg.ReasoningSegments, ReasoningSegment{
				Text:      block.Text.String(),
				Signature: block.Signature,
			})

		case BlockKindToolCall:
			call := block.toolCall()
			if seenIDs[call.ID] {
				a.logger.Warn("duplicate tool call id", "id", call.ID, "index", index)
				call.ID = newCallID()
			}
			seenIDs[call.ID] = true
			msg.ToolCalls = append(msg.ToolCalls, call)
		}
	}
	msg.Text = text.String()
	msg.Reasoning = reasoning.String()

	return msg, nil
}

func (b *ContentBlock) toolCall() ToolCall {
	call := ToolCall{
		ID:   b.ToolID,
		Name: b.ToolName,
	}
	if call.ID == "" {
		call.ID = newCallID()
	}

	switch {
	case b.ArgumentsComplete:
		call.Arguments = b.Arguments
		call.ArgumentsComplete = true
	case b.RawArguments.Len() == 0:
		// No fragments arrived: the seed is the whole input
		call.Arguments = b.SeedArguments
		call.ArgumentsComplete = true
	default:
		call.Arguments = b.SeedArguments
	}
	if call.Arguments == nil {
		call.Arguments = map[string]any{}
	}
	return call
}

func newCallID() string {
	return "call_" + uuid.NewString()
}

// Accumulate processes events from src until the turn stops or fails and
// returns the finalized message.
func (a *Accumulator) Accumulate(src EventSource) (*Message, error) {
	for !a.Done() && src.Next() {
		if err := a.Process(src.Event()); err != nil {
			return nil, err
		}
	}
	return a.Message()
}

// Message represents the accumulated assistant message
type Message struct {
	ID                string             `json:"id,omitempty"`
	Model             string             `json:"model,omitempty"`
	Text              string             `json:"text"`
	Reasoning         string             `json:"reasoning,omitempty"`
	ReasoningSegments []ReasoningSegment `json:"reasoning_segments,omitempty"`
	ToolCalls         []ToolCall         `json:"tool_calls,omitempty"`
	StopReason        StopReason         `json:"stop_reason"`
	RawStopReason     string             `json:"raw_stop_reason,omitempty"`
	Usage             Usage              `json:"usage"`
	CreatedAt         time.Time          `json:"created_at"`
}

// ReasoningSegment is one reasoning block with its signature
type ReasoningSegment struct {
	Text      string `json:"text"`
	Signature string `json:"signature,omitempty"`
}

// ToolCall is a tool invocation requested by the model
type ToolCall struct {
	ID                string         `json:"id"`
	Name              string         `json:"name"`
	Arguments         map[string]any `json:"arguments"`
	ArgumentsComplete bool           `json:"arguments_complete"`
}

// HasToolCalls returns true if the model requested any tools
func (m *Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

// ArgumentsJSON returns the arguments encoded as a JSON object
func (c ToolCall) ArgumentsJSON() json.RawMessage {
	if len(c.Arguments) == 0 {
		return json.RawMessage("{}")
	}
	data, err := json.Marshal(c.Arguments)
	if err != nil {
		return json.RawMessage("{}")
	}
	return data
}
