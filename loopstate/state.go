// Package loopstate defines the state machine of one conversation run.
//
//	awaiting_model -> decoding        (request sent, stream open)
//	decoding -> tools_requested       (message carries tool calls)
//	decoding -> done                  (no tool calls, not refused)
//	decoding -> failed                (refusal or transport error)
//	tools_requested -> awaiting_model (all tool results appended)
//	* -> cancelled                    (context cancelled)
//	* -> failed                       (error during execution)
//
// Terminal states (done, failed, cancelled) cannot transition further.
package loopstate

import (
	"database/sql/driver"
	"fmt"

	"github.com/youssefsiam38/aepilot/streaming"
)

// State is the current state of a conversation run
type State string

const (
	// AwaitingModel is the state before a request is issued
	AwaitingModel State = "awaiting_model"

	// Decoding is the state while the response stream is being consumed
	Decoding State = "decoding"

	// ToolsRequested means the last message asked for tool calls that are
	// being executed
	ToolsRequested State = "tools_requested"

	// Done means the run produced a final answer
	Done State = "done"

	// Failed means the run stopped on a refusal or an error
	Failed State = "failed"

	// Cancelled means the caller's context ended the run
	Cancelled State = "cancelled"
)

// AllStates returns all possible states
func AllStates() []State {
	return []State{AwaitingModel, Decoding, ToolsRequested, Done, Failed, Cancelled}
}

// IsValid returns true if the state is a known value
func (s State) IsValid() bool {
	switch s {
	case AwaitingModel, Decoding, ToolsRequested, Done, Failed, Cancelled:
		return true
	default:
		return false
	}
}

// IsTerminal returns true for states that end a run
func (s State) IsTerminal() bool {
	switch s {
	case Done, Failed, Cancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether moving from s to target is allowed.
// Every non-terminal state may move to failed or cancelled; done is only
// reachable from decoding.
func (s State) CanTransitionTo(target State) bool {
	if s.IsTerminal() || s == target || !target.IsValid() {
		return false
	}
	if target == Failed || target == Cancelled {
		return true
	}

	switch s {
	case AwaitingModel:
		return target == Decoding
	case Decoding:
		return target == ToolsRequested || target == Done
	case ToolsRequested:
		return target == AwaitingModel
	}
	return false
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// Value implements driver.Valuer for database serialization
func (s State) Value() (driver.Value, error) {
	return string(s), nil
}

// Scan implements sql.Scanner for database deserialization
func (s *State) Scan(src any) error {
	var raw string
	switch v := src.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("loopstate: cannot scan type %T into State", src)
	}

	state := State(raw)
	if !state.IsValid() {
		return fmt.Errorf("loopstate: invalid state %q", raw)
	}
	*s = state
	return nil
}

// Transition is a single state change
type Transition struct {
	From State
	To   State
}

// Validate returns an error if the transition is not allowed
func (t Transition) Validate() error {
	if !t.From.IsValid() {
		return fmt.Errorf("loopstate: invalid source state %q", t.From)
	}
	if !t.To.IsValid() {
		return fmt.Errorf("loopstate: invalid target state %q", t.To)
	}
	if !t.From.CanTransitionTo(t.To) {
		return fmt.Errorf("loopstate: invalid transition from %q to %q", t.From, t.To)
	}
	return nil
}

// ValidTransitions returns every allowed transition
func ValidTransitions() []Transition {
	var out []Transition
	for _, from := range AllStates() {
		for _, to := range AllStates() {
			if from.CanTransitionTo(to) {
				out = append(out, Transition{From: from, To: to})
			}
		}
	}
	return out
}

// AfterMessage returns the state that follows decoding a complete message
func AfterMessage(msg *streaming.Message) State {
	switch {
	case msg.StopReason.IsRefusal():
		return Failed
	case msg.HasToolCalls():
		return ToolsRequested
	default:
		return Done
	}
}

// Machine tracks the state of one run and records its history
type Machine struct {
	current State
	history []Transition
}

// NewMachine starts a machine in AwaitingModel
func NewMachine() *Machine {
	return &Machine{current: AwaitingModel}
}

// Current returns the current state
func (m *Machine) Current() State {
	return m.current
}

// To moves the machine to target, rejecting invalid transitions
func (m *Machine) To(target State) error {
	t := Transition{From: m.current, To: target}
	if err := t.Validate(); err != nil {
		return err
	}
	m.history = append(m.history, t)
	m.current = target
	return nil
}

// History returns the transitions taken so far
func (m *Machine) History() []Transition {
	out := make([]Transition, len(m.history))
	copy(out, m.history)
	return out
}
