// Package providertest serves canned SSE bodies in place of a real model API.
package providertest

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/youssefsiam38/aepilot/provider"
)

// Provider replays one scripted response per Stream call, in order
type Provider struct {
	mu        sync.Mutex
	responses []string
	errs      map[int]error
	requests  []provider.Request
}

// New creates a provider that answers with the given SSE bodies
func New(responses ...string) *Provider {
	return &Provider{responses: responses, errs: map[int]error{}}
}

// FailAt makes the n-th call (0-based) return err instead of a body
func (p *Provider) FailAt(n int, err error) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errs[n] = err
	return p
}

// Stream implements provider.Provider
func (p *Provider) Stream(ctx context.Context, req provider.Request) (io.ReadCloser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.requests)
	p.requests = append(p.requests, req)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := p.errs[n]; ok {
		return nil, err
	}
	if n >= len(p.responses) {
		return nil, fmt.Errorf("providertest: no response scripted for call %d", n)
	}
	return io.NopCloser(strings.NewReader(p.responses[n])), nil
}

// Requests returns every request received so far
func (p *Provider) Requests() []provider.Request {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]provider.Request, len(p.requests))
	copy(out, p.requests)
	return out
}

// TextResponse builds an SSE body for a plain text answer
func TextResponse(text string) string {
	return TextResponseWithReason(text, "end_turn")
}

// TextResponseWithReason builds a text answer ending with the given wire stop reason
func TextResponseWithReason(text, stopReason string) string {
	var b strings.Builder
	writeStart(&b)
	b.WriteString(`data: {"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}` + "\n\n")
	if text != "" {
		fmt.Fprintf(&b, `data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":%q}}`+"\n\n", text)
	}
	b.WriteString(`data: {"type":"content_block_stop","index":0}` + "\n\n")
	writeStop(&b, stopReason)
	return b.String()
}

// ToolCall is one scripted tool_use block
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ToolResponse builds an SSE body in which the model requests the given calls.
// Arguments are streamed in two fragments to exercise reassembly.
func ToolResponse(calls ...ToolCall) string {
	var b strings.Builder
	writeStart(&b)
	for i, call := range calls {
		fmt.Fprintf(&b, `data: {"type":"content_block_start","index":%d,"content_block":{"type":"tool_use","id":%q,"name":%q,"input":{}}}`+"\n\n", i, call.ID, call.Name)
		half := len(call.Arguments) / 2
		for _, part := range []string{call.Arguments[:half], call.Arguments[half:]} {
			if part == "" {
				continue
			}
			fmt.Fprintf(&b, `data: {"type":"content_block_delta","index":%d,"delta":{"type":"input_json_delta","partial_json":%q}}`+"\n\n", i, part)
		}
		fmt.Fprintf(&b, `data: {"type":"content_block_stop","index":%d}`+"\n\n", i)
	}
	writeStop(&b, "tool_use")
	return b.String()
}

func writeStart(b *strings.Builder) {
	b.WriteString("event: message_start\n")
	b.WriteString(`data: {"type":"message_start","message":{"id":"msg_test","model":"test-model","usage":{"input_tokens":10,"output_tokens":1}}}` + "\n\n")
}

func writeStop(b *strings.Builder, reason string) {
	fmt.Fprintf(b, `data: {"type":"message_delta","delta":{"stop_reason":%q},"usage":{"output_tokens":5}}`+"\n\n", reason)
	b.WriteString(`data: {"type":"message_stop"}` + "\n\n")
}
