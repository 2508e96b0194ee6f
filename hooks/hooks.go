package hooks

import (
	"context"
	"sync"

	"github.com/youssefsiam38/aepilot/streaming"
	"github.com/youssefsiam38/aepilot/tool"
	"github.com/youssefsiam38/aepilot/transcript"
)

// BeforeRequestHook is called before each upstream request with the turns
// about to be sent
type BeforeRequestHook func(ctx context.Context, sessionID string, turns []transcript.Turn) error

// AfterMessageHook is called once a turn's assistant message is complete
type AfterMessageHook func(ctx context.Context, sessionID string, msg *streaming.Message) error

// ToolCallHook is called after each tool call with its normalized result
type ToolCallHook func(ctx context.Context, sessionID string, req tool.Request, result tool.Result) error

// RunCompleteHook is called when a conversation run ends, successfully or not
type RunCompleteHook func(ctx context.Context, summary RunSummary) error

// RunSummary describes a finished run
type RunSummary struct {
	SessionID     string
	State         string
	Requests      int
	ToolCalls     int
	ForcedSummary bool
	Usage         streaming.Usage
	Err           error
}

// Registry holds all registered hooks
type Registry struct {
	mu            sync.RWMutex
	beforeRequest []BeforeRequestHook
	afterMessage  []AfterMessageHook
	toolCall      []ToolCallHook
	runComplete   []RunCompleteHook
}

// NewRegistry creates a new hook registry
func NewRegistry() *Registry {
	return &Registry{}
}

// OnBeforeRequest registers a hook to be called before each request
func (r *Registry) OnBeforeRequest(hook BeforeRequestHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.beforeRequest = append(r.beforeRequest, hook)
}

// OnAfterMessage registers a hook to be called after each assistant message
func (r *Registry) OnAfterMessage(hook AfterMessageHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.afterMessage = append(r.afterMessage, hook)
}

// OnToolCall registers a hook to be called when a tool is executed
func (r *Registry) OnToolCall(hook ToolCallHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toolCall = append(r.toolCall, hook)
}

// OnRunComplete registers a hook to be called when a run ends
func (r *Registry) OnRunComplete(hook RunCompleteHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runComplete = append(r.runComplete, hook)
}

// Use registers every hook method the given value implements
func (r *Registry) Use(h any) {
	if v, ok := h.(interface {
		BeforeRequest(context.Context, string, []transcript.Turn) error
	}); ok {
		r.OnBeforeRequest(v.BeforeRequest)
	}
	if v, ok := h.(interface {
		AfterMessage(context.Context, string, *streaming.Message) error
	}); ok {
		r.OnAfterMessage(v.AfterMessage)
	}
	if v, ok := h.(interface {
		ToolCall(context.Context, string, tool.Request, tool.Result) error
	}); ok {
		r.OnToolCall(v.ToolCall)
	}
	if v, ok := h.(interface {
		RunComplete(context.Context, RunSummary) error
	}); ok {
		r.OnRunComplete(v.RunComplete)
	}
}

// TriggerBeforeRequest calls all registered before-request hooks
func (r *Registry) TriggerBeforeRequest(ctx context.Context, sessionID string, turns []transcript.Turn) error {
	r.mu.RLock()
	hooks := make([]BeforeRequestHook, len(r.beforeRequest))
	copy(hooks, r.beforeRequest)
	r.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, sessionID, turns); err != nil {
			return err
		}
	}
	return nil
}

// TriggerAfterMessage calls all registered after-message hooks
func (r *Registry) TriggerAfterMessage(ctx context.Context, sessionID string, msg *streaming.Message) error {
	r.mu.RLock()
	hooks := make([]AfterMessageHook, len(r.afterMessage))
	copy(hooks, r.afterMessage)
	r.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, sessionID, msg); err != nil {
			return err
		}
	}
	return nil
}

// TriggerToolCall calls all registered tool-call hooks
func (r *Registry) TriggerToolCall(ctx context.Context, sessionID string, req tool.Request, result tool.Result) error {
	r.mu.RLock()
	hooks := make([]ToolCallHook, len(r.toolCall))
	copy(hooks, r.toolCall)
	r.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, sessionID, req, result); err != nil {
			return err
		}
	}
	return nil
}

// TriggerRunComplete calls all registered run-complete hooks
func (r *Registry) TriggerRunComplete(ctx context.Context, summary RunSummary) error {
	r.mu.RLock()
	hooks := make([]RunCompleteHook, len(r.runComplete))
	copy(hooks, r.runComplete)
	r.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, summary); err != nil {
			return err
		}
	}
	return nil
}
