package aepilot

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/youssefsiam38/aepilot/hooks"
	"github.com/youssefsiam38/aepilot/loopstate"
	"github.com/youssefsiam38/aepilot/storage"
	"github.com/youssefsiam38/aepilot/tool"
	"github.com/youssefsiam38/aepilot/transcript"
)

const tracerName = "github.com/youssefsiam38/aepilot"

// Agent holds the configuration, tool registry and invoker shared by all of
// its sessions. It is safe for concurrent use; a Session is not.
type Agent struct {
	config   *internalConfig
	registry *tool.Registry
	invoker  *tool.Invoker
	tracer   trace.Tracer
}

// New creates a new Agent with the given configuration and options
func New(cfg Config, opts ...Option) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	internal := newInternalConfig(cfg)
	for _, opt := range opts {
		if err := opt(internal); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	registry := tool.NewRegistry()
	if err := registry.RegisterAll(internal.tools); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	invokerOpts := []tool.InvokerOption{
		tool.WithCache(internal.cache),
		tool.WithLogger(internal.logger),
	}
	if internal.toolTimeout > 0 {
		invokerOpts = append(invokerOpts, tool.WithTimeout(internal.toolTimeout))
	}
	for name, timeout := range internal.toolTimeouts {
		invokerOpts = append(invokerOpts, tool.WithToolTimeout(name, timeout))
	}
	if internal.maxPayloadChars > 0 {
		invokerOpts = append(invokerOpts, tool.WithMaxPayloadChars(internal.maxPayloadChars))
	}
	if internal.variables != nil {
		invokerOpts = append(invokerOpts, tool.WithVariables(internal.variables))
	}

	return &Agent{
		config:   internal,
		registry: registry,
		invoker:  tool.NewInvoker(registry, invokerOpts...),
		tracer:   otel.Tracer(tracerName),
	}, nil
}

// Model returns the model being used by this agent
func (a *Agent) Model() string {
	return a.config.model
}

// SystemPrompt returns the system prompt
func (a *Agent) SystemPrompt() string {
	return a.config.systemPrompt
}

// Registry returns the agent's tool registry. Tools registered after New are
// offered from the next request on.
func (a *Agent) Registry() *tool.Registry {
	return a.registry
}

// Hooks returns the hook registry
func (a *Agent) Hooks() *hooks.Registry {
	return a.config.hooks
}

// NewSession creates a session with an empty transcript. An empty id is
// replaced with a random one.
func (a *Agent) NewSession(id string) *Session {
	if id == "" {
		id = uuid.NewString()
	}
	return &Session{
		agent:      a,
		id:         id,
		transcript: transcript.New(),
		state:      loopstate.AwaitingModel,
	}
}

// LoadSession restores a session from the configured store
func (a *Agent) LoadSession(ctx context.Context, id string) (*Session, error) {
	if a.config.store == nil {
		return nil, NewAgentErrorWithSession("LoadSession", id, ErrNoStore)
	}

	rec, err := a.config.store.LoadTranscript(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, NewAgentErrorWithSession("LoadSession", id, ErrSessionNotFound)
		}
		return nil, NewAgentErrorWithSession("LoadSession", id, err)
	}

	tr, err := transcript.FromTurns(rec.Turns)
	if err != nil {
		return nil, NewAgentErrorWithSession("LoadSession", id, err)
	}

	state := rec.LastState
	if !state.IsValid() {
		state = loopstate.AwaitingModel
	}
	return &Session{
		agent:      a,
		id:         id,
		transcript: tr,
		state:      state,
		usage:      rec.Usage,
	}, nil
}

// RunTask runs prompt in a fresh session and returns the final answer.
// It lets an agent serve as the runner of a delegation tool.
func (a *Agent) RunTask(ctx context.Context, prompt string) (string, error) {
	s := a.NewSession("")
	defer func() {
		_ = a.invoker.ResetSession(context.WithoutCancel(ctx), s.ID())
	}()

	result, err := s.Run(ctx, prompt)
	if err != nil {
		return "", err
	}
	return result.Text, nil
}
