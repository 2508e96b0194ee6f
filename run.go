package aepilot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/youssefsiam38/aepilot/hooks"
	"github.com/youssefsiam38/aepilot/loopstate"
	"github.com/youssefsiam38/aepilot/provider"
	"github.com/youssefsiam38/aepilot/storage"
	"github.com/youssefsiam38/aepilot/streaming"
	"github.com/youssefsiam38/aepilot/tool"
	"github.com/youssefsiam38/aepilot/transcript"
)

// Result describes a finished run. Run returns it for failed and cancelled
// runs too, alongside the error.
type Result struct {
	SessionID string
	State     loopstate.State

	// Text is the final answer, or the fallback text when the model gave none
	Text       string
	Reasoning  string
	StopReason streaming.StopReason

	// Requests counts upstream requests, forced summary included
	Requests int

	// Turns holds the transcript turns appended by this run
	Turns       []transcript.Turn
	ToolResults []tool.Result

	ForcedSummary bool
	UsedFallback  bool
	Usage         streaming.Usage
}

// Run appends prompt to the transcript and drives the conversation until the
// model answers without tools, refuses, fails or the context is cancelled.
// Requested tools are executed in order and their results fed back. When the
// turn limit is reached while tools are still requested, one last request
// without tools asks the model to summarize.
func (s *Session) Run(ctx context.Context, prompt string) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.agent.config
	ctx, span := s.agent.tracer.Start(ctx, "aepilot.run", trace.WithAttributes(
		attribute.String("session.id", s.id),
		attribute.String("model", cfg.model),
	))
	defer span.End()

	s.compactIfNeeded(ctx)

	res := &Result{SessionID: s.id}
	machine := loopstate.NewMachine()
	start := s.transcript.Len()

	cfg.logger.Debug("run started", "session_id", s.id, "transcript_turns", start)
	err := s.loop(ctx, prompt, machine, res)
	if err != nil && !machine.Current().IsTerminal() {
		target := loopstate.Failed
		if errors.Is(err, ErrCancelled) {
			target = loopstate.Cancelled
		}
		_ = machine.To(target)
	}

	res.State = machine.Current()
	res.Turns = s.transcript.Turns()[start:]
	s.state = res.State

	span.SetAttributes(
		attribute.String("run.state", res.State.String()),
		attribute.Int("run.requests", res.Requests),
		attribute.Int("run.tool_calls", len(res.ToolResults)),
		attribute.Bool("run.forced_summary", res.ForcedSummary),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	s.persist(ctx)

	summary := hooks.RunSummary{
		SessionID:     s.id,
		State:         res.State.String(),
		Requests:      res.Requests,
		ToolCalls:     len(res.ToolResults),
		ForcedSummary: res.ForcedSummary,
		Usage:         res.Usage,
		Err:           err,
	}
	if hookErr := cfg.hooks.TriggerRunComplete(context.WithoutCancel(ctx), summary); hookErr != nil {
		cfg.logger.Warn("run complete hook failed", "session_id", s.id, "error", hookErr)
	}

	if err != nil {
		return res, NewAgentErrorWithSession("Run", s.id, err)
	}
	return res, nil
}

func (s *Session) loop(ctx context.Context, prompt string, m *loopstate.Machine, res *Result) error {
	cfg := s.agent.config

	if err := s.transcript.AppendUser(prompt); err != nil {
		return fmt.Errorf("%w: %v", ErrProtocol, err)
	}

	for turn := 1; ; turn++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrCancelled, err)
		}
		if turn > cfg.maxTurns {
			return s.forceSummary(ctx, m, res)
		}

		msg, err := s.request(ctx, m, res, s.transcript.Turns(), true)
		if err != nil {
			return err
		}
		res.StopReason = msg.StopReason

		next := loopstate.AfterMessage(msg)
		if next == loopstate.Failed {
			cfg.logger.Warn("request refused", "session_id", s.id, "turn", turn)
			if err := m.To(loopstate.Failed); err != nil {
				return err
			}
			return ErrRefused
		}

		if err := s.transcript.AppendAssistant(msg); err != nil {
			return fmt.Errorf("%w: %v", ErrProtocol, err)
		}
		if msg.Reasoning != "" {
			res.Reasoning = msg.Reasoning
		}
		if err := m.To(next); err != nil {
			return err
		}

		if next == loopstate.Done {
			s.finish(res, msg.Text)
			return nil
		}

		if err := s.runTools(ctx, msg.ToolCalls, res); err != nil {
			return err
		}
		if err := m.To(loopstate.AwaitingModel); err != nil {
			return err
		}
	}
}

// runTools executes the calls of one assistant message and appends one
// result turn per call
func (s *Session) runTools(ctx context.Context, calls []streaming.ToolCall, res *Result) error {
	cfg := s.agent.config

	reqs := make([]tool.Request, len(calls))
	for i, call := range calls {
		reqs[i] = tool.Request{ID: call.ID, Name: call.Name, Arguments: call.Arguments}
	}

	results := s.agent.invoker.ExecuteAll(ctx, s.id, reqs, cfg.maxToolCallsPerTurn)
	for _, result := range results {
		if err := s.transcript.AppendToolResult(result); err != nil {
			return fmt.Errorf("%w: %v", ErrProtocol, err)
		}
		res.ToolResults = append(res.ToolResults, result)
	}

	// Hooks run once every call is answered so an aborted run leaves no
	// open calls behind
	for i, result := range results {
		if err := cfg.hooks.TriggerToolCall(ctx, s.id, reqs[i], result); err != nil {
			return NewAgentErrorWithSession("ToolCallHook", s.id, err).WithContext("tool", reqs[i].Name)
		}
	}
	return nil
}

// forceSummary issues one request without tools, asking the model to answer
// with what it has. The instruction is sent but not kept in the transcript.
func (s *Session) forceSummary(ctx context.Context, m *loopstate.Machine, res *Result) error {
	cfg := s.agent.config
	res.ForcedSummary = true
	cfg.logger.Info("turn limit reached, requesting summary", "session_id", s.id, "max_turns", cfg.maxTurns)

	turns := append(s.transcript.Turns(), transcript.Turn{
		Role:      transcript.RoleUser,
		Text:      cfg.summaryPrompt,
		CreatedAt: time.Now(),
	})
	msg, err := s.request(ctx, m, res, turns, false)
	if err != nil {
		return err
	}
	res.StopReason = msg.StopReason
	if msg.StopReason.IsRefusal() {
		if err := m.To(loopstate.Failed); err != nil {
			return err
		}
		return ErrRefused
	}

	// No catalog was offered, so any tool call here cannot be answered
	final := *msg
	final.ToolCalls = nil
	if err := s.transcript.AppendAssistant(&final); err != nil {
		return fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	if msg.Reasoning != "" {
		res.Reasoning = msg.Reasoning
	}
	if err := m.To(loopstate.Done); err != nil {
		return err
	}
	s.finish(res, msg.Text)
	return nil
}

func (s *Session) finish(res *Result, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		text = s.agent.config.fallbackText
		res.UsedFallback = true
	}
	res.Text = text
}

// request sends turns upstream and decodes the streamed reply into a message
func (s *Session) request(ctx context.Context, m *loopstate.Machine, res *Result, turns []transcript.Turn, withTools bool) (*streaming.Message, error) {
	cfg := s.agent.config

	ctx, span := s.agent.tracer.Start(ctx, "aepilot.request", trace.WithAttributes(
		attribute.String("session.id", s.id),
		attribute.Int("request.number", res.Requests+1),
		attribute.Bool("request.tools", withTools),
	))
	defer span.End()

	if err := cfg.hooks.TriggerBeforeRequest(ctx, s.id, turns); err != nil {
		return nil, NewAgentErrorWithSession("BeforeRequestHook", s.id, err)
	}
	if cfg.limiter != nil {
		if err := cfg.limiter.Wait(ctx); err != nil {
			return nil, s.upstreamError(ctx, span, err)
		}
	}

	req := provider.Request{
		Model:           cfg.model,
		System:          cfg.systemPrompt,
		Turns:           turns,
		Temperature:     cfg.temperature,
		MaxTokens:       cfg.maxTokens,
		Reasoning:       cfg.reasoning,
		ReasoningBudget: cfg.reasoningBudget,
	}
	if withTools {
		req.Tools = s.agent.registry.Definitions()
	}

	reqCtx, cancel := context.WithTimeout(ctx, cfg.requestTimeout)
	defer cancel()

	res.Requests++
	body, err := cfg.provider.Stream(reqCtx, req)
	if err != nil {
		return nil, s.upstreamError(ctx, span, err)
	}
	if err := m.To(loopstate.Decoding); err != nil {
		body.Close()
		return nil, err
	}

	stream := streaming.NewStream(reqCtx, body, cfg.logger)
	defer stream.Close()

	msg, err := streaming.NewAccumulator(cfg.logger).Accumulate(stream)
	if dropped := stream.Dropped(); dropped > 0 && cfg.metrics != nil {
		cfg.metrics.RecordDecoderDrops(dropped)
	}
	if err != nil {
		return nil, s.upstreamError(ctx, span, err)
	}

	res.Usage = res.Usage.Add(msg.Usage)
	s.usage = s.usage.Add(msg.Usage)
	span.SetAttributes(
		attribute.String("response.stop_reason", msg.StopReason.String()),
		attribute.Int("response.tool_calls", len(msg.ToolCalls)),
		attribute.Int64("response.output_tokens", msg.Usage.OutputTokens),
	)

	if err := cfg.hooks.TriggerAfterMessage(ctx, s.id, msg); err != nil {
		return nil, NewAgentErrorWithSession("AfterMessageHook", s.id, err)
	}
	return msg, nil
}

// upstreamError reports a failed request as cancelled when the caller gave up
// and as a transport failure otherwise
func (s *Session) upstreamError(ctx context.Context, span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %v", ErrCancelled, ctxErr)
	}

	s.agent.config.logger.Error("upstream request failed",
		"session_id", s.id,
		"kind", provider.KindOf(err),
		"error", err,
	)
	if errors.Is(err, ErrTransport) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransport, err)
}

// persist saves the transcript when a store is configured. Failures are
// logged and do not affect the run.
func (s *Session) persist(ctx context.Context) {
	store := s.agent.config.store
	if store == nil {
		return
	}

	rec := &storage.Record{
		SessionID: s.id,
		Turns:     s.transcript.Turns(),
		LastState: s.state,
		Usage:     s.usage,
	}
	if err := store.SaveTranscript(context.WithoutCancel(ctx), rec); err != nil {
		s.agent.config.logger.Error("failed to save transcript", "session_id", s.id, "error", err)
	}
}
