package hooks

import (
	"context"

	"github.com/youssefsiam38/aepilot/streaming"
	"github.com/youssefsiam38/aepilot/tool"
	"github.com/youssefsiam38/aepilot/transcript"
)

// Logger is the structured logger the logging hooks write to.
// *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

const previewLength = 100

// LoggingHooks provides built-in logging hooks for observability
type LoggingHooks struct {
	logger  Logger
	verbose bool
}

// NewLoggingHooks creates logging hooks with the provided logger
func NewLoggingHooks(logger Logger) *LoggingHooks {
	return &LoggingHooks{logger: logger}
}

// NewVerboseLoggingHooks creates logging hooks that also log tool input and
// full tool output at debug level
func NewVerboseLoggingHooks(logger Logger) *LoggingHooks {
	return &LoggingHooks{logger: logger, verbose: true}
}

// BeforeRequest logs before sending a request
func (h *LoggingHooks) BeforeRequest(ctx context.Context, sessionID string, turns []transcript.Turn) error {
	h.logger.Info("sending request", "session_id", sessionID, "turns", len(turns))
	if h.verbose {
		for i, turn := range turns {
			h.logger.Debug("request turn", "session_id", sessionID, "index", i, "role", turn.Role)
		}
	}
	return nil
}

// AfterMessage logs the completed assistant message
func (h *LoggingHooks) AfterMessage(ctx context.Context, sessionID string, msg *streaming.Message) error {
	h.logger.Info("received message",
		"session_id", sessionID,
		"stop_reason", msg.StopReason,
		"tool_calls", len(msg.ToolCalls),
		"input_tokens", msg.Usage.InputTokens,
		"output_tokens", msg.Usage.OutputTokens,
	)
	return nil
}

// ToolCall logs tool execution
func (h *LoggingHooks) ToolCall(ctx context.Context, sessionID string, req tool.Request, result tool.Result) error {
	if !result.Success {
		h.logger.Warn("tool failed", "session_id", sessionID, "tool", req.Name, "call_id", req.ID, "error", result.Error)
	} else {
		h.logger.Info("tool succeeded",
			"session_id", sessionID,
			"tool", req.Name,
			"call_id", req.ID,
			"duration", result.Duration,
			"cached", result.Cached,
			"output", preview(result.Payload),
		)
	}
	if h.verbose {
		h.logger.Debug("tool call detail", "tool", req.Name, "arguments", req.Arguments, "output", result.Payload)
	}
	return nil
}

// RunComplete logs the end of a run
func (h *LoggingHooks) RunComplete(ctx context.Context, summary RunSummary) error {
	args := []any{
		"session_id", summary.SessionID,
		"state", summary.State,
		"requests", summary.Requests,
		"tool_calls", summary.ToolCalls,
		"forced_summary", summary.ForcedSummary,
	}
	if summary.Err != nil {
		h.logger.Error("run failed", append(args, "error", summary.Err)...)
		return nil
	}
	h.logger.Info("run complete", args...)
	return nil
}

func preview(s string) string {
	r := []rune(s)
	if len(r) <= previewLength {
		return s
	}
	return string(r[:previewLength]) + "..."
}

// MetricsHooks reports run metrics through a callback
type MetricsHooks struct {
	OnMetric func(name string, value float64, tags map[string]string)
}

// NewMetricsHooks creates metrics collection hooks
func NewMetricsHooks(onMetric func(string, float64, map[string]string)) *MetricsHooks {
	return &MetricsHooks{OnMetric: onMetric}
}

// AfterMessage records token usage
func (h *MetricsHooks) AfterMessage(ctx context.Context, sessionID string, msg *streaming.Message) error {
	tags := map[string]string{"stop_reason": msg.StopReason.String()}
	h.OnMetric("aepilot.tokens.input", float64(msg.Usage.InputTokens), tags)
	h.OnMetric("aepilot.tokens.output", float64(msg.Usage.OutputTokens), tags)
	return nil
}

// ToolCall records tool execution metrics
func (h *MetricsHooks) ToolCall(ctx context.Context, sessionID string, req tool.Request, result tool.Result) error {
	tags := map[string]string{"tool": req.Name}

	if result.Success {
		h.OnMetric("aepilot.tool.success", 1, tags)
	} else {
		h.OnMetric("aepilot.tool.error", 1, tags)
	}
	h.OnMetric("aepilot.tool.duration_ms", float64(result.Duration.Milliseconds()), tags)
	return nil
}

// RunComplete records the run outcome
func (h *MetricsHooks) RunComplete(ctx context.Context, summary RunSummary) error {
	h.OnMetric("aepilot.run.requests", float64(summary.Requests), map[string]string{"state": summary.State})
	return nil
}
