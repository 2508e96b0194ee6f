package aepilot

import (
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/youssefsiam38/aepilot/compaction"
	"github.com/youssefsiam38/aepilot/metrics"
	"github.com/youssefsiam38/aepilot/storage"
	"github.com/youssefsiam38/aepilot/tool"
)

// Option is a functional option for configuring an Agent
type Option func(*internalConfig) error

// WithMaxTokens sets the maximum number of tokens to generate per request
func WithMaxTokens(n int64) Option {
	return func(c *internalConfig) error {
		if n <= 0 {
			return fmt.Errorf("%w: max tokens must be positive", ErrInvalidConfig)
		}
		c.maxTokens = n
		return nil
	}
}

// WithTemperature sets the temperature for sampling (0.0 to 1.0).
// It is ignored when reasoning is enabled.
func WithTemperature(t float64) Option {
	return func(c *internalConfig) error {
		if t < 0 || t > 1 {
			return fmt.Errorf("%w: temperature must be between 0 and 1", ErrInvalidConfig)
		}
		c.temperature = &t
		return nil
	}
}

// WithReasoning enables extended reasoning with the given token budget.
// A budget of zero lets the provider pick its minimum.
func WithReasoning(budget int64) Option {
	return func(c *internalConfig) error {
		if budget < 0 {
			return fmt.Errorf("%w: reasoning budget cannot be negative", ErrInvalidConfig)
		}
		c.reasoning = true
		c.reasoningBudget = budget
		return nil
	}
}

// WithTools registers tools with the agent
func WithTools(tools ...tool.Tool) Option {
	return func(c *internalConfig) error {
		for _, t := range tools {
			schema := t.InputSchema()
			if schema.Type != "object" {
				return NewAgentError("WithTools", ErrInvalidToolSchema).
					WithContext("tool", t.Name()).
					WithContext("reason", "schema type must be 'object'")
			}
			c.tools = append(c.tools, t)
		}
		return nil
	}
}

// WithMaxTurns sets how many model requests a run may make before the model
// is asked to summarize without tools
func WithMaxTurns(n int) Option {
	return func(c *internalConfig) error {
		if n < 1 {
			return fmt.Errorf("%w: max turns must be at least 1", ErrInvalidConfig)
		}
		c.maxTurns = n
		return nil
	}
}

// WithMaxToolCallsPerTurn caps the tool calls executed for one assistant
// message. Calls beyond the cap are answered with a skipped result.
func WithMaxToolCallsPerTurn(n int) Option {
	return func(c *internalConfig) error {
		if n < 1 {
			return fmt.Errorf("%w: max tool calls per turn must be at least 1", ErrInvalidConfig)
		}
		c.maxToolCallsPerTurn = n
		return nil
	}
}

// WithToolTimeout sets the default timeout for tool executions
func WithToolTimeout(timeout time.Duration) Option {
	return func(c *internalConfig) error {
		if timeout <= 0 {
			return fmt.Errorf("%w: tool timeout must be positive", ErrInvalidConfig)
		}
		c.toolTimeout = timeout
		return nil
	}
}

// WithToolTimeoutFor overrides the timeout of a single tool
func WithToolTimeoutFor(name string, timeout time.Duration) Option {
	return func(c *internalConfig) error {
		if timeout <= 0 {
			return fmt.Errorf("%w: tool timeout must be positive", ErrInvalidConfig)
		}
		c.toolTimeouts[name] = timeout
		return nil
	}
}

// WithRequestTimeout bounds each upstream request, stream included
func WithRequestTimeout(timeout time.Duration) Option {
	return func(c *internalConfig) error {
		if timeout <= 0 {
			return fmt.Errorf("%w: request timeout must be positive", ErrInvalidConfig)
		}
		c.requestTimeout = timeout
		return nil
	}
}

// WithFallbackText sets the answer returned when a run produces no text
func WithFallbackText(text string) Option {
	return func(c *internalConfig) error {
		if text == "" {
			return fmt.Errorf("%w: fallback text cannot be empty", ErrInvalidConfig)
		}
		c.fallbackText = text
		return nil
	}
}

// WithSummaryPrompt sets the instruction sent when the turn limit is reached
func WithSummaryPrompt(prompt string) Option {
	return func(c *internalConfig) error {
		if prompt == "" {
			return fmt.Errorf("%w: summary prompt cannot be empty", ErrInvalidConfig)
		}
		c.summaryPrompt = prompt
		return nil
	}
}

// WithCache sets the tool result cache. Passing nil disables caching.
func WithCache(cache tool.Cache) Option {
	return func(c *internalConfig) error {
		c.cache = cache
		return nil
	}
}

// WithMaxPayloadChars sets the size above which tool payloads are truncated
func WithMaxPayloadChars(n int) Option {
	return func(c *internalConfig) error {
		if n <= 0 {
			return fmt.Errorf("%w: max payload chars must be positive", ErrInvalidConfig)
		}
		c.maxPayloadChars = n
		return nil
	}
}

// WithVariables sets values tools can read with tool.GetVariable
func WithVariables(vars map[string]any) Option {
	return func(c *internalConfig) error {
		c.variables = vars
		return nil
	}
}

// WithLogger sets the logger used by the agent, its tool invoker and the
// stream decoder
func WithLogger(logger Logger) Option {
	return func(c *internalConfig) error {
		if logger == nil {
			return fmt.Errorf("%w: logger cannot be nil", ErrInvalidConfig)
		}
		c.logger = logger
		return nil
	}
}

// WithHooks registers every hook method each value implements, see
// hooks.Registry.Use
func WithHooks(hs ...any) Option {
	return func(c *internalConfig) error {
		for _, h := range hs {
			c.hooks.Use(h)
		}
		return nil
	}
}

// WithStore persists the transcript after every run
func WithStore(store storage.Store) Option {
	return func(c *internalConfig) error {
		c.store = store
		return nil
	}
}

// WithRateLimit limits how often upstream requests are issued across all
// sessions of the agent
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(c *internalConfig) error {
		if burst < 1 {
			return fmt.Errorf("%w: rate limit burst must be at least 1", ErrInvalidConfig)
		}
		c.limiter = rate.NewLimiter(limit, burst)
		return nil
	}
}

// WithCompaction compacts the transcript before a run once it nears the
// context window. Zero fields take the compaction package defaults.
func WithCompaction(cfg compaction.Config) Option {
	return func(c *internalConfig) error {
		cfg.ApplyDefaults()
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		c.compaction = &cfg
		return nil
	}
}

// WithMetrics records requests, tool calls and decoder drops on the collector
func WithMetrics(collector *metrics.Collector) Option {
	return func(c *internalConfig) error {
		if collector == nil {
			return fmt.Errorf("%w: metrics collector cannot be nil", ErrInvalidConfig)
		}
		c.metrics = collector
		c.hooks.Use(collector)
		return nil
	}
}
