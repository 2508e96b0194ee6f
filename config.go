package aepilot

import (
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/youssefsiam38/aepilot/compaction"
	"github.com/youssefsiam38/aepilot/hooks"
	"github.com/youssefsiam38/aepilot/metrics"
	"github.com/youssefsiam38/aepilot/provider"
	"github.com/youssefsiam38/aepilot/storage"
	"github.com/youssefsiam38/aepilot/tool"
)

const (
	// DefaultMaxTurns is the number of model requests a run may make before
	// a summary is forced
	DefaultMaxTurns = 10

	// DefaultMaxToolCallsPerTurn caps how many tool calls of one assistant
	// message are executed
	DefaultMaxToolCallsPerTurn = 8

	// DefaultMaxTokens is the output token limit of each request
	DefaultMaxTokens = 4096

	// DefaultRequestTimeout bounds a single upstream request including its stream
	DefaultRequestTimeout = 5 * time.Minute

	// DefaultFallbackText is returned when a run ends without any assistant text
	DefaultFallbackText = "I wasn't able to produce an answer for that request."

	// DefaultSummaryPrompt is sent when the turn limit is reached while the
	// model still asks for tools
	DefaultSummaryPrompt = "You have reached the maximum number of tool calls for this request. " +
		"Do not call any more tools. Summarize what you found so far and answer the original request as well as you can."
)

// Logger is the structured logger used by the agent.
// *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(msg string, args ...any) {}
func (noopLogger) Info(msg string, args ...any)  {}
func (noopLogger) Warn(msg string, args ...any)  {}
func (noopLogger) Error(msg string, args ...any) {}

// Config holds the required configuration for an agent.
//
// Example:
//
//	p, _ := anthropic.NewFromAPIKey(os.Getenv("ANTHROPIC_API_KEY"))
//	agent, _ := aepilot.New(aepilot.Config{
//	    Provider:     p,
//	    Model:        "claude-sonnet-4-5-20250929",
//	    SystemPrompt: "You are a helpful assistant",
//	})
type Config struct {
	// Provider streams model responses (required)
	Provider provider.Provider

	// Model is the model ID to use (required)
	Model string

	// SystemPrompt is the system prompt for the agent (optional)
	SystemPrompt string
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Provider == nil {
		return fmt.Errorf("%w: Provider is required", ErrInvalidConfig)
	}

	if c.Model == "" {
		return fmt.Errorf("%w: Model is required", ErrInvalidConfig)
	}

	return nil
}

// internalConfig holds the full agent configuration including optional parameters
type internalConfig struct {
	// Required from Config
	provider     provider.Provider
	model        string
	systemPrompt string

	// Request parameters
	maxTokens       int64
	temperature     *float64
	reasoning       bool
	reasoningBudget int64
	requestTimeout  time.Duration

	// Loop limits
	maxTurns            int
	maxToolCallsPerTurn int
	fallbackText        string
	summaryPrompt       string

	// compaction enables automatic transcript compaction before each run
	compaction *compaction.Config

	// Tool execution
	tools           []tool.Tool
	toolTimeout     time.Duration
	toolTimeouts    map[string]time.Duration
	maxPayloadChars int
	cache           tool.Cache
	variables       map[string]any

	// Ambient
	logger  Logger
	hooks   *hooks.Registry
	store   storage.Store
	limiter *rate.Limiter
	metrics *metrics.Collector
}

// newInternalConfig creates a new internal config from the public Config
func newInternalConfig(cfg Config) *internalConfig {
	return &internalConfig{
		provider:     cfg.Provider,
		model:        cfg.Model,
		systemPrompt: cfg.SystemPrompt,

		maxTokens:      DefaultMaxTokens,
		requestTimeout: DefaultRequestTimeout,

		maxTurns:            DefaultMaxTurns,
		maxToolCallsPerTurn: DefaultMaxToolCallsPerTurn,
		fallbackText:        DefaultFallbackText,
		summaryPrompt:       DefaultSummaryPrompt,

		toolTimeouts: map[string]time.Duration{},
		cache:        tool.NewMemoryCache(),

		logger: noopLogger{},
		hooks:  hooks.NewRegistry(),
	}
}
