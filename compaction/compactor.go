package compaction

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/youssefsiam38/aepilot/transcript"
)

// Strategy names the phase that brought the transcript under the trigger
type Strategy string

const (
	StrategyPrune     Strategy = "prune"
	StrategySummarize Strategy = "summarize"
)

// Completer answers a single prompt without tools
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Logger is the logging interface used by the compactor.
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

// Result describes one compaction
type Result struct {
	// Turns is the compacted transcript
	Turns []transcript.Turn

	Strategy        Strategy
	Summary         string
	OriginalTokens  int
	CompactedTokens int
	TokensPruned    int
	TurnsSummarized int
	Duration        time.Duration
}

// Compactor shrinks transcripts that approach the context window
type Compactor struct {
	completer Completer
	config    Config
	logger    Logger
}

// New creates a compactor. Zero config fields take their defaults.
func New(completer Completer, cfg Config) (*Compactor, error) {
	if completer == nil {
		return nil, fmt.Errorf("%w: completer cannot be nil", ErrInvalidConfig)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Compactor{completer: completer, config: cfg, logger: noopLogger{}}, nil
}

// SetLogger replaces the compactor logger
func (c *Compactor) SetLogger(logger Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// Config returns the effective configuration
func (c *Compactor) Config() Config {
	return c.config
}

// ShouldCompact reports whether turns reach the trigger threshold
func (c *Compactor) ShouldCompact(ctx context.Context, turns []transcript.Turn) bool {
	return c.CountTokens(ctx, turns) >= c.config.TriggerThreshold()
}

// CountTokens measures turns with the configured counter. A failing counter
// is logged and replaced by the approximation.
func (c *Compactor) CountTokens(ctx context.Context, turns []transcript.Turn) int {
	if c.config.Counter == nil {
		return SumTokens(turns)
	}
	n, err := c.config.Counter.CountTokens(ctx, turns)
	if err != nil {
		c.logger.Warn("token count failed, using approximation", "error", err)
		return SumTokens(turns)
	}
	return n
}

// Compact prunes old tool output and, if the transcript is still over the
// trigger, summarizes the older turns. turns is not modified.
func (c *Compactor) Compact(ctx context.Context, turns []transcript.Turn) (*Result, error) {
	start := time.Now()
	split := splitIndex(turns, c.config)
	if split == 0 {
		return nil, ErrNothingToCompact
	}

	res := &Result{OriginalTokens: c.CountTokens(ctx, turns), Strategy: StrategyPrune}
	compacted := turns
	if !c.config.PreserveToolOutputs {
		compacted, res.TokensPruned = c.prune(turns, split)
	}

	current := res.OriginalTokens
	if res.TokensPruned > 0 {
		current = c.CountTokens(ctx, compacted)
	}
	if current >= c.config.TriggerThreshold() {
		summary, err := c.summarize(ctx, compacted[:split])
		if err != nil {
			return nil, err
		}
		res.Strategy = StrategySummarize
		res.Summary = summary
		res.TurnsSummarized = split

		kept := make([]transcript.Turn, 0, len(compacted)-split+1)
		kept = append(kept, transcript.Turn{
			Role:      transcript.RoleUser,
			Text:      SummaryPrefix + summary,
			CreatedAt: time.Now(),
		})
		compacted = append(kept, compacted[split:]...)
	} else if res.TokensPruned == 0 {
		return nil, ErrNothingToCompact
	}

	if err := transcript.Validate(compacted); err != nil {
		return nil, NewCompactionError("Compact", err)
	}

	res.Turns = compacted
	res.CompactedTokens = c.CountTokens(ctx, compacted)
	res.Duration = time.Since(start)
	c.logger.Info("transcript compacted",
		"strategy", res.Strategy,
		"original_tokens", res.OriginalTokens,
		"compacted_tokens", res.CompactedTokens,
		"turns_summarized", res.TurnsSummarized,
	)
	return res, nil
}

// prune replaces tool output before split with a placeholder when the
// prunable output exceeds the configured minimum
func (c *Compactor) prune(turns []transcript.Turn, split int) ([]transcript.Turn, int) {
	prunable := 0
	for _, turn := range turns[:split] {
		if turn.Result != nil && turn.Result.Content() != prunedMarker {
			prunable += ApproximateTokens(turn.Result.Content())
		}
	}
	if prunable < c.config.PruneMinimum {
		return turns, 0
	}

	out := make([]transcript.Turn, len(turns))
	copy(out, turns)

	removed := 0
	for i := range out[:split] {
		r := out[i].Result
		if r == nil || r.Content() == prunedMarker {
			continue
		}
		removed += ApproximateTokens(r.Content()) - ApproximateTokens(prunedMarker)
		pruned := *r
		pruned.Payload, pruned.Error = prunedMarker, prunedMarker
		out[i].Result = &pruned
	}
	c.logger.Debug("pruned tool outputs", "tokens", removed)
	return out, removed
}

func (c *Compactor) summarize(ctx context.Context, turns []transcript.Turn) (string, error) {
	summary, err := c.completer.Complete(ctx, buildSummaryPrompt(turns))
	if err != nil {
		return "", NewCompactionError("Summarize", fmt.Errorf("%w: %w", ErrSummarizationFailed, err)).
			WithContext("turns", len(turns))
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return "", NewCompactionError("Summarize", fmt.Errorf("%w: empty summary", ErrSummarizationFailed))
	}
	return summary, nil
}
