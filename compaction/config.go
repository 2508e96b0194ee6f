package compaction

import (
	"fmt"
)

// Default configuration values.
const (
	DefaultTrigger          = 0.85   // 85% context usage
	DefaultMaxContextTokens = 200000 // Claude Sonnet context window
	DefaultPreserveLastN    = 10     // Always keep last 10 turns
	DefaultProtectedTokens  = 40000  // Never touch last 40K tokens
	DefaultPruneMinimum     = 20000  // Only prune when tool outputs exceed this
)

// Config holds compaction configuration.
type Config struct {
	// Trigger is the context usage threshold (0.0-1.0) that triggers compaction.
	// Default: 0.85
	Trigger float64 `yaml:"trigger"`

	// MaxContextTokens is the context window of the target model.
	// Default: 200000
	MaxContextTokens int `yaml:"max_context_tokens"`

	// PreserveLastN is the minimum number of recent turns never summarized.
	// Default: 10
	PreserveLastN int `yaml:"preserve_last_n"`

	// ProtectedTokens is the token count at the end of the transcript that
	// is never pruned or summarized.
	// Default: 40000
	ProtectedTokens int `yaml:"protected_tokens"`

	// PruneMinimum is the amount of prunable tool output below which the
	// prune phase is skipped.
	// Default: 20000
	PruneMinimum int `yaml:"prune_minimum"`

	// PreserveToolOutputs skips the prune phase entirely.
	PreserveToolOutputs bool `yaml:"preserve_tool_outputs"`

	// Counter measures transcripts against the trigger threshold.
	// Default: ApproximateCounter
	Counter TokenCounter `yaml:"-"`
}

// DefaultConfig returns a Config with the default values.
func DefaultConfig() Config {
	return Config{
		Trigger:          DefaultTrigger,
		MaxContextTokens: DefaultMaxContextTokens,
		PreserveLastN:    DefaultPreserveLastN,
		ProtectedTokens:  DefaultProtectedTokens,
		PruneMinimum:     DefaultPruneMinimum,
	}
}

// ApplyDefaults fills in zero values with defaults.
func (c *Config) ApplyDefaults() {
	if c.Trigger == 0 {
		c.Trigger = DefaultTrigger
	}
	if c.MaxContextTokens == 0 {
		c.MaxContextTokens = DefaultMaxContextTokens
	}
	if c.PreserveLastN == 0 {
		c.PreserveLastN = DefaultPreserveLastN
	}
	if c.ProtectedTokens == 0 {
		c.ProtectedTokens = DefaultProtectedTokens
	}
	if c.PruneMinimum == 0 {
		c.PruneMinimum = DefaultPruneMinimum
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Trigger <= 0 || c.Trigger > 1.0 {
		return fmt.Errorf("%w: trigger must be between 0 and 1, got %f", ErrInvalidConfig, c.Trigger)
	}
	if c.MaxContextTokens <= 0 {
		return fmt.Errorf("%w: max_context_tokens must be positive, got %d", ErrInvalidConfig, c.MaxContextTokens)
	}
	if c.PreserveLastN < 0 {
		return fmt.Errorf("%w: preserve_last_n must be non-negative, got %d", ErrInvalidConfig, c.PreserveLastN)
	}
	if c.ProtectedTokens < 0 {
		return fmt.Errorf("%w: protected_tokens must be non-negative, got %d", ErrInvalidConfig, c.ProtectedTokens)
	}
	if c.PruneMinimum < 0 {
		return fmt.Errorf("%w: prune_minimum must be non-negative, got %d", ErrInvalidConfig, c.PruneMinimum)
	}
	if c.ProtectedTokens >= c.MaxContextTokens {
		return fmt.Errorf("%w: protected_tokens (%d) must be less than max_context_tokens (%d)",
			ErrInvalidConfig, c.ProtectedTokens, c.MaxContextTokens)
	}
	return nil
}

// TriggerThreshold returns the absolute token count that triggers compaction.
func (c *Config) TriggerThreshold() int {
	return int(float64(c.MaxContextTokens) * c.Trigger)
}
