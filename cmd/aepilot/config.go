package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/youssefsiam38/aepilot/compaction"
)

const defaultSystemPrompt = `You are an assistant embedded in a motion graphics application.
Use the available tools to inspect and change the open project.
Prefer small verified script steps over large untested ones.`

// Config is the on-disk configuration of the aepilot command
type Config struct {
	Model        string `yaml:"model"`
	SystemPrompt string `yaml:"system_prompt"`

	// APIKey is overridden by ANTHROPIC_API_KEY when that is set
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`

	MaxTokens           int64                    `yaml:"max_tokens"`
	Temperature         *float64                 `yaml:"temperature"`
	ReasoningBudget     int64                    `yaml:"reasoning_budget"`
	MaxTurns            int                      `yaml:"max_turns"`
	MaxToolCallsPerTurn int                      `yaml:"max_tool_calls_per_turn"`
	RequestTimeout      time.Duration            `yaml:"request_timeout"`
	ToolTimeout         time.Duration            `yaml:"tool_timeout"`
	ToolTimeouts        map[string]time.Duration `yaml:"tool_timeouts"`
	MaxPayloadChars     int                      `yaml:"max_payload_chars"`

	// RateLimit is the request rate in requests per second; zero disables it
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`

	Collaborators CollaboratorsConfig `yaml:"collaborators"`
	Storage       StorageConfig       `yaml:"storage"`
	Planning      PlanningConfig      `yaml:"planning"`

	// Compaction enables automatic transcript compaction when present
	Compaction *compaction.Config `yaml:"compaction"`

	// CountTokensAPI measures transcripts for compaction with the token
	// counting endpoint instead of the character approximation
	CountTokensAPI bool `yaml:"count_tokens_api"`

	RedisURL    string `yaml:"redis_url"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
}

// CollaboratorsConfig holds the endpoints of the services behind the built-in
// tools. A tool is registered only when its endpoint is set.
type CollaboratorsConfig struct {
	Script string `yaml:"script"`
	Docs   string `yaml:"docs"`
	Web    string `yaml:"web"`
	Graph  string `yaml:"graph"`

	Timeout time.Duration `yaml:"timeout"`

	// QueryExpansion selects how search_docs widens a question: "model",
	// "endpoint" (the docs service), "keywords" or "off"
	QueryExpansion string `yaml:"query_expansion"`

	// Delegate registers a sub-assistant tool under this name
	Delegate string `yaml:"delegate"`
}

// StorageConfig selects where transcripts are persisted
type StorageConfig struct {
	// Driver is "pgx" or "database_sql"
	Driver string `yaml:"driver"`
	URL    string `yaml:"url"`

	// RetentionMaxAge expires transcripts idle for longer; zero keeps them
	RetentionMaxAge   time.Duration `yaml:"retention_max_age"`
	RetentionInterval time.Duration `yaml:"retention_interval"`
}

// PlanningConfig tunes the -plan mode
type PlanningConfig struct {
	Threshold     float64 `yaml:"threshold"`
	MaxIterations int     `yaml:"max_iterations"`
}

func defaultConfig() Config {
	return Config{
		Model:          "claude-sonnet-4-5",
		SystemPrompt:   defaultSystemPrompt,
		RateBurst:      1,
		CountTokensAPI: true,
		Storage:        StorageConfig{Driver: "pgx"},
		LogLevel:       "info",
		Collaborators:  CollaboratorsConfig{QueryExpansion: "model"},
	}
}

// loadConfig reads path over the defaults. A missing file is not an error
// when the path was not given explicitly.
func loadConfig(path string, explicit bool) (Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	case err != nil:
		return cfg, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		cfg.APIKey = key
	}
	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.Storage.URL = url
	}

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("api key is required (set api_key or ANTHROPIC_API_KEY)")
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	switch c.Storage.Driver {
	case "pgx", "database_sql":
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Collaborators.QueryExpansion {
	case "model", "endpoint", "keywords", "off":
	default:
		return fmt.Errorf("unknown query expansion %q", c.Collaborators.QueryExpansion)
	}
	return nil
}
