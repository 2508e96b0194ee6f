package compaction

import (
	"context"

	"github.com/youssefsiam38/aepilot/transcript"
)

const (
	turnOverhead = 4  // role and framing
	toolOverhead = 10 // tool_use and tool_result block structure
)

// ApproximateTokens estimates the token count of content without a request.
// Claude tokenizes roughly 3.5 characters per token for English text.
func ApproximateTokens(content string) int {
	if content == "" {
		return 0
	}
	return max(len(content)*10/35, 1)
}

// TurnTokens estimates the tokens one turn occupies in a request
func TurnTokens(turn transcript.Turn) int {
	total := turnOverhead + ApproximateTokens(turn.Text)
	for _, seg := range turn.Reasoning {
		total += ApproximateTokens(seg.Text)
	}
	for _, call := range turn.ToolCalls {
		total += toolOverhead + ApproximateTokens(call.Name) + ApproximateTokens(string(call.ArgumentsJSON()))
	}
	if turn.Result != nil {
		total += toolOverhead + ApproximateTokens(turn.Result.Content())
	}
	return total
}

// SumTokens estimates the tokens of all turns
func SumTokens(turns []transcript.Turn) int {
	total := 0
	for _, turn := range turns {
		total += TurnTokens(turn)
	}
	return total
}

// TokenCounter counts the tokens turns occupy in a request
type TokenCounter interface {
	CountTokens(ctx context.Context, turns []transcript.Turn) (int, error)
}

// ApproximateCounter counts tokens from character counts without a request
type ApproximateCounter struct{}

// CountTokens implements TokenCounter
func (ApproximateCounter) CountTokens(_ context.Context, turns []transcript.Turn) (int, error) {
	return SumTokens(turns), nil
}
