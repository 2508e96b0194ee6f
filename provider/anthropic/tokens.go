package anthropic

import (
	"context"
	"errors"
	"sync/atomic"

	sdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/youssefsiam38/aepilot/compaction"
	"github.com/youssefsiam38/aepilot/transcript"
)

const countTokensPath = "v1/messages/count_tokens"

// TokenCounter counts transcript tokens with the Messages API token counting
// endpoint. Once a request fails it counts by character approximation only.
type TokenCounter struct {
	client   Poster
	model    string
	fallback atomic.Bool
}

// NewTokenCounter creates a counter for model on client
func NewTokenCounter(client Poster, model string) (*TokenCounter, error) {
	if client == nil {
		return nil, errors.New("anthropic: client cannot be nil")
	}
	if model == "" {
		return nil, errors.New("anthropic: model is required")
	}
	return &TokenCounter{client: client, model: model}, nil
}

// TokenCounter returns a counter that shares the provider's client
func (p *Provider) TokenCounter(model string) (*TokenCounter, error) {
	return NewTokenCounter(p.client, model)
}

// UsedAPI reports whether counts still come from the API
func (c *TokenCounter) UsedAPI() bool {
	return !c.fallback.Load()
}

// CountTokens implements compaction.TokenCounter. It does not fail: an API
// error switches the counter to the approximation.
func (c *TokenCounter) CountTokens(ctx context.Context, turns []transcript.Turn) (int, error) {
	if len(turns) == 0 {
		return 0, nil
	}
	if !c.fallback.Load() {
		n, err := c.count(ctx, turns)
		if err == nil {
			return n, nil
		}
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		c.fallback.Store(true)
	}
	return compaction.SumTokens(turns), nil
}

func (c *TokenCounter) count(ctx context.Context, turns []transcript.Turn) (int, error) {
	msgs, err := EncodeTurns(turns)
	if err != nil {
		return 0, err
	}

	var res sdk.MessageTokensCount
	params := sdk.MessageCountTokensParams{
		Model:    sdk.Model(c.model),
		Messages: msgs,
	}
	if err := c.client.Post(ctx, countTokensPath, params, &res); err != nil {
		return 0, classify(err)
	}
	return int(res.InputTokens), nil
}
