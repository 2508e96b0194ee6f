// Package anthropic implements provider.Provider on the Anthropic Messages API.
// It posts a streaming request and hands the raw SSE body back to the caller,
// which decodes it with package streaming.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/youssefsiam38/aepilot/provider"
	"github.com/youssefsiam38/aepilot/tool"
	"github.com/youssefsiam38/aepilot/transcript"
)

const (
	messagesPath = "v1/messages"

	// DefaultMaxTokens is used when a request leaves MaxTokens unset
	DefaultMaxTokens int64 = 4096

	// minReasoningBudget is the smallest thinking budget the API accepts
	minReasoningBudget int64 = 1024
)

// Poster is the part of *sdk.Client the provider needs
type Poster interface {
	Post(ctx context.Context, path string, params any, res any, opts ...option.RequestOption) error
}

// Provider streams Messages API responses
type Provider struct {
	client Poster
}

// New wraps an existing SDK client
func New(client Poster) (*Provider, error) {
	if client == nil {
		return nil, errors.New("anthropic: client cannot be nil")
	}
	return &Provider{client: client}, nil
}

// NewFromAPIKey builds a provider on the default SDK HTTP client
func NewFromAPIKey(apiKey string, opts ...option.RequestOption) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	client := sdk.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	return New(&client)
}

// Stream implements provider.Provider
func (p *Provider) Stream(ctx context.Context, req provider.Request) (io.ReadCloser, error) {
	params, err := BuildParams(req)
	if err != nil {
		return nil, &provider.Error{Kind: provider.ErrorKindInvalidRequest, Err: err}
	}

	var raw *http.Response
	if err := p.client.Post(ctx, messagesPath, params, &raw, option.WithJSONSet("stream", true)); err != nil {
		return nil, classify(err)
	}
	if raw == nil || raw.Body == nil {
		return nil, &provider.Error{Kind: provider.ErrorKindUnknown, Err: errors.New("empty response")}
	}
	return raw.Body, nil
}

// BuildParams converts a provider request into Messages API parameters
func BuildParams(req provider.Request) (sdk.MessageNewParams, error) {
	if req.Model == "" {
		return sdk.MessageNewParams{}, errors.New("model is required")
	}
	msgs, err := EncodeTurns(req.Turns)
	if err != nil {
		return sdk.MessageNewParams{}, err
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: maxTokens,
		Messages:  msgs,
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		params.Tools = EncodeTools(req.Tools)
	}

	if req.Reasoning {
		budget := req.ReasoningBudget
		if budget < minReasoningBudget {
			budget = minReasoningBudget
		}
		if budget >= maxTokens {
			return sdk.MessageNewParams{}, fmt.Errorf("reasoning budget %d must be less than max_tokens %d", budget, maxTokens)
		}
		params.Thinking = sdk.ThinkingConfigParamOfEnabled(budget)
	} else if req.Temperature != nil {
		// the API rejects a custom temperature while thinking is enabled
		params.Temperature = sdk.Float(*req.Temperature)
	}

	return params, nil
}

// EncodeTurns converts transcript turns into Messages API messages. Assistant
// turns carry signed reasoning, text and tool_use blocks in that order; the
// tool results answering one assistant turn travel in a single user message.
func EncodeTurns(turns []transcript.Turn) ([]sdk.MessageParam, error) {
	msgs := make([]sdk.MessageParam, 0, len(turns))
	var userBlocks []sdk.ContentBlockParamUnion

	flush := func() {
		if len(userBlocks) > 0 {
			msgs = append(msgs, sdk.NewUserMessage(userBlocks...))
			userBlocks = nil
		}
	}

	for i, turn := range turns {
		switch turn.Role {
		case transcript.RoleUser:
			if turn.Text != "" {
				userBlocks = append(userBlocks, sdk.NewTextBlock(turn.Text))
			}

		case transcript.RoleToolResult:
			if turn.Result == nil {
				return nil, fmt.Errorf("turn %d: tool result turn without result", i)
			}
			userBlocks = append(userBlocks, sdk.NewToolResultBlock(turn.Result.ToolCallID, turn.Result.Content(), !turn.Result.Success))

		case transcript.RoleAssistant:
			flush()
			blocks := encodeAssistant(turn)
			if len(blocks) > 0 {
				msgs = append(msgs, sdk.NewAssistantMessage(blocks...))
			}

		default:
			return nil, fmt.Errorf("turn %d: unsupported role %q", i, turn.Role)
		}
	}
	flush()

	if len(msgs) == 0 {
		return nil, errors.New("at least one message is required")
	}
	return msgs, nil
}

func encodeAssistant(turn transcript.Turn) []sdk.ContentBlockParamUnion {
	blocks := make([]sdk.ContentBlockParamUnion, 0, len(turn.Reasoning)+len(turn.ToolCalls)+1)

	// Unsigned reasoning cannot be replayed to the API.
	for _, seg := range turn.Reasoning {
		if seg.Signature != "" {
			blocks = append(blocks, sdk.NewThinkingBlock(seg.Signature, seg.Text))
		}
	}
	if turn.Text != "" {
		blocks = append(blocks, sdk.NewTextBlock(turn.Text))
	}
	for _, call := range turn.ToolCalls {
		input := any(call.Arguments)
		if call.Arguments == nil {
			input = map[string]any{}
		}
		blocks = append(blocks, sdk.NewToolUseBlock(call.ID, input, call.Name))
	}
	return blocks
}

// EncodeTools converts tool definitions into tool union parameters, keeping
// the order of defs.
func EncodeTools(defs []tool.Definition) []sdk.ToolUnionParam {
	out := make([]sdk.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		properties := make(map[string]any, len(def.InputSchema.Properties))
		for name, prop := range def.InputSchema.Properties {
			properties[name] = encodeProperty(prop)
		}

		schema := sdk.ToolInputSchemaParam{
			Type:       constant.Object("object"),
			Properties: properties,
		}
		if len(def.InputSchema.Required) > 0 {
			schema.Required = def.InputSchema.Required
		}

		p := sdk.ToolParam{
			Name:        def.Name,
			InputSchema: schema,
		}
		if def.Description != "" {
			p.Description = sdk.String(def.Description)
		}
		out = append(out, sdk.ToolUnionParam{OfTool: &p})
	}
	return out
}

func encodeProperty(def tool.PropertyDef) map[string]any {
	prop := map[string]any{"type": def.Type}

	if def.Description != "" {
		prop["description"] = def.Description
	}
	if len(def.Enum) > 0 {
		prop["enum"] = def.Enum
	}
	if def.Minimum != nil {
		prop["minimum"] = *def.Minimum
	}
	if def.Maximum != nil {
		prop["maximum"] = *def.Maximum
	}
	if def.MinLength != nil {
		prop["minLength"] = *def.MinLength
	}
	if def.MaxLength != nil {
		prop["maxLength"] = *def.MaxLength
	}
	if def.Items != nil {
		prop["items"] = encodeProperty(*def.Items)
	}
	if len(def.Properties) > 0 {
		nested := make(map[string]any, len(def.Properties))
		for key, nestedDef := range def.Properties {
			nested[key] = encodeProperty(nestedDef)
		}
		prop["properties"] = nested
	}
	return prop
}

// classify maps SDK errors onto provider.Error
func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return &provider.Error{
			Kind:       provider.KindForStatus(apiErr.StatusCode),
			StatusCode: apiErr.StatusCode,
			Err:        err,
		}
	}
	return &provider.Error{Kind: provider.ErrorKindUnavailable, Err: err}
}
