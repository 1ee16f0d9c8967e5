// Package anthropicmodel adapts the Anthropic Claude Messages API to
// agentdriver.Client, grounded on the teacher's
// features/model/anthropic.Client (same interface-captured-subset,
// Options, New/NewFromAPIKey shape), pared down to this domain's single
// prompt-in/tool-calls-out turn instead of the teacher's full multimodal
// conversation encoding.
package anthropicmodel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"reev-core/internal/agentdriver"
)

// MessagesClient captures the subset of the Anthropic SDK used by the
// adapter, so tests can substitute a fake.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Client implements agentdriver.Client on top of Anthropic Claude Messages.
type Client struct {
	msg       MessagesClient
	model     string
	maxTokens int
}

// New builds an Anthropic-backed model client.
func New(msg MessagesClient, model string, maxTokens int) (*Client, error) {
	if msg == nil {
		return nil, errors.New("anthropic client is required")
	}
	if model == "" {
		return nil, errors.New("model identifier is required")
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Client{msg: msg, model: model, maxTokens: maxTokens}, nil
}

// NewFromAPIKey constructs a client using the default Anthropic HTTP client,
// reading credentials the SDK's option package resolves (ANTHROPIC_API_KEY).
func NewFromAPIKey(apiKey, model string, maxTokens int) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&ac.Messages, model, maxTokens)
}

// Complete issues a non-streaming Messages.New request and translates the
// response into an agentdriver.Response.
func (c *Client) Complete(ctx context.Context, req agentdriver.Request) (agentdriver.Response, error) {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: int64(effectiveMaxTokens(req.MaxTokens, c.maxTokens)),
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(req.Prompt)),
		},
	}
	if req.SystemPrompt != "" {
		params.System = []sdk.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if tools, err := encodeTools(req.Tools); err != nil {
		return agentdriver.Response{}, err
	} else if len(tools) > 0 {
		params.Tools = tools
	}

	msg, err := c.msg.New(ctx, params)
	if err != nil {
		return agentdriver.Response{}, fmt.Errorf("anthropic messages.new: %w", err)
	}
	return translateResponse(msg), nil
}

func effectiveMaxTokens(requested, fallback int) int {
	if requested > 0 {
		return requested
	}
	return fallback
}

func encodeTools(defs []agentdriver.ToolDef) ([]sdk.ToolUnionParam, error) {
	if len(defs) == 0 {
		return nil, nil
	}
	out := make([]sdk.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		schema := sdk.ToolInputSchemaParam{
			ExtraFields: map[string]any{
				"type":     "object",
				"required": def.Required,
			},
		}
		u := sdk.ToolUnionParamOfTool(schema, def.Name)
		if u.OfTool != nil {
			u.OfTool.Description = sdk.String(def.Description)
		}
		out = append(out, u)
	}
	return out, nil
}

func translateResponse(msg *sdk.Message) agentdriver.Response {
	resp := agentdriver.Response{}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			resp.Text += block.Text
		case "tool_use":
			var args map[string]any
			if raw, err := json.Marshal(block.Input); err == nil {
				_ = json.Unmarshal(raw, &args)
			}
			resp.ToolCalls = append(resp.ToolCalls, agentdriver.ToolCall{Name: block.Name, Arguments: args})
		}
	}
	resp.TokenCount = int(msg.Usage.InputTokens + msg.Usage.OutputTokens)
	return resp
}
