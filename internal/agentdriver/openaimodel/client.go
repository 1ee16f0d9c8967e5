// Package openaimodel adapts the OpenAI Chat Completions API to
// agentdriver.Client, grounded on the teacher's features/model/openai.Client
// shape (interface-captured SDK subset, Options, New/NewFromAPIKey),
// retargeted at github.com/openai/openai-go instead of the teacher's
// sashabaranov/go-openai dependency per this repo's DOMAIN STACK choice.
package openaimodel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"reev-core/internal/agentdriver"
)

// ChatClient captures the subset of the openai-go client used by the
// adapter, so tests can substitute a fake.
type ChatClient interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Client implements agentdriver.Client via OpenAI Chat Completions.
type Client struct {
	chat  ChatClient
	model string
}

// New builds an OpenAI-backed model client.
func New(chat ChatClient, model string) (*Client, error) {
	if chat == nil {
		return nil, errors.New("openai chat client is required")
	}
	if model == "" {
		return nil, errors.New("model identifier is required")
	}
	return &Client{chat: chat, model: model}, nil
}

// NewFromAPIKey constructs a client using the default openai-go HTTP client,
// reading credentials the option package resolves (OPENAI_API_KEY).
func NewFromAPIKey(apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	oc := openai.NewClient(option.WithAPIKey(apiKey))
	return New(&oc.Chat.Completions, model)
}

// Complete issues a Chat Completions request and translates the response
// into an agentdriver.Response.
func (c *Client) Complete(ctx context.Context, req agentdriver.Request) (agentdriver.Response, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: messages,
		Tools:    encodeTools(req.Tools),
	}

	resp, err := c.chat.New(ctx, params)
	if err != nil {
		return agentdriver.Response{}, fmt.Errorf("openai chat completions: %w", err)
	}
	return translateResponse(resp), nil
}

func encodeTools(defs []agentdriver.ToolDef) []openai.ChatCompletionToolParam {
	if len(defs) == 0 {
		return nil
	}
	out := make([]openai.ChatCompletionToolParam, 0, len(defs))
	for _, def := range defs {
		out = append(out, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        def.Name,
				Description: openai.String(def.Description),
				Parameters: openai.FunctionParameters{
					"type":     "object",
					"required": def.Required,
				},
			},
		})
	}
	return out
}

func translateResponse(resp *openai.ChatCompletion) agentdriver.Response {
	out := agentdriver.Response{}
	if len(resp.Choices) == 0 {
		return out
	}
	msg := resp.Choices[0].Message
	out.Text = msg.Content
	for _, tc := range msg.ToolCalls {
		var args map[string]any
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		out.ToolCalls = append(out.ToolCalls, agentdriver.ToolCall{Name: tc.Function.Name, Arguments: args})
	}
	out.TokenCount = int(resp.Usage.TotalTokens)
	return out
}
