package model

import (
	"context"
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/promptobjects/core/internal/poerr"
)

// AnthropicProvider adapts github.com/anthropics/anthropic-sdk-go to
// the Provider contract: each tool result is sent as a tool_result
// block in its own user message, keyed to its tool_use block by ID, and
// streaming is accumulated via the SDK's event aggregator.
type AnthropicProvider struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// NewAnthropicProvider builds an adapter for modelName using apiKey.
func NewAnthropicProvider(apiKey, modelName string, maxTokens int64) *AnthropicProvider {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &AnthropicProvider{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     anthropic.Model(modelName),
		maxTokens: maxTokens,
	}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) Chat(ctx context.Context, req Request) (Response, error) {
	params := anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: p.maxTokens,
		Messages:  toAnthropicMessages(req.Messages),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	for _, t := range req.Tools {
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: t.Parameters["properties"],
				},
			},
		})
	}

	if req.OnChunk != nil {
		return p.chatStreaming(ctx, params, req.OnChunk)
	}
	return p.chatOnce(ctx, params)
}

func (p *AnthropicProvider) chatOnce(ctx context.Context, params anthropic.MessageNewParams) (Response, error) {
	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return Response{}, poerr.Wrap(poerr.KindLLM, "anthropic message create", err)
	}
	return fromAnthropicMessage(p.Name(), msg), nil
}

func (p *AnthropicProvider) chatStreaming(ctx context.Context, params anthropic.MessageNewParams, onChunk ChunkFunc) (Response, error) {
	stream := p.client.Messages.NewStreaming(ctx, params)
	var acc anthropic.Message
	for stream.Next() {
		event := stream.Current()
		if err := acc.Accumulate(event); err != nil {
			return Response{}, poerr.Wrap(poerr.KindLLM, "anthropic stream accumulate", err)
		}
		if delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
			if text := delta.Delta.Text; text != "" && onChunk != nil {
				onChunk(text)
			}
		}
	}
	if err := stream.Err(); err != nil {
		return Response{}, poerr.Wrap(poerr.KindLLM, "anthropic stream", err)
	}
	return fromAnthropicMessage(p.Name(), &acc), nil
}

func toAnthropicMessages(in []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(in))
	for _, m := range in {
		switch m.Role {
		case RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, tc.Arguments, tc.Name))
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		case RoleTool:
			out = append(out, anthropic.NewUserMessage(anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false)))
		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return out
}

func fromAnthropicMessage(provider string, msg *anthropic.Message) Response {
	var content string
	var calls []ToolCall
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			content += b.Text
		case anthropic.ToolUseBlock:
			var args map[string]any
			_ = json.Unmarshal(b.Input, &args)
			calls = append(calls, ToolCall{ID: b.ID, Name: b.Name, Arguments: args})
		}
	}
	return Response{
		Content:   content,
		ToolCalls: calls,
		Usage: Usage{
			InputTokens:         int(msg.Usage.InputTokens),
			OutputTokens:        int(msg.Usage.OutputTokens),
			CacheCreationTokens: int(msg.Usage.CacheCreationInputTokens),
			CacheReadTokens:     int(msg.Usage.CacheReadInputTokens),
			Model:               string(msg.Model),
			Provider:            provider,
		},
		Raw: msg,
	}
}
