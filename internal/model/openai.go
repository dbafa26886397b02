package model

import (
	"context"
	"encoding/json"

	openai "github.com/sashabaranov/go-openai"

	"github.com/promptobjects/core/internal/poerr"
)

// OpenAIProvider adapts github.com/sashabaranov/go-openai to the
// Provider contract, accumulating streamed deltas into the final
// response.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIProvider builds an adapter for the given model using apiKey.
func NewOpenAIProvider(apiKey, modelName string) *OpenAIProvider {
	return &OpenAIProvider{client: openai.NewClient(apiKey), model: modelName}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Chat(ctx context.Context, req Request) (Response, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		messages = append(messages, toOpenAIMessage(m))
	}

	tools := make([]openai.Tool, 0, len(req.Tools))
	for _, t := range req.Tools {
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	creq := openai.ChatCompletionRequest{
		Model:    p.model,
		Messages: messages,
		Tools:    tools,
		Stream:   req.OnChunk != nil,
	}

	if creq.Stream {
		return p.chatStreaming(ctx, creq, req.OnChunk)
	}
	return p.chatOnce(ctx, creq)
}

func (p *OpenAIProvider) chatOnce(ctx context.Context, creq openai.ChatCompletionRequest) (Response, error) {
	resp, err := p.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		return Response{}, poerr.Wrap(poerr.KindLLM, "openai chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, poerr.New(poerr.KindLLM, "openai returned no choices")
	}
	choice := resp.Choices[0]
	return Response{
		Content:   choice.Message.Content,
		ToolCalls: fromOpenAIToolCalls(choice.Message.ToolCalls),
		Usage: Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			Model:        resp.Model,
			Provider:     p.Name(),
		},
		Raw: resp,
	}, nil
}

func (p *OpenAIProvider) chatStreaming(ctx context.Context, creq openai.ChatCompletionRequest, onChunk ChunkFunc) (Response, error) {
	stream, err := p.client.CreateChatCompletionStream(ctx, creq)
	if err != nil {
		return Response{}, poerr.Wrap(poerr.KindLLM, "openai streaming chat completion", err)
	}
	defer stream.Close()

	var content string
	toolCallsByIndex := map[int]*openai.ToolCall{}
	var usage openai.Usage
	var respModel string

	for {
		chunk, err := stream.Recv()
		if err != nil {
			if err.Error() == "EOF" {
				break
			}
			return Response{}, poerr.Wrap(poerr.KindLLM, "openai stream recv", err)
		}
		respModel = chunk.Model
		if chunk.Usage != nil {
			usage = *chunk.Usage
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta
		if delta.Content != "" {
			content += delta.Content
			if onChunk != nil {
				onChunk(delta.Content)
			}
		}
		for _, tc := range delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			existing, ok := toolCallsByIndex[idx]
			if !ok {
				existing = &openai.ToolCall{ID: tc.ID, Type: tc.Type}
				toolCallsByIndex[idx] = existing
			}
			if tc.ID != "" {
				existing.ID = tc.ID
			}
			existing.Function.Name += tc.Function.Name
			existing.Function.Arguments += tc.Function.Arguments
		}
	}

	calls := make([]openai.ToolCall, 0, len(toolCallsByIndex))
	for i := 0; i < len(toolCallsByIndex); i++ {
		if tc, ok := toolCallsByIndex[i]; ok {
			calls = append(calls, *tc)
		}
	}

	return Response{
		Content:   content,
		ToolCalls: fromOpenAIToolCalls(calls),
		Usage: Usage{
			InputTokens:  usage.PromptTokens,
			OutputTokens: usage.CompletionTokens,
			Model:        respModel,
			Provider:     p.Name(),
		},
	}, nil
}

func toOpenAIMessage(m Message) openai.ChatCompletionMessage {
	switch m.Role {
	case RoleTool:
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleTool, Content: m.Content, ToolCallID: m.ToolCallID, Name: m.Name}
	case RoleAssistant:
		out := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Content}
		for _, tc := range m.ToolCalls {
			args, _ := json.Marshal(tc.Arguments)
			out.ToolCalls = append(out.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(args),
				},
			})
		}
		return out
	default:
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m.Content}
	}
}

func fromOpenAIToolCalls(in []openai.ToolCall) []ToolCall {
	out := make([]ToolCall, 0, len(in))
	for _, tc := range in {
		var args map[string]any
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		out = append(out, ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args})
	}
	return out
}
