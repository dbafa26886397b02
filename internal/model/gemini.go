package model

import (
	"context"

	"google.golang.org/genai"

	"github.com/promptobjects/core/internal/poerr"
)

// GeminiProvider adapts google.golang.org/genai to the Provider
// contract: tool results are paired with function calls the same way
// the Anthropic adapter pairs tool_use blocks.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

// NewGeminiProvider builds an adapter for modelName using apiKey.
func NewGeminiProvider(ctx context.Context, apiKey, modelName string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, poerr.Wrap(poerr.KindLLM, "creating gemini client", err)
	}
	return &GeminiProvider{client: client, model: modelName}, nil
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) Chat(ctx context.Context, req Request) (Response, error) {
	contents := toGeminiContents(req.Messages)
	config := &genai.GenerateContentConfig{}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if len(req.Tools) > 0 {
		config.Tools = []*genai.Tool{{FunctionDeclarations: toGeminiFunctionDeclarations(req.Tools)}}
	}

	if req.OnChunk != nil {
		return p.chatStreaming(ctx, contents, config, req.OnChunk)
	}
	return p.chatOnce(ctx, contents, config)
}

func (p *GeminiProvider) chatOnce(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (Response, error) {
	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, config)
	if err != nil {
		return Response{}, poerr.Wrap(poerr.KindLLM, "gemini generate content", err)
	}
	return fromGeminiResponse(p.Name(), p.model, resp), nil
}

func (p *GeminiProvider) chatStreaming(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig, onChunk ChunkFunc) (Response, error) {
	var final *genai.GenerateContentResponse
	for resp, err := range p.client.Models.GenerateContentStream(ctx, p.model, contents, config) {
		if err != nil {
			return Response{}, poerr.Wrap(poerr.KindLLM, "gemini streaming generate content", err)
		}
		if text := resp.Text(); text != "" && onChunk != nil {
			onChunk(text)
		}
		final = resp
	}
	if final == nil {
		return Response{}, poerr.New(poerr.KindLLM, "gemini stream produced no response")
	}
	return fromGeminiResponse(p.Name(), p.model, final), nil
}

func toGeminiContents(in []Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(in))
	for _, m := range in {
		switch m.Role {
		case RoleAssistant:
			parts := []*genai.Part{}
			if m.Content != "" {
				parts = append(parts, genai.NewPartFromText(m.Content))
			}
			for _, tc := range m.ToolCalls {
				parts = append(parts, genai.NewPartFromFunctionCall(tc.Name, tc.Arguments))
			}
			out = append(out, &genai.Content{Role: genai.RoleModel, Parts: parts})
		case RoleTool:
			out = append(out, &genai.Content{
				Role:  genai.RoleUser,
				Parts: []*genai.Part{genai.NewPartFromFunctionResponse(m.Name, map[string]any{"result": m.Content})},
			})
		default:
			out = append(out, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	return out
}

func toGeminiFunctionDeclarations(tools []ToolDefinition) []*genai.FunctionDeclaration {
	out := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		out = append(out, &genai.FunctionDeclaration{
			Name:                 t.Name,
			Description:          t.Description,
			ParametersJsonSchema: t.Parameters,
		})
	}
	return out
}

func fromGeminiResponse(provider, modelName string, resp *genai.GenerateContentResponse) Response {
	var content string
	var calls []ToolCall
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if part.Text != "" {
				content += part.Text
			}
			if part.FunctionCall != nil {
				calls = append(calls, ToolCall{Name: part.FunctionCall.Name, Arguments: part.FunctionCall.Args})
			}
		}
	}
	usage := Usage{Model: modelName, Provider: provider}
	if resp.UsageMetadata != nil {
		usage.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		usage.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return Response{Content: content, ToolCalls: calls, Usage: usage, Raw: resp}
}
