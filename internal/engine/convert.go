package engine

import (
	"github.com/promptobjects/core/internal/capability"
	"github.com/promptobjects/core/internal/model"
	"github.com/promptobjects/core/internal/store"
)

// historyToModel flattens a session's stored messages into the
// provider-agnostic Message list an LLM adapter expects: a tool-role
// store message (one row, many ToolResults) becomes one model.Message
// per result, since every adapter in this module pairs a tool result
// with a single originating tool_call_id.
func historyToModel(msgs []store.Message) []model.Message {
	out := make([]model.Message, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case store.RoleUser:
			out = append(out, model.Message{Role: model.RoleUser, Content: m.Content})
		case store.RoleAssistant:
			mm := model.Message{Role: model.RoleAssistant, Content: m.Content}
			for _, tc := range m.ToolCalls {
				mm.ToolCalls = append(mm.ToolCalls, model.ToolCall{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments})
			}
			out = append(out, mm)
		case store.RoleTool:
			for _, tr := range m.ToolResults {
				out = append(out, model.Message{Role: model.RoleTool, Content: tr.Content, ToolCallID: tr.ToolCallID, Name: tr.Name})
			}
		}
	}
	return out
}

func storeToolCallsFromModel(in []model.ToolCall) []store.ToolCall {
	out := make([]store.ToolCall, 0, len(in))
	for _, tc := range in {
		out = append(out, store.ToolCall{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments})
	}
	return out
}

func storeUsageFromModel(u model.Usage) *store.Usage {
	return &store.Usage{
		InputTokens:         u.InputTokens,
		OutputTokens:        u.OutputTokens,
		CacheCreationTokens: u.CacheCreationTokens,
		CacheReadTokens:     u.CacheReadTokens,
		Model:               u.Model,
		Provider:            u.Provider,
	}
}

// usageOf maps a response's usage onto the store type, estimating
// token counts from the request and response text when the provider
// reported none, so aggregations never silently read zero.
func (e *Engine) usageOf(resp model.Response, history []store.Message) *store.Usage {
	u := storeUsageFromModel(resp.Usage)
	if u.InputTokens == 0 && u.OutputTokens == 0 && e.estimator != nil {
		for _, m := range history {
			u.InputTokens += e.estimator.Count(m.Content)
		}
		u.OutputTokens = e.estimator.Count(resp.Content)
	}
	return u
}

// toolCallMessage builds the normalized capability.Message the target
// of a tool call receives: Text is the call's "message" argument when
// present (used by delegation and ask_human-style primitives), Extra
// is the call's full argument map (used by mapstructure-decoding
// universals and primitives).
func toolCallMessage(args map[string]any) capability.Message {
	return capability.NormalizeMessage(any(args))
}

func descriptorsToModelTools(descs []capability.Descriptor) []model.ToolDefinition {
	out := make([]model.ToolDefinition, 0, len(descs))
	for _, d := range descs {
		out = append(out, model.ToolDefinition{Name: d.Name, Description: d.Description, Parameters: d.Parameters})
	}
	return out
}
