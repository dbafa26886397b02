// Package model defines the LLM adapter contract the PO engine needs
// from any provider: a single chat call that streams
// incremental text through a callback and returns a structured final
// response once the stream ends.
package model

import "context"

// Role is the sender of a Message in the adapter's wire vocabulary.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry in the chronological history handed to an
// adapter. ToolCalls is populated on assistant messages that invoked
// tools; ToolCallID/Name identify a tool-role message's originating
// call.
type Message struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
	Name       string
}

// ToolDefinition is the descriptor an adapter exposes to the model for
// one callable capability, built fresh from the registry every turn
//.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToolCall is one invocation the model asked for.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// Usage is the per-call token accounting an adapter reports back,
// mapped 1:1 onto store.Usage by the engine.
type Usage struct {
	InputTokens         int
	OutputTokens        int
	CacheCreationTokens int
	CacheReadTokens     int
	Model               string
	Provider            string
}

// Response is what a Provider call returns once its stream (if any)
// has ended: the accumulated content, any tool calls, usage, and the
// provider's raw echo for debugging.
type Response struct {
	Content   string
	ToolCalls []ToolCall
	Usage     Usage
	Raw       any
}

// ChunkFunc receives incremental assistant text during a streaming
// call. It may be invoked any number of times before Chat returns;
// consumers treat chunks as append-only text over the pending turn
//.
type ChunkFunc func(text string)

// Request bundles everything a Provider needs for one turn's LLM call.
type Request struct {
	System   string
	Messages []Message
	Tools    []ToolDefinition
	// OnChunk is called for each incremental piece of assistant text
	// when the provider streams; it may be nil for non-streaming calls.
	OnChunk ChunkFunc
}

// Provider is the narrow interface the engine needs from any LLM
// backend. A single Chat call
// streams through req.OnChunk and returns the final, structured
// Response once the call completes.
type Provider interface {
	// Name identifies this provider for Usage.Provider / descriptor logs.
	Name() string
	Chat(ctx context.Context, req Request) (Response, error)
}
