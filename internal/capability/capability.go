// Package capability defines the uniform interface every invocable
// thing in the runtime satisfies: primitives, prompt objects, and
// universal built-ins.
//
// A Capability is looked up by name through the registry at dispatch
// time, never held as a pointer by another capability. That is what
// keeps the reflective, self-modifying capability graph acyclic at the
// object level even though the logical graph (who can call whom) is
// arbitrary.
package capability

import (
	"context"
	"encoding/json"
	"fmt"
)

// Kind distinguishes the three disjoint capability namespaces.
type Kind string

const (
	KindPrimitive Kind = "primitive"
	KindPromptObj Kind = "prompt_object"
	KindUniversal Kind = "universal"
)

// Parameters is a JSON-Schema-shaped parameter declaration:
// {"type": "object", "properties": {...}, "required": [...]}.
type Parameters map[string]any

// Message is what a capability receives. Callers may supply either a
// bare string or a payload with an extra map of structured fields; the
// engine normalizes both into this type before it reaches a
// capability's Receive.
type Message struct {
	Text  string
	Extra map[string]any
}

// NewTextMessage builds a plain-text Message.
func NewTextMessage(text string) Message { return Message{Text: text} }

// NormalizeMessage accepts the two duck-typed shapes callers may
// send — a bare string, or a map/hash carrying a
// "message" key plus arbitrary extra fields (e.g. a tool call's parsed
// JSON arguments) — and produces a single Message the engine persists
// uniformly. Any other shape is stringified into Text.
func NormalizeMessage(v any) Message {
	switch val := v.(type) {
	case string:
		return Message{Text: val}
	case map[string]any:
		text, _ := val["message"].(string)
		return Message{Text: text, Extra: val}
	case nil:
		return Message{}
	default:
		return Message{Text: stringifyAny(val)}
	}
}

func stringifyAny(v any) string {
	if s, ok := v.(fmt.Stringer); ok {
		return s.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// Context carries everything a capability's Receive needs beyond the
// message itself: where it's running, who's asking, how to stream, and
// how to cancel. The engine builds a Context per turn; primitives and
// universals get a read-only view via context.Context for cancellation.
type Context struct {
	// Ctx is the cancellation/deadline carrier for the current turn.
	Ctx context.Context

	// SessionID is the session the invocation is logically part of.
	SessionID string

	// CallerPO is the name of the prompt object that issued this call,
	// empty if the top-level caller is a human/front-end.
	CallerPO string

	// RootThreadID is the resolved root of the delegation tree this
	// invocation belongs to; used for env-data scoping.
	RootThreadID string

	// OnChunk streams incremental assistant text, if this invocation is
	// a PO turn.
	OnChunk func(text string)

	// FreshDelegation indicates the engine should create a new
	// delegation session when the target is a PO.
	FreshDelegation bool

	// Source tags which front-end originated this invocation
	// ("tui", "mcp", "web", "api"), used when the engine
	// lazily creates a session for a top-level call.
	Source string
}

// Result is what Receive returns: textual content plus an optional
// structured echo (used by universals that return data a front-end
// wants to render, e.g. list_capabilities).
type Result struct {
	Content   string
	Structured any
	IsError   bool
}

// TextResult builds a plain successful Result.
func TextResult(s string) Result { return Result{Content: s} }

// ErrorResult builds a Result flagged as an error, still textual so the
// engine can feed it back to the LLM as a tool-result instead of
// aborting the turn.
func ErrorResult(s string) Result { return Result{Content: s, IsError: true} }

// Capability is the shared trait every invocable thing implements.
type Capability interface {
	Name() string
	Description() string
	Parameters() Parameters
	Kind() Kind
	Receive(ctx Context, msg Message) (Result, error)
}

// Descriptor is the tool descriptor shape handed to the LLM adapter:
// name + description + parameters, nothing else. Built fresh from the
// registry on every turn so runtime additions are immediately visible.
type Descriptor struct {
	Name        string
	Description string
	Parameters  Parameters
}

// ToDescriptor projects a Capability down to its LLM-facing descriptor.
func ToDescriptor(c Capability) Descriptor {
	return Descriptor{Name: c.Name(), Description: c.Description(), Parameters: c.Parameters()}
}
