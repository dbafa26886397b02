package engine

import (
	"github.com/promptobjects/core/internal/capability"
	"github.com/promptobjects/core/internal/loader"
)

// PromptObject is the Capability wrapping a user-authored PO file: its
// Receive hands control straight to the engine's turn loop,
// so a delegated call and a top-level call share exactly one code path.
type PromptObject struct {
	engine      *Engine
	frontmatter loader.Frontmatter
	body        string
	path        string
}

func newPromptObject(e *Engine, file *loader.PromptObjectFile) *PromptObject {
	return &PromptObject{engine: e, frontmatter: file.Frontmatter, body: file.Body, path: file.Path}
}

func (p *PromptObject) Name() string        { return p.frontmatter.Name }
func (p *PromptObject) Description() string { return p.frontmatter.Description }
func (p *PromptObject) Kind() capability.Kind { return capability.KindPromptObj }

// Parameters describes the single argument every delegation call into
// a PO accepts: the message to hand it. Extra fields a caller includes
// are preserved on Message.Extra but a PO's own prompt body is what
// actually interprets them, not a declared schema.
func (p *PromptObject) Parameters() capability.Parameters {
	return capability.Parameters{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":        "string",
				"description": "message to send to " + p.Name(),
			},
		},
		"required": []string{"message"},
	}
}

// Frontmatter, Body, and Path satisfy the universal package's
// poAccessor interface (structural, no import cycle) so
// modify_prompt/add_capability/remove_capability can read and rewrite
// this PO's backing file.
func (p *PromptObject) Frontmatter() loader.Frontmatter { return p.frontmatter }
func (p *PromptObject) Body() string                    { return p.body }
func (p *PromptObject) Path() string                    { return p.path }

// DeclaredCapabilities is the PO's advisory capabilities list. It is
// advisory because the engine still resolves names via the registry at
// dispatch time, so runtime additions become visible immediately.
func (p *PromptObject) DeclaredCapabilities() []string { return p.frontmatter.Capabilities }

func (p *PromptObject) Receive(ctx capability.Context, msg capability.Message) (capability.Result, error) {
	return p.engine.RunTurn(p, ctx, msg)
}
