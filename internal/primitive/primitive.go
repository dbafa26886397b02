// Package primitive implements the primitive runtime: deterministic,
// native-code capabilities. Some primitives ship with the runtime
// (read_file, list_files, write_file, http_get); others are authored by
// a prompt object at runtime via create_primitive and compiled into the
// registry.
package primitive

import (
	"context"

	"github.com/promptobjects/core/internal/capability"
	"github.com/promptobjects/core/internal/poerr"
)

// Func is the native Go implementation of a primitive's behavior.
// Receives the normalized message text plus the extra structured
// fields and returns a string or a JSON-serializable value.
type Func func(ctx context.Context, message string, extra map[string]any) (any, error)

// Primitive is a Capability backed by native code.
type Primitive struct {
	name        string
	description string
	parameters  capability.Parameters
	fn          Func
	// sourcePath is set for runtime-authored primitives (empty for
	// built-ins compiled into the binary), used by delete_primitive to
	// remove the backing file.
	sourcePath string
}

// New constructs a built-in or pre-compiled Primitive.
func New(name, description string, parameters capability.Parameters, fn Func) *Primitive {
	return &Primitive{name: name, description: description, parameters: parameters, fn: fn}
}

func (p *Primitive) Name() string                  { return p.name }
func (p *Primitive) Description() string           { return p.description }
func (p *Primitive) Parameters() capability.Parameters { return p.parameters }
func (p *Primitive) Kind() capability.Kind          { return capability.KindPrimitive }
func (p *Primitive) SourcePath() string             { return p.sourcePath }

// Receive invokes the primitive's native function, converting a panic
// or error into an error-flavored result so the turn loop can feed it
// back to the LLM as a tool-result rather than aborting.
func (p *Primitive) Receive(ctx capability.Context, msg capability.Message) (result capability.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = nil
			result = capability.ErrorResult("primitive panic: " + toString(r))
		}
	}()

	goCtx := ctx.Ctx
	if goCtx == nil {
		goCtx = context.Background()
	}

	val, callErr := p.fn(goCtx, msg.Text, msg.Extra)
	if callErr != nil {
		pe := poerr.Wrap(poerr.KindCapability, "primitive "+p.name+" failed", callErr)
		return capability.ErrorResult(pe.Error()), nil
	}
	return capability.Result{Content: stringify(val), Structured: val}, nil
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if e, ok := v.(error); ok {
		return e.Error()
	}
	return stringify(v)
}
