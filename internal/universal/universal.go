// Package universal implements the built-in capabilities every prompt
// object can call without declaring them: fourteen operations,
// registered under seventeen capability names. They are
// registered once at environment boot and never reloaded.
package universal

import (
	"os"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/promptobjects/core/internal/bus"
	"github.com/promptobjects/core/internal/capability"
	"github.com/promptobjects/core/internal/humanqueue"
	"github.com/promptobjects/core/internal/loader"
	"github.com/promptobjects/core/internal/poerr"
	"github.com/promptobjects/core/internal/primitive"
	"github.com/promptobjects/core/internal/registry"
	"github.com/promptobjects/core/internal/store"
)

// poAccessor is satisfied (structurally, without an import) by the
// engine's prompt-object capability: the subset of its surface that
// modify_prompt/create_capability/add_capability/remove_capability need
// to read and rewrite a PO's backing file.
type poAccessor interface {
	capability.Capability
	Frontmatter() loader.Frontmatter
	Body() string
	Path() string
}

// Deps wires a capability's registrations to the rest of the
// environment. NewPO is supplied by the environment package (it closes
// over whatever the engine's prompt-object constructor needs) so this
// package never imports the engine.
type Deps struct {
	Registry      *registry.Registry
	Store         *store.Store
	Queue         *humanqueue.Queue
	Bus           *bus.Bus
	ObjectsDir    string
	PrimitivesDir string
	NewPO         func(file *loader.PromptObjectFile) (capability.Capability, error)
}

func decodeArgs(extra map[string]any, dst any) error {
	if extra == nil {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           dst,
		WeaklyTypedInput: true,
		TagName:          "json",
	})
	if err != nil {
		return err
	}
	return dec.Decode(extra)
}

// universal is a Capability backed by a closure over Deps, the same
// shape primitive.Primitive uses for built-ins.
type universal struct {
	name        string
	description string
	parameters  capability.Parameters
	fn          func(deps *Deps, ctx capability.Context, msg capability.Message) (capability.Result, error)
	deps        *Deps
}

func (u *universal) Name() string                     { return u.name }
func (u *universal) Description() string              { return u.description }
func (u *universal) Parameters() capability.Parameters { return u.parameters }
func (u *universal) Kind() capability.Kind             { return capability.KindUniversal }

// Receive never returns a Go error: the dispatch invariant is
// that universals always produce a text result, converting any failure
// into an error-flagged Result instead of aborting the turn.
func (u *universal) Receive(ctx capability.Context, msg capability.Message) (capability.Result, error) {
	res, err := u.fn(u.deps, ctx, msg)
	if err != nil {
		return capability.ErrorResult(err.Error()), nil
	}
	return res, nil
}

func schema(properties map[string]any, required ...string) capability.Parameters {
	p := capability.Parameters{"type": "object", "properties": properties}
	if len(required) > 0 {
		p["required"] = required
	}
	return p
}

func callerPO(reg *registry.Registry, name string) (poAccessor, error) {
	c, ok := reg.Get(name)
	if !ok {
		return nil, poerr.New(poerr.KindResolution, "calling prompt object not found: "+name)
	}
	pa, ok := c.(poAccessor)
	if !ok {
		return nil, poerr.New(poerr.KindInvalidInput, name+" is not a prompt object")
	}
	return pa, nil
}

func stringSliceContains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

func removeString(ss []string, s string) []string {
	out := make([]string, 0, len(ss))
	for _, v := range ss {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}

// Register builds all seventeen universal capabilities bound to deps and
// registers them into deps.Registry.
func Register(deps *Deps) error {
	for _, u := range specs(deps) {
		if err := deps.Registry.Register(u); err != nil {
			return err
		}
	}
	return nil
}

func specs(deps *Deps) []capability.Capability {
	defs := []*universal{
		askHumanSpec(),
		thinkSpec(),
		modifyPromptSpec(),
		createCapabilitySpec(),
		addCapabilitySpec(),
		removeCapabilitySpec(),
		listCapabilitiesSpec(),
		createPrimitiveSpec(),
		modifyPrimitiveSpec(),
		deletePrimitiveSpec(),
		verifyPrimitiveSpec(),
		listPrimitivesSpec(),
		storeEnvDataSpec(),
		updateEnvDataSpec(),
		deleteEnvDataSpec(),
		getEnvDataSpec(),
		listEnvDataSpec(),
	}
	out := make([]capability.Capability, 0, len(defs))
	for _, d := range defs {
		d.deps = deps
		out = append(out, d)
	}
	return out
}

func writePrimitiveSource(primitivesDir, name, code string, interpreted bool) (string, error) {
	if err := os.MkdirAll(primitivesDir, 0755); err != nil {
		return "", poerr.Wrap(poerr.KindStore, "creating primitives directory", err)
	}
	ext := ".go"
	if interpreted {
		ext = ".yaml"
	}
	path := primitivesDir + string(os.PathSeparator) + name + ext
	if err := os.WriteFile(path, []byte(code), 0644); err != nil {
		return "", poerr.Wrap(poerr.KindStore, "writing primitive source "+path, err)
	}
	return path, nil
}

func compilePrimitive(deps *Deps, name, code string) (*primitive.Primitive, error) {
	var prim *primitive.Primitive
	if primitive.PluginSupported() {
		var err error
		prim, err = primitive.Compile(deps.PrimitivesDir, name, []byte(code))
		if err != nil {
			return nil, err
		}
	} else {
		spec, err := primitive.ParseInterpretedSpec([]byte(code))
		if err != nil {
			return nil, err
		}
		prim, err = primitive.Interpret(spec)
		if err != nil {
			return nil, err
		}
		if _, err := writePrimitiveSource(deps.PrimitivesDir, name, code, true); err != nil {
			return nil, err
		}
	}
	if err := primitive.ValidateSchema(prim.Parameters()); err != nil {
		return nil, err
	}
	return prim, nil
}

func sortedStrings(ss []string) []string {
	out := append([]string(nil), ss...)
	sort.Strings(out)
	return out
}

func humanReadableList(ss []string) string {
	return strings.Join(sortedStrings(ss), ", ")
}
