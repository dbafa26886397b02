package primitive

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
	jsvalidate "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/promptobjects/core/internal/capability"
	"github.com/promptobjects/core/internal/poerr"
)

// SchemaFor reflects a JSON-Schema parameter declaration from an
// argument struct, so a primitive's schema and its decode target can't
// drift apart. Field descriptions come from `jsonschema:"description=..."`
// tags.
func SchemaFor(v any) capability.Parameters {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	s := r.Reflect(v)
	data, err := json.Marshal(s)
	if err != nil {
		return capability.Parameters{"type": "object"}
	}
	var out capability.Parameters
	if err := json.Unmarshal(data, &out); err != nil {
		return capability.Parameters{"type": "object"}
	}
	delete(out, "$schema")
	delete(out, "$id")
	out["type"] = "object"
	return out
}

// ValidateSchema checks that a declared parameters object is itself a
// valid JSON Schema, so a runtime-authored primitive with a broken
// declaration is rejected at creation rather than surfacing as a
// confusing tool-call failure later.
func ValidateSchema(params capability.Parameters) error {
	data, err := json.Marshal(params)
	if err != nil {
		return poerr.Wrap(poerr.KindInvalidInput, "encoding parameters schema", err)
	}
	if _, err := jsvalidate.CompileString("params.json", string(data)); err != nil {
		return poerr.Wrap(poerr.KindInvalidInput, "parameters is not a valid JSON Schema", err)
	}
	return nil
}

// ValidateArgs checks a tool call's arguments against the target's
// declared schema. A nil error means the arguments conform; schemas
// that fail to compile are treated as absent (the call proceeds), since
// a capability with a sloppy schema should still be invocable.
func ValidateArgs(params capability.Parameters, args map[string]any) error {
	if len(params) == 0 {
		return nil
	}
	data, err := json.Marshal(params)
	if err != nil {
		return nil
	}
	compiled, err := jsvalidate.CompileString("params.json", string(data))
	if err != nil {
		return nil
	}
	if args == nil {
		args = map[string]any{}
	}
	if err := compiled.Validate(normalizeForValidation(args)); err != nil {
		return poerr.Wrap(poerr.KindInvalidInput, "arguments do not match the capability's schema", err)
	}
	return nil
}

// normalizeForValidation round-trips args through JSON so numeric types
// match what the validator expects (json.Number-free interface values).
func normalizeForValidation(args map[string]any) any {
	data, err := json.Marshal(args)
	if err != nil {
		return args
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return args
	}
	return out
}
