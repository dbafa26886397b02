package universal

import (
	"os"

	"github.com/promptobjects/core/internal/capability"
	"github.com/promptobjects/core/internal/poerr"
	"github.com/promptobjects/core/internal/primitive"
)

// createPrimitive compiles code and registers it under name. description
// is accepted for schema symmetry with create_capability(kind="po") but
// a primitive's authoritative name/description/parameters always come
// from its own compiled Name/Description/Parameters symbols.
func createPrimitive(deps *Deps, name, description, code string) (capability.Result, error) {
	if deps.Registry.Has(name) {
		return capability.Result{}, poerr.New(poerr.KindConfig, "capability already exists: "+name)
	}
	prim, err := compilePrimitive(deps, name, code)
	if err != nil {
		return capability.Result{}, err
	}
	if err := deps.Registry.Register(prim); err != nil {
		return capability.Result{}, err
	}
	return capability.TextResult("created primitive " + prim.Name()), nil
}

func createPrimitiveSpec() *universal {
	return &universal{
		name:        "create_primitive",
		description: "Compile and register a new primitive from source code.",
		parameters: schema(map[string]any{
			"name":        map[string]any{"type": "string"},
			"description": map[string]any{"type": "string"},
			"code":        map[string]any{"type": "string"},
		}, "name", "code"),
		fn: func(deps *Deps, ctx capability.Context, msg capability.Message) (capability.Result, error) {
			var args struct {
				Name        string `json:"name"`
				Description string `json:"description"`
				Code        string `json:"code"`
			}
			if err := decodeArgs(msg.Extra, &args); err != nil {
				return capability.Result{}, err
			}
			return createPrimitive(deps, args.Name, args.Description, args.Code)
		},
	}
}

func modifyPrimitiveSpec() *universal {
	return &universal{
		name:        "modify_primitive",
		description: "Replace an existing primitive's source code.",
		parameters: schema(map[string]any{
			"name": map[string]any{"type": "string"},
			"code": map[string]any{"type": "string"},
		}, "name", "code"),
		fn: func(deps *Deps, ctx capability.Context, msg capability.Message) (capability.Result, error) {
			var args struct {
				Name string `json:"name"`
				Code string `json:"code"`
			}
			if err := decodeArgs(msg.Extra, &args); err != nil {
				return capability.Result{}, err
			}
			existing, ok := deps.Registry.Get(args.Name)
			if !ok || existing.Kind() != capability.KindPrimitive {
				return capability.Result{}, poerr.New(poerr.KindNotFound, "primitive not found: "+args.Name)
			}
			prim, err := compilePrimitive(deps, args.Name, args.Code)
			if err != nil {
				return capability.Result{}, err
			}
			if err := deps.Registry.Remove(args.Name); err != nil {
				return capability.Result{}, err
			}
			if err := deps.Registry.Register(prim); err != nil {
				return capability.Result{}, err
			}
			return capability.TextResult("updated primitive " + args.Name), nil
		},
	}
}

func deletePrimitiveSpec() *universal {
	return &universal{
		name:        "delete_primitive",
		description: "Remove a primitive from the registry and its source from disk.",
		parameters: schema(map[string]any{
			"name": map[string]any{"type": "string"},
		}, "name"),
		fn: func(deps *Deps, ctx capability.Context, msg capability.Message) (capability.Result, error) {
			var args struct {
				Name string `json:"name"`
			}
			if err := decodeArgs(msg.Extra, &args); err != nil {
				return capability.Result{}, err
			}
			existing, ok := deps.Registry.Get(args.Name)
			if !ok || existing.Kind() != capability.KindPrimitive {
				return capability.Result{}, poerr.New(poerr.KindNotFound, "primitive not found: "+args.Name)
			}
			if prim, ok := existing.(*primitive.Primitive); ok && prim.SourcePath() != "" {
				_ = os.Remove(prim.SourcePath())
			}
			if err := deps.Registry.Remove(args.Name); err != nil {
				return capability.Result{}, err
			}
			return capability.TextResult("deleted primitive " + args.Name), nil
		},
	}
}

func verifyPrimitiveSpec() *universal {
	return &universal{
		name:        "verify_primitive",
		description: "Execute a primitive against a sample input without persisting anything.",
		parameters: schema(map[string]any{
			"name":  map[string]any{"type": "string"},
			"input": map[string]any{"type": "string"},
		}, "name"),
		fn: func(deps *Deps, ctx capability.Context, msg capability.Message) (capability.Result, error) {
			var args struct {
				Name  string `json:"name"`
				Input string `json:"input"`
			}
			if err := decodeArgs(msg.Extra, &args); err != nil {
				return capability.Result{}, err
			}
			existing, ok := deps.Registry.Get(args.Name)
			if !ok || existing.Kind() != capability.KindPrimitive {
				return capability.Result{}, poerr.New(poerr.KindNotFound, "primitive not found: "+args.Name)
			}
			return existing.Receive(ctx, capability.NewTextMessage(args.Input))
		},
	}
}

func listPrimitivesSpec() *universal {
	return &universal{
		name:        "list_primitives",
		description: "List primitives, filtered by stdlib/custom/active.",
		parameters: schema(map[string]any{
			"filter": map[string]any{"type": "string", "enum": []string{"all", "stdlib", "custom", "active"}},
		}),
		fn: func(deps *Deps, ctx capability.Context, msg capability.Message) (capability.Result, error) {
			var args struct {
				Filter string `json:"filter"`
			}
			if err := decodeArgs(msg.Extra, &args); err != nil {
				return capability.Result{}, err
			}
			if args.Filter == "" {
				args.Filter = "all"
			}

			var prims []capability.Capability
			if args.Filter == "active" {
				for _, c := range activeCapabilities(deps, ctx.CallerPO) {
					if c.Kind() == capability.KindPrimitive {
						prims = append(prims, c)
					}
				}
			} else {
				for _, c := range deps.Registry.List(capability.KindPrimitive) {
					prim, ok := c.(*primitive.Primitive)
					isStdlib := ok && prim.SourcePath() == ""
					switch args.Filter {
					case "stdlib":
						if isStdlib {
							prims = append(prims, c)
						}
					case "custom":
						if !isStdlib {
							prims = append(prims, c)
						}
					default:
						prims = append(prims, c)
					}
				}
			}

			names := make([]string, 0, len(prims))
			for _, c := range prims {
				names = append(names, c.Name())
			}
			return capability.Result{Content: humanReadableList(names), Structured: names}, nil
		},
	}
}
