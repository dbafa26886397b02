package universal

import (
	"github.com/promptobjects/core/internal/capability"
	"github.com/promptobjects/core/internal/loader"
	"github.com/promptobjects/core/internal/poerr"
)

type createCapabilityArgs struct {
	Kind         string   `json:"kind"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Capabilities []string `json:"capabilities"`
	Body         string   `json:"body"`
	Code         string   `json:"code"`
}

// createCapabilitySpec creates either a new prompt object (kind="po")
// or a new primitive (kind="primitive"); everything else that can
// create a primitive goes through createPrimitive so the two code paths
// share one implementation.
func createCapabilitySpec() *universal {
	return &universal{
		name:        "create_capability",
		description: "Create a new prompt object or a new primitive capability.",
		parameters: schema(map[string]any{
			"kind":         map[string]any{"type": "string", "enum": []string{"po", "primitive"}},
			"name":         map[string]any{"type": "string"},
			"description":  map[string]any{"type": "string"},
			"capabilities": map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "only used for kind=po"},
			"body":         map[string]any{"type": "string", "description": "system prompt body, only used for kind=po"},
			"code":         map[string]any{"type": "string", "description": "source code, only used for kind=primitive"},
		}, "kind", "name"),
		fn: func(deps *Deps, ctx capability.Context, msg capability.Message) (capability.Result, error) {
			var args createCapabilityArgs
			if err := decodeArgs(msg.Extra, &args); err != nil {
				return capability.Result{}, err
			}
			if args.Name == "" {
				return capability.Result{}, poerr.New(poerr.KindInvalidInput, "create_capability requires 'name'")
			}
			switch args.Kind {
			case "po":
				return createPO(deps, args)
			case "primitive":
				return createPrimitive(deps, args.Name, args.Description, args.Code)
			default:
				return capability.Result{}, poerr.New(poerr.KindInvalidInput, "create_capability: unknown kind "+args.Kind+" (want po or primitive)")
			}
		},
	}
}

func createPO(deps *Deps, args createCapabilityArgs) (capability.Result, error) {
	if deps.Registry.Has(args.Name) {
		return capability.Result{}, poerr.New(poerr.KindConfig, "capability already exists: "+args.Name)
	}
	fm := loader.Frontmatter{Name: args.Name, Description: args.Description, Capabilities: args.Capabilities}
	path := loader.DefaultPOPath(deps.ObjectsDir, args.Name)
	if err := loader.WritePromptObject(path, fm, args.Body); err != nil {
		return capability.Result{}, err
	}
	po, err := deps.NewPO(&loader.PromptObjectFile{Frontmatter: fm, Body: args.Body, Path: path})
	if err != nil {
		return capability.Result{}, err
	}
	if err := deps.Registry.Register(po); err != nil {
		return capability.Result{}, err
	}
	return capability.TextResult("created prompt object " + args.Name), nil
}

// listCapabilitiesSpec lists registered capabilities, optionally scoped
// to what the calling PO can actually reach (kind="active").
func listCapabilitiesSpec() *universal {
	return &universal{
		name:        "list_capabilities",
		description: "List registered capabilities, optionally filtered and with parameter schemas.",
		parameters: schema(map[string]any{
			"kind":               map[string]any{"type": "string", "enum": []string{"all", "po", "primitive", "universal", "active"}},
			"include_parameters": map[string]any{"type": "boolean"},
		}),
		fn: func(deps *Deps, ctx capability.Context, msg capability.Message) (capability.Result, error) {
			var args struct {
				Kind              string `json:"kind"`
				IncludeParameters bool   `json:"include_parameters"`
			}
			if err := decodeArgs(msg.Extra, &args); err != nil {
				return capability.Result{}, err
			}
			if args.Kind == "" {
				args.Kind = "all"
			}

			var caps []capability.Capability
			switch args.Kind {
			case "all":
				caps = deps.Registry.List("")
			case "po":
				caps = deps.Registry.List(capability.KindPromptObj)
			case "primitive":
				caps = deps.Registry.List(capability.KindPrimitive)
			case "universal":
				caps = deps.Registry.List(capability.KindUniversal)
			case "active":
				caps = activeCapabilities(deps, ctx.CallerPO)
			default:
				return capability.Result{}, poerr.New(poerr.KindInvalidInput, "list_capabilities: unknown kind "+args.Kind)
			}

			type entry struct {
				Name        string                `json:"name"`
				Description string                `json:"description"`
				Kind        capability.Kind       `json:"kind"`
				Parameters  capability.Parameters `json:"parameters,omitempty"`
			}
			entries := make([]entry, 0, len(caps))
			for _, c := range caps {
				e := entry{Name: c.Name(), Description: c.Description(), Kind: c.Kind()}
				if args.IncludeParameters {
					e.Parameters = c.Parameters()
				}
				entries = append(entries, e)
			}
			return capability.Result{Content: humanReadableCapabilityList(caps), Structured: entries}, nil
		},
	}
}

func activeCapabilities(deps *Deps, callerName string) []capability.Capability {
	pa, err := callerPO(deps.Registry, callerName)
	if err != nil {
		return deps.Registry.List(capability.KindUniversal)
	}
	names := append([]string(nil), pa.Frontmatter().Capabilities...)
	for _, n := range deps.Registry.Snapshot()[capability.KindUniversal] {
		names = append(names, n)
	}
	var out []capability.Capability
	seen := map[string]bool{}
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		if c, ok := deps.Registry.Get(n); ok {
			out = append(out, c)
		}
	}
	return out
}

func humanReadableCapabilityList(caps []capability.Capability) string {
	names := make([]string, 0, len(caps))
	for _, c := range caps {
		names = append(names, c.Name())
	}
	return humanReadableList(names)
}
