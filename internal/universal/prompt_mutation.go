package universal

import (
	"github.com/promptobjects/core/internal/capability"
	"github.com/promptobjects/core/internal/loader"
	"github.com/promptobjects/core/internal/poerr"
)

type modifyPromptArgs struct {
	Body string `json:"body"`
}

// modifyPromptSpec replaces the calling PO's body, persisting to its
// backing file and hot-swapping the live registry entry.
func modifyPromptSpec() *universal {
	return &universal{
		name:        "modify_prompt",
		description: "Replace this prompt object's own system prompt body.",
		parameters: schema(map[string]any{
			"body": map[string]any{"type": "string"},
		}, "body"),
		fn: func(deps *Deps, ctx capability.Context, msg capability.Message) (capability.Result, error) {
			var args modifyPromptArgs
			if err := decodeArgs(msg.Extra, &args); err != nil {
				return capability.Result{}, err
			}
			if args.Body == "" {
				args.Body = msg.Text
			}
			pa, err := callerPO(deps.Registry, ctx.CallerPO)
			if err != nil {
				return capability.Result{}, err
			}
			if err := loader.WritePromptObject(pa.Path(), pa.Frontmatter(), args.Body); err != nil {
				return capability.Result{}, err
			}
			newPO, err := deps.NewPO(&loader.PromptObjectFile{
				Frontmatter: pa.Frontmatter(),
				Body:        args.Body,
				Path:        pa.Path(),
			})
			if err != nil {
				return capability.Result{}, err
			}
			if err := deps.Registry.ReplacePO(ctx.CallerPO, newPO); err != nil {
				return capability.Result{}, err
			}
			return capability.TextResult("prompt body updated for " + ctx.CallerPO), nil
		},
	}
}

func mutateCapabilityList(deps *Deps, callerName, capName string, add bool) (capability.Result, error) {
	pa, err := callerPO(deps.Registry, callerName)
	if err != nil {
		return capability.Result{}, err
	}
	fm := pa.Frontmatter()
	already := stringSliceContains(fm.Capabilities, capName)
	if add {
		if already {
			return capability.TextResult(callerName + " already declares " + capName), nil
		}
		fm.Capabilities = append(fm.Capabilities, capName)
	} else {
		if !already {
			return capability.TextResult(callerName + " does not declare " + capName), nil
		}
		fm.Capabilities = removeString(fm.Capabilities, capName)
	}

	if err := loader.WritePromptObject(pa.Path(), fm, pa.Body()); err != nil {
		return capability.Result{}, err
	}
	newPO, err := deps.NewPO(&loader.PromptObjectFile{Frontmatter: fm, Body: pa.Body(), Path: pa.Path()})
	if err != nil {
		return capability.Result{}, err
	}
	if err := deps.Registry.ReplacePO(callerName, newPO); err != nil {
		return capability.Result{}, err
	}
	verb := "added"
	if !add {
		verb = "removed"
	}
	return capability.TextResult(verb + " " + capName + " for " + callerName), nil
}

type capabilityNameArgs struct {
	Capability string `json:"capability"`
}

func addCapabilitySpec() *universal {
	return &universal{
		name:        "add_capability",
		description: "Add a capability name to this prompt object's declared capability list.",
		parameters: schema(map[string]any{
			"capability": map[string]any{"type": "string"},
		}, "capability"),
		fn: func(deps *Deps, ctx capability.Context, msg capability.Message) (capability.Result, error) {
			var args capabilityNameArgs
			if err := decodeArgs(msg.Extra, &args); err != nil {
				return capability.Result{}, err
			}
			if args.Capability == "" {
				return capability.Result{}, poerr.New(poerr.KindInvalidInput, "add_capability requires 'capability'")
			}
			return mutateCapabilityList(deps, ctx.CallerPO, args.Capability, true)
		},
	}
}

func removeCapabilitySpec() *universal {
	return &universal{
		name:        "remove_capability",
		description: "Remove a capability name from this prompt object's declared capability list.",
		parameters: schema(map[string]any{
			"capability": map[string]any{"type": "string"},
		}, "capability"),
		fn: func(deps *Deps, ctx capability.Context, msg capability.Message) (capability.Result, error) {
			var args capabilityNameArgs
			if err := decodeArgs(msg.Extra, &args); err != nil {
				return capability.Result{}, err
			}
			if args.Capability == "" {
				return capability.Result{}, poerr.New(poerr.KindInvalidInput, "remove_capability requires 'capability'")
			}
			return mutateCapabilityList(deps, ctx.CallerPO, args.Capability, false)
		},
	}
}
