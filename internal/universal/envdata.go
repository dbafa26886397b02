package universal

import (
	"encoding/json"
	"fmt"

	"github.com/promptobjects/core/internal/bus"
	"github.com/promptobjects/core/internal/capability"
	"github.com/promptobjects/core/internal/poerr"
	"github.com/promptobjects/core/internal/store"
)

// publishEnvDataChange tells live subscribers an env-data write
// happened, so dashboards can refresh listings without polling.
func publishEnvDataChange(deps *Deps, ctx capability.Context, op, key string) {
	if deps.Bus == nil {
		return
	}
	_ = deps.Bus.Publish(bus.Event{
		SessionID: ctx.SessionID,
		Kind:      bus.KindEnvDataChange,
		Content:   op + " " + key,
		Extra: map[string]any{
			"op":             op,
			"key":            key,
			"root_thread_id": ctx.RootThreadID,
			"stored_by":      ctx.CallerPO,
		},
	})
}

// stringifyValue renders an env-data value as tool-result text, the
// same string-passthrough/JSON-fallback rule the primitive runtime uses.
func stringifyValue(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err.Error()
	}
	return string(b)
}

func envDataListingText(entries []struct {
	Key              string `json:"key"`
	ShortDescription string `json:"short_description"`
	StoredBy         string `json:"stored_by"`
}) string {
	if len(entries) == 0 {
		return "(no env data entries)"
	}
	var lines []string
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("%s (%s) — %s", e.Key, e.StoredBy, e.ShortDescription))
	}
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out
}

func storeEnvDataSpec() *universal {
	return &universal{
		name:        "store_env_data",
		description: "Store a value in the environment data space, scoped to this delegation tree's root.",
		parameters: schema(map[string]any{
			"key":               map[string]any{"type": "string"},
			"short_description": map[string]any{"type": "string"},
			"value":             map[string]any{},
		}, "key", "value"),
		fn: func(deps *Deps, ctx capability.Context, msg capability.Message) (capability.Result, error) {
			var args struct {
				Key              string `json:"key"`
				ShortDescription string `json:"short_description"`
				Value            any    `json:"value"`
			}
			if err := decodeArgs(msg.Extra, &args); err != nil {
				return capability.Result{}, err
			}
			if args.Key == "" {
				return capability.Result{}, poerr.New(poerr.KindInvalidInput, "store_env_data requires 'key'")
			}
			err := deps.Store.StoreEnvData(store.EnvDataEntry{
				RootThreadID:     ctx.RootThreadID,
				Key:              args.Key,
				ShortDescription: args.ShortDescription,
				Value:            args.Value,
				StoredBy:         ctx.CallerPO,
			})
			if err != nil {
				return capability.Result{}, err
			}
			publishEnvDataChange(deps, ctx, "store", args.Key)
			return capability.TextResult("stored " + args.Key), nil
		},
	}
}

func updateEnvDataSpec() *universal {
	return &universal{
		name:        "update_env_data",
		description: "Update an existing environment data entry; fails if the key is absent.",
		parameters: schema(map[string]any{
			"key":               map[string]any{"type": "string"},
			"short_description": map[string]any{"type": "string"},
			"value":             map[string]any{},
		}, "key", "value"),
		fn: func(deps *Deps, ctx capability.Context, msg capability.Message) (capability.Result, error) {
			var args struct {
				Key              string `json:"key"`
				ShortDescription string `json:"short_description"`
				Value            any    `json:"value"`
			}
			if err := decodeArgs(msg.Extra, &args); err != nil {
				return capability.Result{}, err
			}
			if args.Key == "" {
				return capability.Result{}, poerr.New(poerr.KindInvalidInput, "update_env_data requires 'key'")
			}
			ok, err := deps.Store.UpdateEnvData(ctx.RootThreadID, args.Key, args.ShortDescription, args.Value, ctx.CallerPO)
			if err != nil {
				return capability.Result{}, err
			}
			if !ok {
				return capability.ErrorResult("no env data entry for key " + args.Key), nil
			}
			publishEnvDataChange(deps, ctx, "update", args.Key)
			return capability.TextResult("updated " + args.Key), nil
		},
	}
}

func deleteEnvDataSpec() *universal {
	return &universal{
		name:        "delete_env_data",
		description: "Delete an environment data entry.",
		parameters: schema(map[string]any{
			"key": map[string]any{"type": "string"},
		}, "key"),
		fn: func(deps *Deps, ctx capability.Context, msg capability.Message) (capability.Result, error) {
			var args struct {
				Key string `json:"key"`
			}
			if err := decodeArgs(msg.Extra, &args); err != nil {
				return capability.Result{}, err
			}
			ok, err := deps.Store.DeleteEnvData(ctx.RootThreadID, args.Key)
			if err != nil {
				return capability.Result{}, err
			}
			if !ok {
				return capability.ErrorResult("no env data entry for key " + args.Key), nil
			}
			publishEnvDataChange(deps, ctx, "delete", args.Key)
			return capability.TextResult("deleted " + args.Key), nil
		},
	}
}

func getEnvDataSpec() *universal {
	return &universal{
		name:        "get_env_data",
		description: "Fetch an environment data entry's value.",
		parameters: schema(map[string]any{
			"key": map[string]any{"type": "string"},
		}, "key"),
		fn: func(deps *Deps, ctx capability.Context, msg capability.Message) (capability.Result, error) {
			var args struct {
				Key string `json:"key"`
			}
			if err := decodeArgs(msg.Extra, &args); err != nil {
				return capability.Result{}, err
			}
			entry, ok, err := deps.Store.GetEnvData(ctx.RootThreadID, args.Key)
			if err != nil {
				return capability.Result{}, err
			}
			if !ok {
				return capability.ErrorResult("no env data entry for key " + args.Key), nil
			}
			return capability.Result{Content: stringifyValue(entry.Value), Structured: entry.Value}, nil
		},
	}
}

func listEnvDataSpec() *universal {
	return &universal{
		name:        "list_env_data",
		description: "List environment data entries for this delegation tree's root (values omitted).",
		parameters:  schema(map[string]any{}),
		fn: func(deps *Deps, ctx capability.Context, msg capability.Message) (capability.Result, error) {
			entries, err := deps.Store.ListEnvData(ctx.RootThreadID)
			if err != nil {
				return capability.Result{}, err
			}
			out := make([]struct {
				Key              string `json:"key"`
				ShortDescription string `json:"short_description"`
				StoredBy         string `json:"stored_by"`
			}, 0, len(entries))
			for _, e := range entries {
				out = append(out, struct {
					Key              string `json:"key"`
					ShortDescription string `json:"short_description"`
					StoredBy         string `json:"stored_by"`
				}{Key: e.Key, ShortDescription: e.ShortDescription, StoredBy: e.StoredBy})
			}
			return capability.Result{Content: envDataListingText(out), Structured: out}, nil
		},
	}
}
