package environment

import (
	"context"
	"net/http"

	"github.com/promptobjects/core/internal/bus"
	"github.com/promptobjects/core/internal/capability"
	"github.com/promptobjects/core/internal/engine"
	"github.com/promptobjects/core/internal/humanqueue"
	"github.com/promptobjects/core/internal/loader"
	"github.com/promptobjects/core/internal/metrics"
	"github.com/promptobjects/core/internal/model"
	"github.com/promptobjects/core/internal/poerr"
	"github.com/promptobjects/core/internal/primitive"
	"github.com/promptobjects/core/internal/registry"
	"github.com/promptobjects/core/internal/store"
	"github.com/promptobjects/core/internal/tracing"
	"github.com/promptobjects/core/internal/universal"
)

// Environment is one fully wired instance of the runtime: every package
// this module ships, bound together, with no state living outside this
// struct.
type Environment struct {
	Config   Config
	Manifest Manifest

	Registry *registry.Registry
	Store    *store.Store
	Bus      *bus.Bus
	Queue    *humanqueue.Queue
	Models   *model.Registry
	Metrics  *metrics.Metrics
	Engine   *engine.Engine

	tracingShutdown func(context.Context) error
}

// New boots an Environment rooted at cfg.Dir: loads the .env file and
// manifest, opens the thread store, registers the LLM providers this
// process has credentials for, registers the built-in primitives and
// the fourteen universal capabilities, and loads every *.md prompt
// object from objects/ into the registry.
func New(ctx context.Context, cfg Config) (*Environment, error) {
	loadDotEnv(cfg.Dir)

	manifest, err := LoadManifest(cfg.Dir)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.dbPath())
	if err != nil {
		return nil, err
	}

	b := bus.New(st, 200)
	reg := registry.New()
	queue := humanqueue.New()
	models := model.NewRegistry()
	m := metrics.New()

	if err := registerProviders(ctx, manifest, models); err != nil {
		st.Close()
		return nil, err
	}

	shutdown, err := tracing.Init(ctx, tracing.Config{
		Enabled:      cfg.TracingEnabled,
		ServiceName:  manifest.Name,
		SamplingRate: 1.0,
	})
	if err != nil {
		st.Close()
		return nil, poerr.Wrap(poerr.KindConfig, "initializing tracing", err)
	}

	eng := engine.New(reg, st, b, queue, models, m, engine.Config{MaxTurns: cfg.MaxTurns})

	env := &Environment{
		Config:          cfg,
		Manifest:        manifest,
		Registry:        reg,
		Store:           st,
		Bus:             b,
		Queue:           queue,
		Models:          models,
		Metrics:         m,
		Engine:          eng,
		tracingShutdown: shutdown,
	}

	if err := env.registerBuiltinCapabilities(); err != nil {
		st.Close()
		return nil, err
	}
	if err := env.loadPromptObjects(); err != nil {
		st.Close()
		return nil, err
	}
	return env, nil
}

func (e *Environment) registerBuiltinCapabilities() error {
	for _, p := range primitive.Builtins(e.Config.Dir, &http.Client{}) {
		if err := e.Registry.Register(p); err != nil {
			return err
		}
	}
	deps := &universal.Deps{
		Registry:      e.Registry,
		Store:         e.Store,
		Queue:         e.Queue,
		Bus:           e.Bus,
		ObjectsDir:    e.Config.objectsDir(),
		PrimitivesDir: e.Config.primitivesDir(),
		NewPO:         e.Engine.NewPromptObject,
	}
	return universal.Register(deps)
}

// loadPromptObjects reads every *.md file under the environment's
// objects directory and registers it as a capability, via the engine's
// prompt-object constructor.
func (e *Environment) loadPromptObjects() error {
	files, err := loader.LoadDir(e.Config.objectsDir())
	if err != nil {
		return err
	}
	for _, f := range files {
		po, err := e.Engine.NewPromptObject(f)
		if err != nil {
			return err
		}
		if err := e.Registry.Register(po); err != nil {
			return err
		}
	}
	return nil
}

// Send routes one message to a named prompt object as a top-level
// (non-delegated) call, the entry point every connector uses.
// source tags which front-end is calling (tui/mcp/web/api).
func (e *Environment) Send(ctx context.Context, poName, source string, msg capability.Message) (capability.Result, error) {
	c, ok := e.Registry.Get(poName)
	if !ok {
		return capability.Result{}, poerr.New(poerr.KindResolution, "prompt object not found: "+poName)
	}
	if c.Kind() != capability.KindPromptObj {
		return capability.Result{}, poerr.New(poerr.KindInvalidInput, poName+" is not a prompt object")
	}
	return c.Receive(capability.Context{Ctx: ctx, Source: source}, msg)
}

// ReloadPO re-parses a PO definition file and atomically swaps the
// registry entry, preserving existing sessions. External file watchers
// and the WS update_po command both land here.
func (e *Environment) ReloadPO(path string) error {
	file, err := loader.ReloadFile(path)
	if err != nil {
		return err
	}
	po, err := e.Engine.NewPromptObject(file)
	if err != nil {
		return err
	}
	return e.Registry.ReplacePO(file.Frontmatter.Name, po)
}

// Info is the read-only summary the REST "environment info" endpoint
// and the WS connect handshake report.
type Info struct {
	Name           string   `json:"name"`
	PromptObjects  []string `json:"prompt_objects"`
	Primitives     []string `json:"primitives"`
	ActiveProvider string   `json:"active_provider"`
	Providers      []string `json:"providers"`
}

// Info reports a snapshot of the environment's current capabilities and
// active LLM provider.
func (e *Environment) Info() Info {
	snap := e.Registry.Snapshot()
	active, _ := e.Models.Active()
	activeName := ""
	if active != nil {
		activeName = active.Name()
	}
	return Info{
		Name:           e.Manifest.Name,
		PromptObjects:  snap[capability.KindPromptObj],
		Primitives:     snap[capability.KindPrimitive],
		ActiveProvider: activeName,
		Providers:      e.Models.Names(),
	}
}

// Close releases the store connection and shuts down tracing export.
func (e *Environment) Close(ctx context.Context) error {
	if e.tracingShutdown != nil {
		_ = e.tracingShutdown(ctx)
	}
	return e.Store.Close()
}
