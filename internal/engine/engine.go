// Package engine implements the PO Engine: the turn loop that drives a
// prompt object through an LLM call, tool dispatch, delegation,
// persistence, and streaming, plus the delegation session
// wiring and cooperative cancellation.
package engine

import (
	"context"
	"log/slog"

	"github.com/promptobjects/core/internal/bus"
	"github.com/promptobjects/core/internal/capability"
	"github.com/promptobjects/core/internal/humanqueue"
	"github.com/promptobjects/core/internal/loader"
	"github.com/promptobjects/core/internal/metrics"
	"github.com/promptobjects/core/internal/model"
	"github.com/promptobjects/core/internal/poerr"
	"github.com/promptobjects/core/internal/registry"
	"github.com/promptobjects/core/internal/store"
	"github.com/promptobjects/core/internal/tracing"
	"github.com/promptobjects/core/internal/usage"
)

// Config tunes turn-loop behavior left to the
// implementation.
type Config struct {
	// MaxTurns bounds the number of LLM-call/tool-dispatch iterations
	// within a single turn; 0 means unbounded.
	MaxTurns int
}

// Engine wires the registry, store, bus, human queue, and LLM provider
// registry together to run PO turns. It holds no other mutable
// process-level state.
type Engine struct {
	Registry  *registry.Registry
	Store     *store.Store
	Bus       *bus.Bus
	Queue     *humanqueue.Queue
	Models    *model.Registry
	Metrics   *metrics.Metrics
	Config    Config
	estimator *usage.Estimator
}

// New builds an Engine. m may be nil, in which case no metrics are
// recorded.
func New(reg *registry.Registry, st *store.Store, b *bus.Bus, q *humanqueue.Queue, models *model.Registry, m *metrics.Metrics, cfg Config) *Engine {
	return &Engine{Registry: reg, Store: st, Bus: b, Queue: q, Models: models, Metrics: m, Config: cfg, estimator: usage.NewEstimator("")}
}

// NewPromptObject builds a capability.Capability from a parsed PO file,
// bound to this engine. This is handed to universal.Deps.NewPO and to
// the loader/registry boot sequence so every PO capability's Receive
// routes through RunTurn.
func (e *Engine) NewPromptObject(file *loader.PromptObjectFile) (capability.Capability, error) {
	return newPromptObject(e, file), nil
}

// RunTurn drives po through the full turn loop for one incoming
// message. ctx.SessionID empty means "resolve or create the PO's
// default session" (top-level entry); non-empty means the session was
// already created by the caller (delegation dispatch).
func (e *Engine) RunTurn(po *PromptObject, ctx capability.Context, msg capability.Message) (capability.Result, error) {
	goCtx := ctx.Ctx
	if goCtx == nil {
		goCtx = context.Background()
	}
	turnCtx, span := tracing.StartTurn(goCtx, po.Name(), ctx.SessionID)
	defer span.End()
	ctx.Ctx = turnCtx

	sess, source, err := e.resolveSession(po, ctx)
	if err != nil {
		return capability.Result{}, err
	}
	ctx.SessionID = sess.ID

	rootThreadID, err := e.Store.ResolveRootThread(sess.ID)
	if err != nil {
		return capability.Result{}, err
	}
	ctx.RootThreadID = rootThreadID

	if _, err := e.Store.AddMessage(store.Message{
		SessionID: sess.ID,
		Role:      store.RoleUser,
		Content:   msg.Text,
		FromPO:    ctx.CallerPO,
		Source:    source,
	}); err != nil {
		return capability.Result{}, err
	}
	e.publish(bus.Event{
		SessionID: sess.ID,
		Kind:      bus.KindMessage,
		Content:   msg.Text,
		Extra:     map[string]any{"from": firstNonEmpty(ctx.CallerPO, "human"), "to": po.Name(), "role": "user"},
	})

	if e.Metrics != nil {
		e.Metrics.TurnsTotal.Inc()
	}

	for iter := 0; e.Config.MaxTurns <= 0 || iter < e.Config.MaxTurns; iter++ {
		if err := ctx.Ctx.Err(); err != nil {
			return capability.Result{}, poerr.Wrap(poerr.KindCancelled, "turn cancelled for "+po.Name(), err)
		}

		history, err := e.Store.GetMessages(sess.ID)
		if err != nil {
			return capability.Result{}, err
		}
		tools := e.toolDescriptors(po)

		e.publishStatus(sess.ID, po.Name(), "thinking")

		var streamed string
		resp, err := e.callModel(ctx, po, history, tools, func(chunk string) {
			streamed += chunk
			if ctx.OnChunk != nil {
				ctx.OnChunk(chunk)
			}
			e.publish(bus.Event{SessionID: sess.ID, Kind: bus.KindStreamChunk, Content: chunk, Extra: map[string]any{"po": po.Name()}})
		})
		if err != nil {
			// LLMError: abort the turn. No assistant row has been
			// written yet, so the session stays consistent.
			return capability.Result{}, poerr.Wrap(poerr.KindLLM, "llm call failed for "+po.Name(), err)
		}
		e.publish(bus.Event{SessionID: sess.ID, Kind: bus.KindStreamEnd, Extra: map[string]any{"po": po.Name()}})

		if len(resp.ToolCalls) > 0 {
			e.publishStatus(sess.ID, po.Name(), "calling_tool")
		} else {
			e.publishStatus(sess.ID, po.Name(), "idle")
		}

		assistantMsg, err := e.Store.AddMessage(store.Message{
			SessionID: sess.ID,
			Role:      store.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: storeToolCallsFromModel(resp.ToolCalls),
			Usage:     e.usageOf(resp, history),
			Source:    source,
		})
		if err != nil {
			return capability.Result{}, err
		}
		if resp.Content != "" {
			e.publish(bus.Event{
				SessionID: sess.ID, Kind: bus.KindMessage, Content: resp.Content,
				Extra: map[string]any{"from": po.Name(), "to": firstNonEmpty(ctx.CallerPO, "human"), "role": "assistant"},
			})
		}

		if len(resp.ToolCalls) == 0 {
			return capability.TextResult(resp.Content), nil
		}

		results := e.dispatchToolCalls(ctx, po, assistantMsg, resp.ToolCalls)

		if _, err := e.Store.AddMessage(store.Message{
			SessionID:   sess.ID,
			Role:        store.RoleTool,
			ToolResults: results,
			Source:      source,
		}); err != nil {
			return capability.Result{}, err
		}
	}

	return capability.Result{}, poerr.New(poerr.KindLLM, "turn exceeded configured max iterations for "+po.Name())
}

func (e *Engine) callModel(ctx capability.Context, po *PromptObject, history []store.Message, tools []capability.Descriptor, onChunk model.ChunkFunc) (model.Response, error) {
	provider, ok := e.Models.Active()
	if !ok {
		return model.Response{}, poerr.New(poerr.KindLLM, "no active LLM provider configured")
	}
	req := model.Request{
		System:   po.Body(),
		Messages: historyToModel(history),
		Tools:    descriptorsToModelTools(tools),
		OnChunk:  onChunk,
	}
	return provider.Chat(ctx.Ctx, req)
}

// toolDescriptors re-materializes the tool list from the registry on
// every turn from the
// union of the PO's declared capabilities and every registered
// universal, deduplicated.
func (e *Engine) toolDescriptors(po *PromptObject) []capability.Descriptor {
	names := append([]string{}, po.DeclaredCapabilities()...)
	for _, u := range e.Registry.List(capability.KindUniversal) {
		names = append(names, u.Name())
	}
	return e.Registry.Descriptors(names)
}

// resolveSession picks the active session: an explicit ctx.SessionID
// is trusted as already created by the caller (delegation dispatch);
// otherwise the PO's most recent session for this source is reused or
// created.
func (e *Engine) resolveSession(po *PromptObject, ctx capability.Context) (store.Session, string, error) {
	source := ctx.Source
	if ctx.SessionID != "" {
		sess, ok, err := e.Store.GetSession(ctx.SessionID)
		if err != nil {
			return store.Session{}, "", err
		}
		if !ok {
			return store.Session{}, "", poerr.New(poerr.KindNotFound, "session not found: "+ctx.SessionID)
		}
		return sess, source, nil
	}
	sess, err := e.Store.GetOrCreateSession(po.Name(), source)
	return sess, source, err
}

func (e *Engine) publish(ev bus.Event) {
	if e.Bus == nil {
		return
	}
	if err := e.Bus.Publish(ev); err != nil {
		slog.Warn("bus publish failed", "error", err)
	}
}

func (e *Engine) publishStatus(sessionID, poName, status string) {
	e.publish(bus.Event{
		SessionID: sessionID,
		Kind:      bus.KindStatus,
		Content:   status,
		Extra:     map[string]any{"po": poName, "status": status},
	})
}

func firstNonEmpty(ss ...string) string {
	for _, s := range ss {
		if s != "" {
			return s
		}
	}
	return ""
}
