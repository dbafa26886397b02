package engine

import (
	"context"
	"encoding/json"

	"github.com/promptobjects/core/internal/bus"
	"github.com/promptobjects/core/internal/capability"
	"github.com/promptobjects/core/internal/model"
	"github.com/promptobjects/core/internal/poerr"
	"github.com/promptobjects/core/internal/primitive"
	"github.com/promptobjects/core/internal/store"
	"github.com/promptobjects/core/internal/tracing"
)

// dispatchToolCalls runs the tool-dispatch step of a turn: every call
// strictly in emission order, and every call — resolved or not,
// cancelled or not — produces exactly one ToolResult, so the
// session-consistency invariant (assistant row with tool_calls always
// followed by a matching tool row) holds even under cancellation.
func (e *Engine) dispatchToolCalls(ctx capability.Context, po *PromptObject, assistantMsg store.Message, calls []model.ToolCall) []store.ToolResult {
	results := make([]store.ToolResult, 0, len(calls))
	for _, call := range calls {
		results = append(results, e.dispatchOne(ctx, po, assistantMsg, call))
	}
	return results
}

func (e *Engine) dispatchOne(ctx capability.Context, po *PromptObject, assistantMsg store.Message, call model.ToolCall) store.ToolResult {
	if err := ctx.Ctx.Err(); err != nil {
		return store.ToolResult{ToolCallID: call.ID, Name: call.Name, Content: "cancelled: " + err.Error()}
	}

	argsJSON, _ := json.Marshal(call.Arguments)
	e.publish(bus.Event{
		SessionID: ctx.SessionID, Kind: bus.KindToolCall, Content: string(argsJSON),
		Extra: map[string]any{"from": po.Name(), "to": call.Name, "tool_call_id": call.ID},
	})

	target, ok := e.Registry.Get(call.Name)
	if !ok {
		content := "unknown capability: " + call.Name
		e.publishToolResult(ctx.SessionID, call.Name, po.Name(), call.ID, content)
		return store.ToolResult{ToolCallID: call.ID, Name: call.Name, Content: content}
	}

	msg := toolCallMessage(call.Arguments)

	dispatchCtx, span := tracing.StartToolDispatch(ctx.Ctx, call.Name, string(target.Kind()))
	defer span.End()

	var res capability.Result
	var err error
	switch target.Kind() {
	case capability.KindPromptObj:
		res, err = e.dispatchDelegation(ctx, dispatchCtx, po, assistantMsg, call, target)
	case capability.KindPrimitive:
		if verr := primitive.ValidateArgs(target.Parameters(), call.Arguments); verr != nil {
			content := verr.Error()
			e.publishToolResult(ctx.SessionID, call.Name, po.Name(), call.ID, content)
			return store.ToolResult{ToolCallID: call.ID, Name: call.Name, Content: content}
		}
		sub := ctx
		sub.Ctx = dispatchCtx
		sub.CallerPO = po.Name()
		res, err = target.Receive(sub, msg)
	default:
		sub := ctx
		sub.Ctx = dispatchCtx
		sub.CallerPO = po.Name()
		res, err = target.Receive(sub, msg)
	}

	if e.Metrics != nil {
		e.Metrics.ToolCallsTotal.WithLabelValues(call.Name).Inc()
	}

	content := res.Content
	if err != nil {
		pe := poerr.Wrap(poerr.KindCapability, "capability "+call.Name+" failed", err)
		content = pe.Error()
	}

	e.publishToolResult(ctx.SessionID, call.Name, po.Name(), call.ID, content)
	return store.ToolResult{ToolCallID: call.ID, Name: call.Name, Content: content}
}

func (e *Engine) publishToolResult(sessionID, capName, callerName, toolCallID, content string) {
	e.publish(bus.Event{
		SessionID: sessionID, Kind: bus.KindToolResult, Content: content,
		Extra: map[string]any{"from": capName, "to": callerName, "tool_call_id": toolCallID},
	})
}

// dispatchDelegation hands one tool call to another PO: a fresh child session is
// created, linked to the caller's session and the assistant message
// that emitted the tool call, and the target PO runs its own full turn
// loop inside it before its final text comes back as this call's
// result.
func (e *Engine) dispatchDelegation(ctx capability.Context, dispatchCtx context.Context, po *PromptObject, assistantMsg store.Message, call model.ToolCall, target capability.Capability) (capability.Result, error) {
	childSession, err := e.Store.CreateSession(store.Session{
		PONname:         call.Name,
		Source:          ctx.Source,
		ParentSessionID: ctx.SessionID,
		ParentPO:        po.Name(),
		ParentMessageID: assistantMsg.ID,
		ThreadType:      store.ThreadDelegation,
	})
	if err != nil {
		return capability.Result{}, err
	}

	if e.Metrics != nil {
		e.Metrics.DelegationsTotal.Inc()
	}

	childCtx := capability.Context{
		Ctx:          dispatchCtx,
		SessionID:    childSession.ID,
		CallerPO:     po.Name(),
		RootThreadID: ctx.RootThreadID,
		Source:       ctx.Source,
	}
	return target.Receive(childCtx, toolCallMessage(call.Arguments))
}
