package engine

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptobjects/core/internal/bus"
	"github.com/promptobjects/core/internal/capability"
	"github.com/promptobjects/core/internal/humanqueue"
	"github.com/promptobjects/core/internal/loader"
	"github.com/promptobjects/core/internal/metrics"
	"github.com/promptobjects/core/internal/model"
	"github.com/promptobjects/core/internal/primitive"
	"github.com/promptobjects/core/internal/registry"
	"github.com/promptobjects/core/internal/store"
)

// stubProvider is a scripted model.Provider: each call to Chat pops the
// next queued response, so a test can script a multi-turn conversation
// (e.g. one turn that calls a tool, a second that returns final text).
type stubProvider struct {
	name      string
	responses []model.Response
	calls     []model.Request
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Chat(ctx context.Context, req model.Request) (model.Response, error) {
	p.calls = append(p.calls, req)
	if len(p.responses) == 0 {
		return model.Response{}, nil
	}
	resp := p.responses[0]
	p.responses = p.responses[1:]
	if req.OnChunk != nil && resp.Content != "" {
		req.OnChunk(resp.Content)
	}
	return resp, nil
}

func newTestEngine(t *testing.T, provider model.Provider) (*Engine, *registry.Registry) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	b := bus.New(st, 50)
	reg := registry.New()
	q := humanqueue.New()
	models := model.NewRegistry()
	models.Register(provider.Name(), provider)
	m := metrics.New()

	return New(reg, st, b, q, models, m, Config{MaxTurns: 10}), reg
}

func mustRegisterPO(t *testing.T, e *Engine, reg *registry.Registry, name, description, body string) *PromptObject {
	t.Helper()
	file := &loader.PromptObjectFile{
		Frontmatter: loader.Frontmatter{Name: name, Description: description},
		Body:        body,
		Path:        name + ".md",
	}
	cap, err := e.NewPromptObject(file)
	require.NoError(t, err)
	require.NoError(t, reg.Register(cap))
	po, ok := cap.(*PromptObject)
	require.True(t, ok)
	return po
}

func TestRunTurn_NoToolsReturnsFinalText(t *testing.T) {
	provider := &stubProvider{
		name: "stub",
		responses: []model.Response{
			{Content: "hello there!"},
		},
	}
	e, reg := newTestEngine(t, provider)
	po := mustRegisterPO(t, e, reg, "greeter", "says hello", "You are a friendly greeter.")

	var streamed string
	ctx := capability.Context{
		Ctx:    context.Background(),
		Source: "tui",
		OnChunk: func(chunk string) {
			streamed += chunk
		},
	}

	res, err := e.RunTurn(po, ctx, capability.NewTextMessage("hi"))
	require.NoError(t, err)
	assert.Equal(t, "hello there!", res.Content)
	assert.Equal(t, "hello there!", streamed)

	sess, err := e.Store.GetOrCreateSession("greeter", "tui")
	require.NoError(t, err)
	msgs, err := e.Store.GetMessages(sess.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, store.RoleUser, msgs[0].Role)
	assert.Equal(t, "hi", msgs[0].Content)
	assert.Equal(t, store.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "hello there!", msgs[1].Content)
}

func TestRunTurn_DispatchesToolCallThenReturnsFinalText(t *testing.T) {
	provider := &stubProvider{
		name: "stub",
		responses: []model.Response{
			{
				Content: "",
				ToolCalls: []model.ToolCall{
					{ID: "call_1", Name: "echo", Arguments: map[string]any{"message": "ping"}},
				},
			},
			{Content: "the tool said: ping"},
		},
	}
	e, reg := newTestEngine(t, provider)

	echo := primitive.New("echo", "echoes the message", capability.Parameters{
		"type":       "object",
		"properties": map[string]any{"message": map[string]any{"type": "string"}},
	}, func(ctx context.Context, message string, extra map[string]any) (any, error) {
		return message, nil
	})
	require.NoError(t, reg.Register(echo))

	po := mustRegisterPO(t, e, reg, "coordinator", "delegates to echo", "You may call the echo tool.")
	po.frontmatter.Capabilities = []string{"echo"}

	ctx := capability.Context{Ctx: context.Background(), Source: "tui"}
	res, err := e.RunTurn(po, ctx, capability.NewTextMessage("say ping"))
	require.NoError(t, err)
	assert.Equal(t, "the tool said: ping", res.Content)

	sess, err := e.Store.GetOrCreateSession("coordinator", "tui")
	require.NoError(t, err)
	msgs, err := e.Store.GetMessages(sess.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 4) // user, assistant(tool_call), tool(result), assistant(final)
	assert.Equal(t, store.RoleTool, msgs[2].Role)
	require.Len(t, msgs[2].ToolResults, 1)
	assert.Equal(t, "ping", msgs[2].ToolResults[0].Content)

	calls := provider.calls
	require.Len(t, calls, 2)
	require.Len(t, calls[1].Messages, 3) // user + assistant(tool_call) + tool(result)
}

func TestRunTurn_DelegatesToChildPOAndCreatesLinkedSession(t *testing.T) {
	// A single active provider serves every PO in the environment (the
	// runtime has one active LLM at a time, switchable via switch_llm);
	// the delegated child turn and the resuming parent turn each consume
	// the next queued response in call order.
	provider := &stubProvider{
		name: "stub",
		responses: []model.Response{
			{
				ToolCalls: []model.ToolCall{
					{ID: "call_1", Name: "reader", Arguments: map[string]any{"message": "go read it"}},
				},
			},
			{Content: "done reading"},              // reader's (child) turn
			{Content: "reader said: done reading"}, // coordinator's resumed turn
		},
	}
	e, reg := newTestEngine(t, provider)

	coordinator := mustRegisterPO(t, e, reg, "coordinator", "delegates to reader", "You delegate reading tasks.")
	coordinator.frontmatter.Capabilities = []string{"reader"}
	_ = mustRegisterPO(t, e, reg, "reader", "reads things", "You read things and report back.")

	ctx := capability.Context{Ctx: context.Background(), Source: "tui"}
	res, err := e.RunTurn(coordinator, ctx, capability.NewTextMessage("please read this"))
	require.NoError(t, err)
	assert.Equal(t, "reader said: done reading", res.Content)

	rootSess, err := e.Store.GetOrCreateSession("coordinator", "tui")
	require.NoError(t, err)
	children, err := e.Store.GetChildThreads(rootSess.ID)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "reader", children[0].PONname)
	assert.Equal(t, store.ThreadDelegation, children[0].ThreadType)
	assert.Equal(t, rootSess.ID, children[0].ParentSessionID)
	assert.Equal(t, "coordinator", children[0].ParentPO)

	childMsgs, err := e.Store.GetMessages(children[0].ID)
	require.NoError(t, err)
	require.Len(t, childMsgs, 2)
	assert.Equal(t, "go read it", childMsgs[0].Content)
	assert.Equal(t, "coordinator", childMsgs[0].FromPO)

	root, err := e.Store.ResolveRootThread(children[0].ID)
	require.NoError(t, err)
	assert.Equal(t, rootSess.ID, root)
}

func TestRunTurn_UnknownCapabilityProducesToolResultInsteadOfAborting(t *testing.T) {
	provider := &stubProvider{
		name: "stub",
		responses: []model.Response{
			{ToolCalls: []model.ToolCall{{ID: "call_1", Name: "does_not_exist", Arguments: map[string]any{}}}},
			{Content: "ok, handled the missing tool"},
		},
	}
	e, reg := newTestEngine(t, provider)
	po := mustRegisterPO(t, e, reg, "greeter", "says hello", "You are a friendly greeter.")

	ctx := capability.Context{Ctx: context.Background(), Source: "tui"}
	res, err := e.RunTurn(po, ctx, capability.NewTextMessage("hi"))
	require.NoError(t, err)
	assert.Equal(t, "ok, handled the missing tool", res.Content)
}

func TestRunTurn_CancelledContextAbortsBeforeNextIteration(t *testing.T) {
	provider := &stubProvider{
		name: "stub",
		responses: []model.Response{
			{Content: "first"},
		},
	}
	e, reg := newTestEngine(t, provider)
	po := mustRegisterPO(t, e, reg, "greeter", "says hello", "You are a friendly greeter.")

	cancelledCtx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.RunTurn(po, capability.Context{Ctx: cancelledCtx, Source: "tui"}, capability.NewTextMessage("hi"))
	require.Error(t, err)
}

func TestRunTurn_SchemaViolationBecomesToolResult(t *testing.T) {
	provider := &stubProvider{
		name: "stub",
		responses: []model.Response{
			{ToolCalls: []model.ToolCall{{ID: "call_1", Name: "strict", Arguments: map[string]any{"count": "not a number"}}}},
			{Content: "recovered"},
		},
	}
	e, reg := newTestEngine(t, provider)

	strict := primitive.New("strict", "wants an integer", capability.Parameters{
		"type":       "object",
		"properties": map[string]any{"count": map[string]any{"type": "integer"}},
		"required":   []string{"count"},
	}, func(ctx context.Context, message string, extra map[string]any) (any, error) {
		t.Fatal("primitive must not run on schema violation")
		return nil, nil
	})
	require.NoError(t, reg.Register(strict))

	po := mustRegisterPO(t, e, reg, "caller", "calls strict", "You call tools.")
	po.frontmatter.Capabilities = []string{"strict"}

	res, err := e.RunTurn(po, capability.Context{Ctx: context.Background(), Source: "tui"}, capability.NewTextMessage("go"))
	require.NoError(t, err)
	assert.Equal(t, "recovered", res.Content)

	sess, err := e.Store.GetOrCreateSession("caller", "tui")
	require.NoError(t, err)
	msgs, err := e.Store.GetMessages(sess.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	require.Len(t, msgs[2].ToolResults, 1)
	assert.Contains(t, msgs[2].ToolResults[0].Content, "schema")
}
