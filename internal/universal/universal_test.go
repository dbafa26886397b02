package universal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptobjects/core/internal/bus"
	"github.com/promptobjects/core/internal/capability"
	"github.com/promptobjects/core/internal/humanqueue"
	"github.com/promptobjects/core/internal/registry"
	"github.com/promptobjects/core/internal/store"
)

func newTestDeps(t *testing.T) *Deps {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	deps := &Deps{
		Registry:      registry.New(),
		Store:         st,
		Queue:         humanqueue.New(),
		Bus:           bus.New(st, 50),
		ObjectsDir:    filepath.Join(t.TempDir(), "objects"),
		PrimitivesDir: filepath.Join(t.TempDir(), "primitives"),
	}
	require.NoError(t, Register(deps))
	return deps
}

func invoke(t *testing.T, deps *Deps, name string, ctx capability.Context, extra map[string]any) capability.Result {
	t.Helper()
	c, ok := deps.Registry.Get(name)
	require.True(t, ok, "universal %q not registered", name)
	res, err := c.Receive(ctx, capability.Message{Extra: extra})
	require.NoError(t, err)
	return res
}

func TestRegister_RegistersAllUniversals(t *testing.T) {
	deps := newTestDeps(t)
	names := []string{
		"ask_human", "think", "modify_prompt", "create_capability",
		"add_capability", "remove_capability", "list_capabilities",
		"create_primitive", "modify_primitive", "delete_primitive",
		"verify_primitive", "list_primitives",
		"store_env_data", "update_env_data", "delete_env_data",
		"get_env_data", "list_env_data",
	}
	for _, n := range names {
		c, ok := deps.Registry.Get(n)
		require.True(t, ok, "missing universal %q", n)
		assert.Equal(t, capability.KindUniversal, c.Kind())
	}
}

func TestThink_EchoesThought(t *testing.T) {
	deps := newTestDeps(t)
	res := invoke(t, deps, "think", capability.Context{}, map[string]any{"thought": "step one: look around"})
	assert.Equal(t, "step one: look around", res.Content)
	assert.False(t, res.IsError)
}

func TestEnvData_StoreGetListDelete(t *testing.T) {
	deps := newTestDeps(t)
	root, err := deps.Store.CreateSession(store.Session{PONname: "coordinator"})
	require.NoError(t, err)
	ctx := capability.Context{SessionID: root.ID, RootThreadID: root.ID, CallerPO: "coordinator"}

	res := invoke(t, deps, "store_env_data", ctx, map[string]any{
		"key": "finding", "short_description": "what we learned", "value": map[string]any{"n": 1},
	})
	assert.False(t, res.IsError)

	res = invoke(t, deps, "get_env_data", ctx, map[string]any{"key": "finding"})
	assert.False(t, res.IsError)
	assert.Contains(t, res.Content, `"n":1`)

	res = invoke(t, deps, "list_env_data", ctx, nil)
	assert.Contains(t, res.Content, "finding")
	assert.Contains(t, res.Content, "what we learned")

	res = invoke(t, deps, "update_env_data", ctx, map[string]any{"key": "absent", "value": "x"})
	assert.True(t, res.IsError)

	res = invoke(t, deps, "delete_env_data", ctx, map[string]any{"key": "finding"})
	assert.False(t, res.IsError)
	res = invoke(t, deps, "get_env_data", ctx, map[string]any{"key": "finding"})
	assert.True(t, res.IsError)
}

func TestEnvData_PublishesChangeEvents(t *testing.T) {
	deps := newTestDeps(t)
	root, err := deps.Store.CreateSession(store.Session{PONname: "writer"})
	require.NoError(t, err)
	ctx := capability.Context{SessionID: root.ID, RootThreadID: root.ID, CallerPO: "writer"}

	got := make(chan bus.Event, 4)
	deps.Bus.Subscribe(root.ID, func(e bus.Event) {
		if e.Kind == bus.KindEnvDataChange {
			got <- e
		}
	})

	invoke(t, deps, "store_env_data", ctx, map[string]any{"key": "k", "value": "v"})

	select {
	case e := <-got:
		assert.Equal(t, "store", e.Extra["op"])
		assert.Equal(t, "k", e.Extra["key"])
	case <-time.After(2 * time.Second):
		t.Fatal("no env_data_change event observed")
	}
}

func TestAskHuman_SuspendsUntilResponse(t *testing.T) {
	deps := newTestDeps(t)
	ctx := capability.Context{Ctx: context.Background(), SessionID: "s1", CallerPO: "asker"}

	resCh := make(chan capability.Result, 1)
	go func() {
		res := invoke(t, deps, "ask_human", ctx, map[string]any{"question": "Proceed?", "options": []string{"yes", "no"}})
		resCh <- res
	}()

	var pending []humanqueue.Request
	require.Eventually(t, func() bool {
		pending = deps.Queue.Pending("")
		return len(pending) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "Proceed?", pending[0].Question)

	require.NoError(t, deps.Queue.Respond(pending[0].ID, "yes"))

	select {
	case res := <-resCh:
		assert.Equal(t, "yes", res.Content)
		assert.False(t, res.IsError)
	case <-time.After(2 * time.Second):
		t.Fatal("turn did not resume after respond")
	}
}

func TestAskHuman_CancelledContextProducesCancellationResult(t *testing.T) {
	deps := newTestDeps(t)
	cctx, cancel := context.WithCancel(context.Background())
	ctx := capability.Context{Ctx: cctx, SessionID: "s1", CallerPO: "asker"}

	resCh := make(chan capability.Result, 1)
	go func() {
		res := invoke(t, deps, "ask_human", ctx, map[string]any{"question": "Stuck?"})
		resCh <- res
	}()

	require.Eventually(t, func() bool { return len(deps.Queue.Pending("")) == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case res := <-resCh:
		assert.True(t, res.IsError)
	case <-time.After(2 * time.Second):
		t.Fatal("turn did not resume after cancellation")
	}
}

func TestVerifyPrimitive_ReportsMissing(t *testing.T) {
	deps := newTestDeps(t)
	res := invoke(t, deps, "verify_primitive", capability.Context{}, map[string]any{"name": "ghost", "input": "x"})
	assert.True(t, res.IsError)
	assert.Contains(t, res.Content, "ghost")
}
