package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptobjects/core/internal/capability"
)

type fakeCap struct {
	name string
	kind capability.Kind
}

func (f *fakeCap) Name() string                      { return f.name }
func (f *fakeCap) Description() string               { return "fake " + f.name }
func (f *fakeCap) Parameters() capability.Parameters { return capability.Parameters{"type": "object"} }
func (f *fakeCap) Kind() capability.Kind             { return f.kind }
func (f *fakeCap) Receive(capability.Context, capability.Message) (capability.Result, error) {
	return capability.TextResult("ok"), nil
}

func TestRegister_RejectsCrossKindCollision(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(&fakeCap{name: "x", kind: capability.KindPrimitive}))

	err := r.Register(&fakeCap{name: "x", kind: capability.KindPromptObj})
	require.Error(t, err)

	err = r.Register(&fakeCap{name: "x", kind: capability.KindPrimitive})
	require.Error(t, err)
}

func TestGetHasList(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(&fakeCap{name: "prim", kind: capability.KindPrimitive}))
	require.NoError(t, r.Register(&fakeCap{name: "po", kind: capability.KindPromptObj}))
	require.NoError(t, r.Register(&fakeCap{name: "uni", kind: capability.KindUniversal}))

	got, ok := r.Get("prim")
	require.True(t, ok)
	assert.Equal(t, "prim", got.Name())

	_, ok = r.Get("missing")
	assert.False(t, ok)
	assert.True(t, r.Has("po"))
	assert.False(t, r.Has("missing"))

	prims := r.List(capability.KindPrimitive)
	require.Len(t, prims, 1)
	assert.Equal(t, "prim", prims[0].Name())
}

func TestDescriptors_DedupesAndSkipsUnknown(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(&fakeCap{name: "a", kind: capability.KindPrimitive}))
	require.NoError(t, r.Register(&fakeCap{name: "b", kind: capability.KindPrimitive}))

	descs := r.Descriptors([]string{"a", "b", "a", "ghost"})
	require.Len(t, descs, 2)
	assert.Equal(t, "a", descs[0].Name)
	assert.Equal(t, "b", descs[1].Name)
}

func TestReplacePO_SwapsOnlyPromptObjects(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(&fakeCap{name: "helper", kind: capability.KindPromptObj}))
	require.NoError(t, r.Register(&fakeCap{name: "tool", kind: capability.KindPrimitive}))

	require.NoError(t, r.ReplacePO("helper", &fakeCap{name: "helper", kind: capability.KindPromptObj}))

	err := r.ReplacePO("tool", &fakeCap{name: "tool", kind: capability.KindPromptObj})
	require.Error(t, err)

	err = r.ReplacePO("helper", &fakeCap{name: "helper", kind: capability.KindPrimitive})
	require.Error(t, err)
}

func TestRemove(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(&fakeCap{name: "gone", kind: capability.KindPrimitive}))
	require.NoError(t, r.Remove("gone"))
	assert.False(t, r.Has("gone"))
	require.Error(t, r.Remove("gone"))
}

func TestSnapshot_GroupsByKindSorted(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(&fakeCap{name: "zeta", kind: capability.KindPrimitive}))
	require.NoError(t, r.Register(&fakeCap{name: "alpha", kind: capability.KindPrimitive}))

	snap := r.Snapshot()
	assert.Equal(t, []string{"alpha", "zeta"}, snap[capability.KindPrimitive])
}
