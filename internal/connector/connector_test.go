package connector

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidSource(t *testing.T) {
	for _, s := range []string{SourceTUI, SourceMCP, SourceWeb, SourceAPI} {
		assert.True(t, ValidSource(s))
	}
	assert.False(t, ValidSource("carrier-pigeon"))
	assert.False(t, ValidSource(""))
}

func TestNewEnvelope_RoundTrips(t *testing.T) {
	env := NewEnvelope("po_state", map[string]string{"name": "greeter"})
	data, err := json.Marshal(env)
	require.NoError(t, err)

	var back Envelope
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, "po_state", back.Type)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(back.Payload, &payload))
	assert.Equal(t, "greeter", payload["name"])
}

func TestNewEnvelope_NilPayload(t *testing.T) {
	env := NewEnvelope("stream_end", nil)
	assert.Equal(t, "stream_end", env.Type)
	assert.Nil(t, env.Payload)
}

func TestOutbox_DeliversInOrder(t *testing.T) {
	o := NewOutbox(10)
	o.Push(NewEnvelope("a", nil), "s", false)
	o.Push(NewEnvelope("b", nil), "s", false)
	o.Push(NewEnvelope("c", nil), "s", false)

	for _, want := range []string{"a", "b", "c"} {
		env, ok := o.Next()
		require.True(t, ok)
		assert.Equal(t, want, env.Type)
	}
}

func TestOutbox_DropsOldestDroppableUnderPressure(t *testing.T) {
	o := NewOutbox(2)
	o.Push(NewEnvelope("chunk1", nil), "s", true)
	o.Push(NewEnvelope("chunk2", nil), "s", true)
	o.Push(NewEnvelope("chunk3", nil), "s", true) // evicts chunk1

	env, ok := o.Next()
	require.True(t, ok)
	assert.Equal(t, "chunk2", env.Type)
	assert.Equal(t, 1, o.DroppedChunks("s"))
	assert.Equal(t, 0, o.DroppedChunks("s")) // read resets
}

func TestOutbox_GuaranteedFramesNeverDrop(t *testing.T) {
	o := NewOutbox(2)
	o.Push(NewEnvelope("notification1", nil), "s", false)
	o.Push(NewEnvelope("notification2", nil), "s", false)
	o.Push(NewEnvelope("notification3", nil), "s", false)
	o.Push(NewEnvelope("chunk", nil), "s", true) // queue full of guaranteed frames; chunk is dropped

	var types []string
	for i := 0; i < 3; i++ {
		env, ok := o.Next()
		require.True(t, ok)
		types = append(types, env.Type)
	}
	assert.Equal(t, []string{"notification1", "notification2", "notification3"}, types)
	assert.Equal(t, 1, o.DroppedChunks("s"))
}

func TestOutbox_CloseUnblocksNext(t *testing.T) {
	o := NewOutbox(4)
	done := make(chan bool, 1)
	go func() {
		_, ok := o.Next()
		done <- ok
	}()
	o.Close()
	assert.False(t, <-done)
}
