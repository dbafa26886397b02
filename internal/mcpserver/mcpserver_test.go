package mcpserver

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptobjects/core/internal/connector"
	"github.com/promptobjects/core/internal/environment"
	"github.com/promptobjects/core/internal/store"
)

func newTestEnv(t *testing.T) *environment.Environment {
	t.Helper()
	dir := t.TempDir()
	objectsDir := filepath.Join(dir, "objects")
	require.NoError(t, os.MkdirAll(objectsDir, 0755))
	po := "---\nname: greeter\ndescription: greets people\n---\nYou greet people.\n"
	require.NoError(t, os.WriteFile(filepath.Join(objectsDir, "greeter.md"), []byte(po), 0644))

	env, err := environment.New(context.Background(), environment.Config{Dir: dir})
	require.NoError(t, err)
	t.Cleanup(func() { env.Close(context.Background()) })
	return env
}

func TestLatestConversation_PicksMostRecentSession(t *testing.T) {
	env := newTestEnv(t)
	s := New(env, "test")

	older, err := env.Store.CreateSession(store.Session{PONname: "greeter", Source: connector.SourceMCP})
	require.NoError(t, err)
	_, err = env.Store.AddMessage(store.Message{SessionID: older.ID, Role: store.RoleUser, Content: "old"})
	require.NoError(t, err)

	newer, err := env.Store.CreateSession(store.Session{PONname: "greeter", Source: connector.SourceMCP})
	require.NoError(t, err)
	_, err = env.Store.AddMessage(store.Message{SessionID: newer.ID, Role: store.RoleUser, Content: "new"})
	require.NoError(t, err)

	msgs, err := s.latestConversation("greeter")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "new", msgs[0].Content)
}

func TestLatestConversation_NoSessionsIsEmpty(t *testing.T) {
	env := newTestEnv(t)
	s := New(env, "test")

	msgs, err := s.latestConversation("greeter")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}
