package maintenance

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptobjects/core/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRefresh_RollsUpPerRoot(t *testing.T) {
	s := newTestStore(t)
	root, err := s.CreateSession(store.Session{PONname: "coordinator"})
	require.NoError(t, err)
	child, err := s.CreateSession(store.Session{PONname: "reader", ParentSessionID: root.ID, ThreadType: store.ThreadDelegation})
	require.NoError(t, err)
	other, err := s.CreateSession(store.Session{PONname: "greeter"})
	require.NoError(t, err)

	_, err = s.AddMessage(store.Message{SessionID: root.ID, Role: store.RoleAssistant, Usage: &store.Usage{InputTokens: 5, Model: "m"}})
	require.NoError(t, err)
	_, err = s.AddMessage(store.Message{SessionID: child.ID, Role: store.RoleAssistant, Usage: &store.Usage{InputTokens: 7, Model: "m"}})
	require.NoError(t, err)
	_, err = s.AddMessage(store.Message{SessionID: other.ID, Role: store.RoleAssistant, Usage: &store.Usage{InputTokens: 1, Model: "m"}})
	require.NoError(t, err)

	r, err := New(s, "@every 1h")
	require.NoError(t, err)
	r.Refresh()

	totals, computedAt := r.Snapshot()
	assert.False(t, computedAt.IsZero())
	require.Contains(t, totals, root.ID)
	require.Contains(t, totals, other.ID)
	// The child is folded into its root, not listed on its own.
	assert.NotContains(t, totals, child.ID)
	assert.Equal(t, 12, totals[root.ID].InputTokens)
	assert.Equal(t, 1, totals[other.ID].InputTokens)
}

func TestNew_RejectsBadSchedule(t *testing.T) {
	s := newTestStore(t)
	_, err := New(s, "not a schedule")
	require.Error(t, err)
}
