package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "sessions.db")
	s, err := Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_MigratesToCurrentVersion(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "sessions.db")
	s, err := Open(dsn)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, currentSchemaVersion(), s.SchemaVersion())

	// Reopening is a no-op.
	s2, err := Open(dsn)
	require.NoError(t, err)
	defer s2.Close()
	assert.Equal(t, currentSchemaVersion(), s2.SchemaVersion())
}

func TestCreateSession_RequiresExistingParent(t *testing.T) {
	s := newTestStore(t)

	_, err := s.CreateSession(Session{PONname: "coordinator", ParentSessionID: "missing", ThreadType: ThreadDelegation})
	require.Error(t, err)

	root, err := s.CreateSession(Session{PONname: "coordinator", ThreadType: ThreadRoot})
	require.NoError(t, err)

	child, err := s.CreateSession(Session{PONname: "reader", ParentSessionID: root.ID, ParentPO: "coordinator", ThreadType: ThreadDelegation})
	require.NoError(t, err)
	assert.Equal(t, root.ID, child.ParentSessionID)
}

func TestResolveRootThread_WalksToRoot(t *testing.T) {
	s := newTestStore(t)

	root, err := s.CreateSession(Session{PONname: "coordinator"})
	require.NoError(t, err)
	mid, err := s.CreateSession(Session{PONname: "reader", ParentSessionID: root.ID, ThreadType: ThreadDelegation})
	require.NoError(t, err)
	leaf, err := s.CreateSession(Session{PONname: "fetcher", ParentSessionID: mid.ID, ThreadType: ThreadDelegation})
	require.NoError(t, err)

	got, err := s.ResolveRootThread(leaf.ID)
	require.NoError(t, err)
	assert.Equal(t, root.ID, got)

	got, err = s.ResolveRootThread(root.ID)
	require.NoError(t, err)
	assert.Equal(t, root.ID, got)
}

func TestAddMessage_UpdatesSessionTimestamp(t *testing.T) {
	s := newTestStore(t)
	sess, err := s.CreateSession(Session{PONname: "greeter"})
	require.NoError(t, err)

	_, err = s.AddMessage(Message{SessionID: sess.ID, Role: RoleUser, Content: "hey there"})
	require.NoError(t, err)

	updated, ok, err := s.GetSession(sess.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, !updated.UpdatedAt.Before(sess.CreatedAt))

	msgs, err := s.GetMessages(sess.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hey there", msgs[0].Content)
}

func TestGetOrCreateSession_ReusesExisting(t *testing.T) {
	s := newTestStore(t)
	first, err := s.GetOrCreateSession("greeter", "tui")
	require.NoError(t, err)
	second, err := s.GetOrCreateSession("greeter", "tui")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	other, err := s.GetOrCreateSession("greeter", "mcp")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestEnvData_ScopedByRootThreadAndLastWriteWins(t *testing.T) {
	s := newTestStore(t)
	root, err := s.CreateSession(Session{PONname: "coordinator"})
	require.NoError(t, err)

	require.NoError(t, s.StoreEnvData(EnvDataEntry{RootThreadID: root.ID, Key: "finding", ShortDescription: "v1", Value: "a", StoredBy: "reader"}))
	require.NoError(t, s.StoreEnvData(EnvDataEntry{RootThreadID: root.ID, Key: "finding", ShortDescription: "v2", Value: "b", StoredBy: "fetcher"}))

	entry, ok, err := s.GetEnvData(root.ID, "finding")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v2", entry.ShortDescription)
	assert.Equal(t, "b", entry.Value)
	assert.Equal(t, "fetcher", entry.StoredBy)

	list, err := s.ListEnvData(root.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Nil(t, list[0].Value) // listings omit value

	other, err := s.CreateSession(Session{PONname: "other-root"})
	require.NoError(t, err)
	otherList, err := s.ListEnvData(other.ID)
	require.NoError(t, err)
	assert.Empty(t, otherList)
}

func TestUpdateEnvData_FailsOnAbsentKey(t *testing.T) {
	s := newTestStore(t)
	root, err := s.CreateSession(Session{PONname: "coordinator"})
	require.NoError(t, err)

	ok, err := s.UpdateEnvData(root.ID, "missing", "x", 1, "reader")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSearchSessions_EmptyQueryReturnsEmpty(t *testing.T) {
	s := newTestStore(t)
	sess, err := s.CreateSession(Session{PONname: "greeter"})
	require.NoError(t, err)
	_, err = s.AddMessage(Message{SessionID: sess.ID, Role: RoleUser, Content: "find the needle in here"})
	require.NoError(t, err)

	results, err := s.SearchSessions("", "")
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = s.SearchSessions("needle", "")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, sess.ID, results[0].Session.ID)
}

func TestSessionUsage_SumsMatchPerModelBreakdown(t *testing.T) {
	s := newTestStore(t)
	sess, err := s.CreateSession(Session{PONname: "greeter"})
	require.NoError(t, err)

	_, err = s.AddMessage(Message{SessionID: sess.ID, Role: RoleAssistant, Content: "hi", Usage: &Usage{InputTokens: 10, OutputTokens: 5, Model: "claude"}})
	require.NoError(t, err)
	_, err = s.AddMessage(Message{SessionID: sess.ID, Role: RoleAssistant, Content: "there", Usage: &Usage{InputTokens: 3, OutputTokens: 2, Model: "gpt"}})
	require.NoError(t, err)

	totals, err := s.SessionUsage(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 13, totals.InputTokens)
	assert.Equal(t, 7, totals.OutputTokens)

	var sumIn, sumOut int
	for _, v := range totals.ByModel {
		sumIn += v.InputTokens
		sumOut += v.OutputTokens
	}
	assert.Equal(t, totals.InputTokens, sumIn)
	assert.Equal(t, totals.OutputTokens, sumOut)
}

func TestThreadTreeUsage_RecursesChildren(t *testing.T) {
	s := newTestStore(t)
	root, err := s.CreateSession(Session{PONname: "coordinator"})
	require.NoError(t, err)
	child, err := s.CreateSession(Session{PONname: "reader", ParentSessionID: root.ID, ThreadType: ThreadDelegation})
	require.NoError(t, err)

	_, err = s.AddMessage(Message{SessionID: root.ID, Role: RoleAssistant, Usage: &Usage{InputTokens: 1, Model: "m"}})
	require.NoError(t, err)
	_, err = s.AddMessage(Message{SessionID: child.ID, Role: RoleAssistant, Usage: &Usage{InputTokens: 2, Model: "m"}})
	require.NoError(t, err)

	totals, err := s.ThreadTreeUsage(root.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, totals.InputTokens)
}

func TestExportImportSession_RoundTrips(t *testing.T) {
	s := newTestStore(t)
	sess, err := s.CreateSession(Session{PONname: "greeter"})
	require.NoError(t, err)
	_, err = s.AddMessage(Message{SessionID: sess.ID, Role: RoleUser, Content: "hey"})
	require.NoError(t, err)
	_, err = s.AddMessage(Message{SessionID: sess.ID, Role: RoleAssistant, Content: "hello!"})
	require.NoError(t, err)

	export, err := s.ExportSessionJSON(sess.ID)
	require.NoError(t, err)

	imported, err := s.ImportSession(export)
	require.NoError(t, err)
	assert.NotEqual(t, sess.ID, imported.ID)

	msgs, err := s.GetMessages(imported.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Equal(t, "hey", msgs[0].Content)
	assert.Equal(t, RoleAssistant, msgs[1].Role)
	assert.Equal(t, "hello!", msgs[1].Content)
}

func TestExportThreadTreeMarkdown_ChildBetweenCallAndResult(t *testing.T) {
	s := newTestStore(t)
	root, err := s.CreateSession(Session{PONname: "coordinator"})
	require.NoError(t, err)

	assistantMsg, err := s.AddMessage(Message{
		SessionID: root.ID,
		Role:      RoleAssistant,
		ToolCalls: []ToolCall{{ID: "call_1", Name: "reader", Arguments: map[string]any{"message": "go"}}},
	})
	require.NoError(t, err)

	child, err := s.CreateSession(Session{PONname: "reader", ParentSessionID: root.ID, ParentPO: "coordinator", ParentMessageID: assistantMsg.ID, ThreadType: ThreadDelegation})
	require.NoError(t, err)
	_, err = s.AddMessage(Message{SessionID: child.ID, Role: RoleUser, Content: "go", FromPO: "coordinator"})
	require.NoError(t, err)
	_, err = s.AddMessage(Message{SessionID: child.ID, Role: RoleAssistant, Content: "done reading"})
	require.NoError(t, err)

	_, err = s.AddMessage(Message{
		SessionID:   root.ID,
		Role:        RoleTool,
		ToolResults: []ToolResult{{ToolCallID: "call_1", Name: "reader", Content: "done reading"}},
	})
	require.NoError(t, err)

	md, err := s.ExportThreadTreeMarkdown(root.ID)
	require.NoError(t, err)

	callIdx := indexOf(md, "call `reader`")
	childIdx := indexOf(md, "## reader")
	resultIdx := indexOf(md, "result `reader`")
	require.True(t, callIdx >= 0 && childIdx >= 0 && resultIdx >= 0)
	assert.True(t, callIdx < childIdx && childIdx < resultIdx, "expected call < child section < result, got %d %d %d", callIdx, childIdx, resultIdx)
}

func TestExportThreadTreeMarkdown_TruncatesLongToolResults(t *testing.T) {
	s := newTestStore(t)
	sess, err := s.CreateSession(Session{PONname: "greeter"})
	require.NoError(t, err)
	long := make([]byte, toolResultMaxLen+500)
	for i := range long {
		long[i] = 'x'
	}
	_, err = s.AddMessage(Message{SessionID: sess.ID, Role: RoleTool, ToolResults: []ToolResult{{ToolCallID: "c", Name: "read_file", Content: string(long)}}})
	require.NoError(t, err)

	md, err := s.ExportThreadTreeMarkdown(sess.ID)
	require.NoError(t, err)
	assert.Contains(t, md, truncationMarker)
	assert.NotContains(t, md, string(long))
}

func TestDeleteSession_CascadesMessagesAndEnvData(t *testing.T) {
	s := newTestStore(t)
	sess, err := s.CreateSession(Session{PONname: "greeter"})
	require.NoError(t, err)
	_, err = s.AddMessage(Message{SessionID: sess.ID, Role: RoleUser, Content: "hi"})
	require.NoError(t, err)
	require.NoError(t, s.StoreEnvData(EnvDataEntry{RootThreadID: sess.ID, Key: "k", Value: 1}))

	require.NoError(t, s.DeleteSession(sess.ID))

	_, ok, err := s.GetSession(sess.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	msgs, err := s.GetMessages(sess.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	list, err := s.ListEnvData(sess.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
