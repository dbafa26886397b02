package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptobjects/core/internal/bus"
	"github.com/promptobjects/core/internal/environment"
	"github.com/promptobjects/core/internal/store"
)

func newTestServer(t *testing.T) (*Server, *environment.Environment) {
	t.Helper()
	dir := t.TempDir()
	objectsDir := filepath.Join(dir, "objects")
	require.NoError(t, os.MkdirAll(objectsDir, 0755))
	po := "---\nname: greeter\ndescription: greets people\ncapabilities:\n  - read_file\n---\nYou greet people.\n"
	require.NoError(t, os.WriteFile(filepath.Join(objectsDir, "greeter.md"), []byte(po), 0644))

	env, err := environment.New(context.Background(), environment.Config{Dir: dir})
	require.NoError(t, err)
	t.Cleanup(func() { env.Close(context.Background()) })

	srv, err := New(env, Config{Addr: ":0"})
	require.NoError(t, err)
	return srv, env
}

func getJSON(t *testing.T, ts *httptest.Server, path string, dst any) *http.Response {
	t.Helper()
	resp, err := ts.Client().Get(ts.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if dst != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
	}
	return resp
}

func TestREST_EnvironmentInfo(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	var info environment.Info
	resp := getJSON(t, ts, "/api/environment", &info)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, info.PromptObjects, "greeter")
	assert.Contains(t, info.Primitives, "read_file")
}

func TestREST_ListAndGetPO(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	var list []poState
	resp := getJSON(t, ts, "/api/pos", &list)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, list, 1)
	assert.Equal(t, "greeter", list[0].Name)
	assert.Empty(t, list[0].Body) // listing omits the body

	var detail poState
	resp = getJSON(t, ts, "/api/pos/greeter", &detail)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"read_file"}, detail.Capabilities)
	assert.Contains(t, detail.Body, "You greet people.")

	resp = getJSON(t, ts, "/api/pos/ghost", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestREST_SessionsForPO(t *testing.T) {
	srv, env := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	sess, err := env.Store.CreateSession(store.Session{PONname: "greeter", Source: "web"})
	require.NoError(t, err)
	_, err = env.Store.AddMessage(store.Message{SessionID: sess.ID, Role: store.RoleUser, Content: "hi"})
	require.NoError(t, err)

	var sessions []store.Session
	resp := getJSON(t, ts, "/api/pos/greeter/sessions", &sessions)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, sessions, 1)
	assert.Equal(t, sess.ID, sessions[0].ID)

	var got sessionWithMessages
	resp = getJSON(t, ts, "/api/sessions/"+sess.ID, &got)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "hi", got.Messages[0].Content)

	resp = getJSON(t, ts, "/api/sessions/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestREST_MetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestEnvelopeFor_MapsKindsToVocabulary(t *testing.T) {
	cases := []struct {
		kind      bus.Kind
		wantType  string
		droppable bool
	}{
		{bus.KindStreamChunk, "stream", true},
		{bus.KindStreamEnd, "stream_end", false},
		{bus.KindStatus, "po_state", false},
		{bus.KindNotification, "notification", false},
		{bus.KindNotificationResolved, "notification_resolved", false},
		{bus.KindEnvDataChange, "env_data_change", false},
		{bus.KindMessage, "bus_message", false},
		{bus.KindToolCall, "bus_message", false},
	}
	for _, tc := range cases {
		env, droppable := envelopeFor(bus.Event{Kind: tc.kind, SessionID: "s", Content: "x"})
		assert.Equal(t, tc.wantType, env.Type, "kind %s", tc.kind)
		assert.Equal(t, tc.droppable, droppable, "kind %s", tc.kind)
	}
}

func TestStoreSession_ThreadTypeDefaults(t *testing.T) {
	assert.Equal(t, store.ThreadRoot, storeSession("po", "", "", "").ThreadType)
	assert.Equal(t, store.ThreadFork, storeSession("po", "", "parent", "").ThreadType)
	assert.Equal(t, store.ThreadContinuation, storeSession("po", "", "parent", "continuation").ThreadType)
}

func TestREST_EventsCatchup(t *testing.T) {
	srv, env := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	sess, err := env.Store.CreateSession(store.Session{PONname: "greeter"})
	require.NoError(t, err)
	require.NoError(t, env.Bus.Publish(bus.Event{SessionID: sess.ID, Kind: bus.KindMessage, Content: "hello"}))

	var events []bus.Event
	resp := getJSON(t, ts, "/api/events?session_id="+sess.ID, &events)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, events, 1)
	assert.Equal(t, "hello", events[0].Content)

	resp = getJSON(t, ts, "/api/events?since=not-a-time", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
