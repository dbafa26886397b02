package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/promptobjects/core/internal/capability"
	"github.com/promptobjects/core/internal/connector"
	"github.com/promptobjects/core/internal/loader"
	"github.com/promptobjects/core/internal/store"
)

// poBacking is the slice of a prompt-object capability the read
// surface needs; satisfied structurally by the engine's PromptObject.
type poBacking interface {
	capability.Capability
	Frontmatter() loader.Frontmatter
	Body() string
	Path() string
}

// poState is the full state of one PO as reported over REST and in the
// WS po_state envelope.
type poState struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Capabilities []string `json:"capabilities"`
	Body         string   `json:"body,omitempty"`
	Path         string   `json:"path,omitempty"`
	SessionCount int      `json:"session_count"`
}

func (s *Server) stateOf(c capability.Capability, includeBody bool) poState {
	st := poState{Name: c.Name(), Description: c.Description()}
	if po, ok := c.(poBacking); ok {
		fm := po.Frontmatter()
		st.Capabilities = fm.Capabilities
		if includeBody {
			st.Body = po.Body()
			st.Path = po.Path()
		}
	}
	if sessions, err := s.env.Store.ListSessions(c.Name(), ""); err == nil {
		st.SessionCount = len(sessions)
	}
	return st
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

func (s *Server) handleEnvironmentInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.env.Info())
}

func (s *Server) handleListPOs(w http.ResponseWriter, r *http.Request) {
	pos := s.env.Registry.List(capability.KindPromptObj)
	out := make([]poState, 0, len(pos))
	for _, c := range pos {
		out = append(out, s.stateOf(c, false))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetPO(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	c, ok := s.env.Registry.Get(name)
	if !ok || c.Kind() != capability.KindPromptObj {
		writeError(w, http.StatusNotFound, "prompt object not found: "+name)
		return
	}
	writeJSON(w, http.StatusOK, s.stateOf(c, true))
}

func (s *Server) handleListPOSessions(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !s.env.Registry.Has(name) {
		writeError(w, http.StatusNotFound, "prompt object not found: "+name)
		return
	}
	sessions, err := s.env.Store.ListSessions(name, r.URL.Query().Get("source"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

// sessionWithMessages is the GET /api/sessions/{id} response body.
type sessionWithMessages struct {
	Session  store.Session   `json:"session"`
	Messages []store.Message `json:"messages"`
}

// handleEventsSince is the reconnect catch-up query: everything a
// client missed while disconnected, optionally scoped to one session.
func (s *Server) handleEventsSince(w http.ResponseWriter, r *http.Request) {
	since := time.Time{}
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC 3339: "+err.Error())
			return
		}
		since = parsed
	}
	events, err := connector.Catchup(s.env.Store, s.env.Bus, r.URL.Query().Get("session_id"), since)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleUsageRollups(w http.ResponseWriter, r *http.Request) {
	totals, computedAt := s.cfg.Rollups.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"computed_at": computedAt,
		"roots":       totals,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, ok, err := s.env.Store.GetSession(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "session not found: "+id)
		return
	}
	msgs, err := s.env.Store.GetMessages(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sessionWithMessages{Session: sess, Messages: msgs})
}
