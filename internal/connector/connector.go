// Package connector is the shared plumbing every front-end transport
// (WebSocket, MCP stdio, REST) builds on: source tagging for the
// sessions a front-end creates, the {type, payload} envelope both
// directions of the WebSocket speak, and the buffered outbound queue
// that keeps a slow client from ever blocking the engine.
package connector

import (
	"encoding/json"
	"time"

	"github.com/promptobjects/core/internal/bus"
	"github.com/promptobjects/core/internal/store"
)

// Source tags identify which front-end created a session.
const (
	SourceTUI = "tui"
	SourceMCP = "mcp"
	SourceWeb = "web"
	SourceAPI = "api"
)

// ValidSource reports whether s is one of the recognized source tags.
func ValidSource(s string) bool {
	switch s {
	case SourceTUI, SourceMCP, SourceWeb, SourceAPI:
		return true
	}
	return false
}

// Envelope is the wire format both directions of the WebSocket use.
// Unknown Types are ignored by clients for forward compatibility.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope marshals payload and wraps it. Marshal failures produce
// an error envelope instead, so a send path never silently loses a
// frame.
func NewEnvelope(typ string, payload any) Envelope {
	if payload == nil {
		return Envelope{Type: typ}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		msg, _ := json.Marshal(map[string]string{"message": "encoding " + typ + " payload: " + err.Error()})
		return Envelope{Type: "error", Payload: msg}
	}
	return Envelope{Type: typ, Payload: data}
}

// Catchup returns the events a reconnecting client missed: the bus's
// in-memory tail for the session when since is recent enough to be
// covered by it, otherwise the store's durable event log from since
// onward.
func Catchup(st *store.Store, b *bus.Bus, sessionID string, since time.Time) ([]bus.Event, error) {
	tail := b.Tail(sessionID)
	if len(tail) > 0 && !tail[0].CreatedAt.After(since) {
		out := make([]bus.Event, 0, len(tail))
		for _, e := range tail {
			if e.CreatedAt.After(since) {
				out = append(out, e)
			}
		}
		return out, nil
	}
	events, err := st.GetEventsSince(since)
	if err != nil {
		return nil, err
	}
	if sessionID == "" {
		return events, nil
	}
	out := events[:0]
	for _, e := range events {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out, nil
}
