package mcpserver

import (
	"github.com/promptobjects/core/internal/capability"
	"github.com/promptobjects/core/internal/loader"
	"github.com/promptobjects/core/internal/store"
)

// poBacking is the slice of a prompt-object capability this transport
// reads; satisfied structurally by the engine's PromptObject.
type poBacking interface {
	capability.Capability
	Frontmatter() loader.Frontmatter
	Body() string
	Path() string
}

// latestConversation returns the messages of poName's most recently
// updated session, oldest first. No session yet means an empty slice,
// not an error.
func (s *Server) latestConversation(poName string) ([]store.Message, error) {
	sessions, err := s.env.Store.ListSessions(poName, "")
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return []store.Message{}, nil
	}
	latest := sessions[0]
	for _, sess := range sessions[1:] {
		if sess.UpdatedAt.After(latest.UpdatedAt) {
			latest = sess
		}
	}
	return s.env.Store.GetMessages(latest.ID)
}
