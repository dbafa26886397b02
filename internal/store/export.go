package store

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/promptobjects/core/internal/poerr"
)

// toolResultMaxLen caps rendered tool results: anything longer is
// truncated in exports, never in storage.
const toolResultMaxLen = 10_000

const truncationMarker = "... (truncated)"

func truncateForExport(s string) string {
	if len(s) <= toolResultMaxLen {
		return s
	}
	return s[:toolResultMaxLen] + truncationMarker
}

// SessionExport is the JSON shape of export_session_json.
type SessionExport struct {
	Session  Session   `json:"session"`
	Messages []Message `json:"messages"`
}

// ExportSessionJSON renders a session and its full, untruncated message
// history as JSON — the round-trip input for ImportSession.
func (s *Store) ExportSessionJSON(sessionID string) (SessionExport, error) {
	sess, ok, err := s.GetSession(sessionID)
	if err != nil {
		return SessionExport{}, err
	}
	if !ok {
		return SessionExport{}, poerr.New(poerr.KindNotFound, "session not found: "+sessionID)
	}
	messages, err := s.GetMessages(sessionID)
	if err != nil {
		return SessionExport{}, err
	}
	return SessionExport{Session: sess, Messages: messages}, nil
}

// ImportSession creates a fresh session (new ID, same po_name/source)
// and replays messages into it in order, preserving content, roles,
// and tool call/result linkage — the export/import round trip.
func (s *Store) ImportSession(export SessionExport) (Session, error) {
	created, err := s.CreateSession(Session{
		PONname:         export.Session.PONname,
		Name:            export.Session.Name,
		Source:          export.Session.Source,
		ParentSessionID: export.Session.ParentSessionID,
		ParentPO:        export.Session.ParentPO,
		ParentMessageID: export.Session.ParentMessageID,
		ThreadType:      export.Session.ThreadType,
		Metadata:        export.Session.Metadata,
	})
	if err != nil {
		return Session{}, err
	}
	for _, m := range export.Messages {
		m.ID = ""
		m.SessionID = created.ID
		if _, err := s.AddMessage(m); err != nil {
			return Session{}, err
		}
	}
	return created, nil
}

// ExportSessionMarkdown renders one session's messages as markdown,
// truncating long tool results.
func (s *Store) ExportSessionMarkdown(sessionID string) (string, error) {
	sess, ok, err := s.GetSession(sessionID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", poerr.New(poerr.KindNotFound, "session not found: "+sessionID)
	}
	messages, err := s.GetMessages(sessionID)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	renderSessionMarkdown(&b, sess, messages)
	return b.String(), nil
}

func renderSessionMarkdown(b *strings.Builder, sess Session, messages []Message) {
	fmt.Fprintf(b, "# Session %s (%s)\n\n", sess.ID, sess.PONname)
	for _, m := range messages {
		switch m.Role {
		case RoleUser:
			who := "user"
			if m.FromPO != "" {
				who = m.FromPO
			}
			fmt.Fprintf(b, "**%s:** %s\n\n", who, m.Content)
		case RoleAssistant:
			if m.Content != "" {
				fmt.Fprintf(b, "**%s:** %s\n\n", sess.PONname, m.Content)
			}
			for _, tc := range m.ToolCalls {
				args, _ := json.Marshal(tc.Arguments)
				fmt.Fprintf(b, "> call `%s`(%s)\n\n", tc.Name, string(args))
			}
		case RoleTool:
			for _, tr := range m.ToolResults {
				fmt.Fprintf(b, "> result `%s`: %s\n\n", tr.Name, truncateForExport(tr.Content))
			}
		}
	}
}

// ExportThreadTreeMarkdown renders a full delegation tree as markdown.
// The testable layout contract: a delegation child's
// rendered section appears between its parent's tool_call line and the
// parent's tool_result line for the same call, never appended at the
// end.
func (s *Store) ExportThreadTreeMarkdown(sessionID string) (string, error) {
	tree, err := s.GetThreadTree(sessionID)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	renderThreadTreeMarkdown(&b, tree, 0)
	return b.String(), nil
}

func renderThreadTreeMarkdown(b *strings.Builder, node *ThreadNode, depth int) {
	indent := strings.Repeat("  ", depth)
	fmt.Fprintf(b, "%s## %s (%s)\n\n", indent, node.Session.PONname, node.Session.ID)

	// Index children by the id of the assistant message whose tool call
	// spawned them, so the call/child-tree/result ordering can be
	// reconstructed in one pass.
	childByParentMessage := map[string][]*ThreadNode{}
	for _, child := range node.Children {
		childByParentMessage[child.Session.ParentMessageID] = append(childByParentMessage[child.Session.ParentMessageID], child)
	}

	for _, m := range node.Messages {
		switch m.Role {
		case RoleUser:
			who := "user"
			if m.FromPO != "" {
				who = m.FromPO
			}
			fmt.Fprintf(b, "%s**%s:** %s\n\n", indent, who, m.Content)
		case RoleAssistant:
			if m.Content != "" {
				fmt.Fprintf(b, "%s**%s:** %s\n\n", indent, node.Session.PONname, m.Content)
			}
			for _, tc := range m.ToolCalls {
				args, _ := json.Marshal(tc.Arguments)
				fmt.Fprintf(b, "%s> call `%s`(%s)\n\n", indent, tc.Name, string(args))
				for _, child := range childByParentMessage[m.ID] {
					renderThreadTreeMarkdown(b, child, depth+1)
				}
			}
		case RoleTool:
			for _, tr := range m.ToolResults {
				fmt.Fprintf(b, "%s> result `%s`: %s\n\n", indent, tr.Name, truncateForExport(tr.Content))
			}
		}
	}
}

// ThreadTreeExport is the JSON shape of export_thread_tree_json.
type ThreadTreeExport struct {
	Session  Session            `json:"session"`
	Messages []Message          `json:"messages"`
	Children []ThreadTreeExport `json:"children,omitempty"`
}

// ExportThreadTreeJSON renders a session's full delegation tree as a
// nested JSON structure.
func (s *Store) ExportThreadTreeJSON(sessionID string) (ThreadTreeExport, error) {
	tree, err := s.GetThreadTree(sessionID)
	if err != nil {
		return ThreadTreeExport{}, err
	}
	return toThreadTreeExport(tree), nil
}

func toThreadTreeExport(node *ThreadNode) ThreadTreeExport {
	out := ThreadTreeExport{Session: node.Session, Messages: node.Messages}
	for _, child := range node.Children {
		out.Children = append(out.Children, toThreadTreeExport(child))
	}
	return out
}
