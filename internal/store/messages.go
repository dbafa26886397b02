package store

import (
	"database/sql"
	"time"

	"github.com/promptobjects/core/internal/poerr"
)

const messageColumns = `id, session_id, role, content, from_po, tool_calls_json, tool_results_json, usage_json, source, created_at`

// AddMessage appends a message to a session's log and updates the
// session's updated_at/last_message_source.
func (s *Store) AddMessage(msg Message) (Message, error) {
	if msg.ID == "" {
		msg.ID = newID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return Message{}, poerr.Wrap(poerr.KindStore, "adding message", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO messages (`+messageColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.SessionID, string(msg.Role), msg.Content, msg.FromPO,
		marshalJSON(msg.ToolCalls), marshalJSON(msg.ToolResults), marshalJSON(msg.Usage),
		msg.Source, msg.CreatedAt,
	)
	if err != nil {
		return Message{}, poerr.Wrap(poerr.KindStore, "inserting message", err)
	}

	lastSource := msg.Source
	if lastSource == "" {
		lastSource = string(msg.Role)
	}
	if err := s.touchSession(tx, msg.SessionID, lastSource, msg.CreatedAt); err != nil {
		return Message{}, poerr.Wrap(poerr.KindStore, "touching session", err)
	}

	if err := tx.Commit(); err != nil {
		return Message{}, poerr.Wrap(poerr.KindStore, "committing message", err)
	}
	return msg, nil
}

func scanMessage(row interface{ Scan(...any) error }) (Message, error) {
	var m Message
	var role, toolCallsJSON, toolResultsJSON, usageJSON string
	if err := row.Scan(&m.ID, &m.SessionID, &role, &m.Content, &m.FromPO, &toolCallsJSON, &toolResultsJSON, &usageJSON, &m.Source, &m.CreatedAt); err != nil {
		return Message{}, err
	}
	m.Role = Role(role)
	unmarshalJSON(toolCallsJSON, &m.ToolCalls)
	unmarshalJSON(toolResultsJSON, &m.ToolResults)
	unmarshalJSON(usageJSON, &m.Usage)
	return m, nil
}

// GetMessages returns a session's messages in chronological order.
func (s *Store) GetMessages(sessionID string) ([]Message, error) {
	rows, err := s.db.Query(`SELECT `+messageColumns+` FROM messages WHERE session_id = ? ORDER BY created_at ASC, rowid ASC`, sessionID)
	if err != nil {
		return nil, poerr.Wrap(poerr.KindStore, "getting messages", err)
	}
	defer rows.Close()
	var out []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, poerr.Wrap(poerr.KindStore, "scanning message", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ClearMessages deletes all messages for a session without deleting the
// session itself.
func (s *Store) ClearMessages(sessionID string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.db.Exec(`DELETE FROM messages WHERE session_id = ?`, sessionID); err != nil {
		return poerr.Wrap(poerr.KindStore, "clearing messages", err)
	}
	return nil
}

// CountMessages returns the number of messages in a session.
func (s *Store) CountMessages(sessionID string) (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM messages WHERE session_id = ?`, sessionID).Scan(&n); err != nil {
		return 0, poerr.Wrap(poerr.KindStore, "counting messages", err)
	}
	return n, nil
}

// LastMessage returns the most recent message in a session, if any.
func (s *Store) LastMessage(sessionID string) (Message, bool, error) {
	row := s.db.QueryRow(`SELECT `+messageColumns+` FROM messages WHERE session_id = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`, sessionID)
	m, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return Message{}, false, nil
	}
	if err != nil {
		return Message{}, false, poerr.Wrap(poerr.KindStore, "getting last message", err)
	}
	return m, true, nil
}
