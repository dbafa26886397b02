package store

import (
	"database/sql"
	"time"

	"github.com/promptobjects/core/internal/poerr"
)

// CreateSession inserts a new session. If sess.ID is empty, one is
// generated. The thread-edge invariant is enforced here: a
// non-empty ParentSessionID requires a non-root ThreadType and the
// parent must already exist.
func (s *Store) CreateSession(sess Session) (Session, error) {
	if sess.ID == "" {
		sess.ID = newID()
	}
	if sess.ThreadType == "" {
		sess.ThreadType = ThreadRoot
	}
	if sess.ParentSessionID != "" && sess.ThreadType == ThreadRoot {
		return Session{}, poerr.New(poerr.KindInvalidInput, "session with a parent cannot be thread_type root")
	}
	now := time.Now()
	sess.CreatedAt, sess.UpdatedAt = now, now

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if sess.ParentSessionID != "" {
		var exists int
		if err := s.db.QueryRow(`SELECT 1 FROM sessions WHERE id = ?`, sess.ParentSessionID).Scan(&exists); err != nil {
			if err == sql.ErrNoRows {
				return Session{}, poerr.New(poerr.KindInvalidInput, "parent_session_id does not exist: "+sess.ParentSessionID)
			}
			return Session{}, poerr.Wrap(poerr.KindStore, "checking parent session", err)
		}
	}

	_, err := s.db.Exec(
		`INSERT INTO sessions (id, po_name, name, source, last_message_source, parent_session_id, parent_po, parent_message_id, thread_type, metadata_json, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.PONname, sess.Name, sess.Source, sess.LastMessageSource,
		sess.ParentSessionID, sess.ParentPO, sess.ParentMessageID, string(sess.ThreadType),
		marshalJSON(sess.Metadata), sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		return Session{}, poerr.Wrap(poerr.KindStore, "creating session", err)
	}
	return sess, nil
}

func scanSession(row interface{ Scan(...any) error }) (Session, error) {
	var sess Session
	var threadType, metaJSON string
	if err := row.Scan(
		&sess.ID, &sess.PONname, &sess.Name, &sess.Source, &sess.LastMessageSource,
		&sess.ParentSessionID, &sess.ParentPO, &sess.ParentMessageID, &threadType,
		&metaJSON, &sess.CreatedAt, &sess.UpdatedAt,
	); err != nil {
		return Session{}, err
	}
	sess.ThreadType = ThreadType(threadType)
	unmarshalJSON(metaJSON, &sess.Metadata)
	return sess, nil
}

const sessionColumns = `id, po_name, name, source, last_message_source, parent_session_id, parent_po, parent_message_id, thread_type, metadata_json, created_at, updated_at`

// GetSession fetches a session by ID, (Session{}, false) if absent.
func (s *Store) GetSession(id string) (Session, bool, error) {
	row := s.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, poerr.Wrap(poerr.KindStore, "getting session", err)
	}
	return sess, true, nil
}

// GetOrCreateSession returns the most recently updated session for
// poName (optionally filtered by source), creating one if none exists.
// This is the lazy-creation path the PO engine uses at the top of a turn.
func (s *Store) GetOrCreateSession(poName, source string) (Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE po_name = ? AND parent_session_id = ''`
	args := []any{poName}
	if source != "" {
		query += ` AND source = ?`
		args = append(args, source)
	}
	query += ` ORDER BY updated_at DESC LIMIT 1`

	row := s.db.QueryRow(query, args...)
	sess, err := scanSession(row)
	if err == nil {
		return sess, nil
	}
	if err != sql.ErrNoRows {
		return Session{}, poerr.Wrap(poerr.KindStore, "looking up session", err)
	}
	return s.CreateSession(Session{PONname: poName, Source: source, ThreadType: ThreadRoot})
}

// UpdateSessionFields is a sparse field update; fields the caller
// leaves nil are left alone.
type UpdateSessionFields struct {
	Name              *string
	LastMessageSource *string
	Metadata          map[string]any
}

// UpdateSession applies fields to the session and bumps updated_at.
func (s *Store) UpdateSession(id string, fields UpdateSessionFields) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if fields.Name != nil {
		if _, err := s.db.Exec(`UPDATE sessions SET name = ?, updated_at = ? WHERE id = ?`, *fields.Name, time.Now(), id); err != nil {
			return poerr.Wrap(poerr.KindStore, "updating session name", err)
		}
	}
	if fields.LastMessageSource != nil {
		if _, err := s.db.Exec(`UPDATE sessions SET last_message_source = ?, updated_at = ? WHERE id = ?`, *fields.LastMessageSource, time.Now(), id); err != nil {
			return poerr.Wrap(poerr.KindStore, "updating session last_message_source", err)
		}
	}
	if fields.Metadata != nil {
		if _, err := s.db.Exec(`UPDATE sessions SET metadata_json = ?, updated_at = ? WHERE id = ?`, marshalJSON(fields.Metadata), time.Now(), id); err != nil {
			return poerr.Wrap(poerr.KindStore, "updating session metadata", err)
		}
	}
	return nil
}

func (s *Store) touchSession(tx *sql.Tx, id string, lastMessageSource string, at time.Time) error {
	_, err := tx.Exec(`UPDATE sessions SET updated_at = ?, last_message_source = ? WHERE id = ?`, at, lastMessageSource, id)
	return err
}

// DeleteSession removes a session, cascading its messages and (if it is
// a root thread) the env data scoped to it.
func (s *Store) DeleteSession(id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return poerr.Wrap(poerr.KindStore, "deleting session", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM messages WHERE session_id = ?`, id); err != nil {
		return poerr.Wrap(poerr.KindStore, "deleting session messages", err)
	}
	if _, err := tx.Exec(`DELETE FROM events WHERE session_id = ?`, id); err != nil {
		return poerr.Wrap(poerr.KindStore, "deleting session events", err)
	}
	if _, err := tx.Exec(`DELETE FROM env_data WHERE root_thread_id = ?`, id); err != nil {
		return poerr.Wrap(poerr.KindStore, "deleting session env data", err)
	}
	if _, err := tx.Exec(`DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return poerr.Wrap(poerr.KindStore, "deleting session", err)
	}
	return tx.Commit()
}

// ListSessions lists sessions for a PO and/or source (either filter may
// be empty to mean "any"), newest first.
func (s *Store) ListSessions(poName, source string) ([]Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE 1=1`
	var args []any
	if poName != "" {
		query += ` AND po_name = ?`
		args = append(args, poName)
	}
	if source != "" {
		query += ` AND source = ?`
		args = append(args, source)
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, poerr.Wrap(poerr.KindStore, "listing sessions", err)
	}
	defer rows.Close()
	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, poerr.Wrap(poerr.KindStore, "scanning session", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// ListAllSessions lists every session, optionally filtered by source.
func (s *Store) ListAllSessions(source string) ([]Session, error) {
	return s.ListSessions("", source)
}

// CountSessions returns the total number of sessions.
func (s *Store) CountSessions() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&n); err != nil {
		return 0, poerr.Wrap(poerr.KindStore, "counting sessions", err)
	}
	return n, nil
}

// ResolveRootThread walks parent_session_id pointers to the session
// with no parent. The walk is bounded by the (acyclic, by construction)
// delegation tree depth.
func (s *Store) ResolveRootThread(sessionID string) (string, error) {
	current := sessionID
	for i := 0; i < 10_000; i++ {
		sess, ok, err := s.GetSession(current)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", poerr.New(poerr.KindNotFound, "session not found while resolving root: "+current)
		}
		if sess.ParentSessionID == "" {
			return sess.ID, nil
		}
		current = sess.ParentSessionID
	}
	return "", poerr.New(poerr.KindStore, "root thread resolution exceeded depth bound (cycle?)")
}

// GetChildThreads returns the direct delegation children of a session.
func (s *Store) GetChildThreads(sessionID string) ([]Session, error) {
	rows, err := s.db.Query(`SELECT `+sessionColumns+` FROM sessions WHERE parent_session_id = ? ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, poerr.Wrap(poerr.KindStore, "listing child threads", err)
	}
	defer rows.Close()
	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, poerr.Wrap(poerr.KindStore, "scanning child thread", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// GetThreadLineage returns the path from the root thread down to
// sessionID, inclusive, root first.
func (s *Store) GetThreadLineage(sessionID string) ([]Session, error) {
	var chain []Session
	current := sessionID
	for i := 0; i < 10_000; i++ {
		sess, ok, err := s.GetSession(current)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, poerr.New(poerr.KindNotFound, "session not found while building lineage: "+current)
		}
		chain = append(chain, sess)
		if sess.ParentSessionID == "" {
			break
		}
		current = sess.ParentSessionID
	}
	for l, r := 0, len(chain)-1; l < r; l, r = l+1, r-1 {
		chain[l], chain[r] = chain[r], chain[l]
	}
	return chain, nil
}

// GetThreadTree recursively builds the delegation tree rooted at
// sessionID, including each node's messages.
func (s *Store) GetThreadTree(sessionID string) (*ThreadNode, error) {
	sess, ok, err := s.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, poerr.New(poerr.KindNotFound, "session not found: "+sessionID)
	}
	node := &ThreadNode{Session: sess}
	node.Messages, err = s.GetMessages(sessionID)
	if err != nil {
		return nil, err
	}
	children, err := s.GetChildThreads(sessionID)
	if err != nil {
		return nil, err
	}
	for _, child := range children {
		childNode, err := s.GetThreadTree(child.ID)
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, childNode)
	}
	return node, nil
}
