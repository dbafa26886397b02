package store

import (
	"strings"

	"github.com/promptobjects/core/internal/poerr"
)

// SearchResult is one session matched by SearchSessions, ranked by FTS
// relevance (best first).
type SearchResult struct {
	Session Session
	Snippet string
}

// SearchSessions full-text searches message content across sessions,
// optionally filtered by source. An empty or all-whitespace query
// returns no results rather than erroring or matching everything.
func (s *Store) SearchSessions(query, source string) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	matchQuery := buildMatchQuery(query)

	sqlQuery := `
		SELECT ` + prefixColumns("sessions.", sessionColumns) + `, snippet(messages_fts, 0, '[', ']', '...', 10)
		FROM messages_fts
		JOIN messages ON messages.rowid = messages_fts.rowid
		JOIN sessions ON sessions.id = messages.session_id
		WHERE messages_fts MATCH ?`
	args := []any{matchQuery}
	if source != "" {
		sqlQuery += ` AND sessions.source = ?`
		args = append(args, source)
	}
	sqlQuery += ` ORDER BY messages_fts.rank ASC`

	rows, err := s.db.Query(sqlQuery, args...)
	if err != nil {
		return nil, poerr.Wrap(poerr.KindStore, "searching sessions", err)
	}
	defer rows.Close()

	// Rows are one per matching message, best first; keep each
	// session's first (best-ranked) row.
	var out []SearchResult
	seen := map[string]bool{}
	for rows.Next() {
		var res SearchResult
		var threadType, metaJSON string
		if err := rows.Scan(
			&res.Session.ID, &res.Session.PONname, &res.Session.Name, &res.Session.Source, &res.Session.LastMessageSource,
			&res.Session.ParentSessionID, &res.Session.ParentPO, &res.Session.ParentMessageID, &threadType,
			&metaJSON, &res.Session.CreatedAt, &res.Session.UpdatedAt, &res.Snippet,
		); err != nil {
			return nil, poerr.Wrap(poerr.KindStore, "scanning search result", err)
		}
		res.Session.ThreadType = ThreadType(threadType)
		unmarshalJSON(metaJSON, &res.Session.Metadata)
		if seen[res.Session.ID] {
			continue
		}
		seen[res.Session.ID] = true
		out = append(out, res)
	}
	return out, rows.Err()
}

// buildMatchQuery turns free text into an FTS5 MATCH expression: each
// token is quoted (so punctuation in user text can't break the query
// grammar) and the tokens are implicitly ANDed, with the final token
// treated as a prefix so partial words still match while typing.
func buildMatchQuery(query string) string {
	fields := strings.Fields(query)
	quoted := make([]string, len(fields))
	for i, f := range fields {
		escaped := strings.ReplaceAll(f, `"`, `""`)
		quoted[i] = `"` + escaped + `"`
		if i == len(fields)-1 {
			quoted[i] += "*"
		}
	}
	return strings.Join(quoted, " ")
}

func prefixColumns(prefix, columns string) string {
	parts := strings.Split(columns, ", ")
	for i, p := range parts {
		parts[i] = prefix + p
	}
	return strings.Join(parts, ", ")
}
