package store

import "github.com/promptobjects/core/internal/poerr"

// SessionUsage sums the usage of every assistant message in a session,
// broken down per model; the sum over ByModel always equals the totals.
func (s *Store) SessionUsage(sessionID string) (UsageTotals, error) {
	rows, err := s.db.Query(
		`SELECT usage_json FROM messages WHERE session_id = ? AND role = 'assistant' AND usage_json != 'null'`, sessionID)
	if err != nil {
		return UsageTotals{}, poerr.Wrap(poerr.KindStore, "computing session usage", err)
	}
	defer rows.Close()

	totals := UsageTotals{ByModel: map[string]UsageTotals{}}
	for rows.Next() {
		var usageJSON string
		if err := rows.Scan(&usageJSON); err != nil {
			return UsageTotals{}, poerr.Wrap(poerr.KindStore, "scanning usage", err)
		}
		var u *Usage
		unmarshalJSON(usageJSON, &u)
		if u == nil {
			continue
		}
		entry := UsageTotals{
			InputTokens:         u.InputTokens,
			OutputTokens:        u.OutputTokens,
			CacheCreationTokens: u.CacheCreationTokens,
			CacheReadTokens:     u.CacheReadTokens,
		}
		totals = totals.Add(UsageTotals{
			InputTokens:         entry.InputTokens,
			OutputTokens:        entry.OutputTokens,
			CacheCreationTokens: entry.CacheCreationTokens,
			CacheReadTokens:     entry.CacheReadTokens,
			ByModel:             map[string]UsageTotals{u.Model: entry},
		})
	}
	return totals, rows.Err()
}

// ThreadTreeUsage recurses SessionUsage across a delegation tree: a
// root's usage plus every descendant's's thread_tree_usage
// invariant.
func (s *Store) ThreadTreeUsage(sessionID string) (UsageTotals, error) {
	totals, err := s.SessionUsage(sessionID)
	if err != nil {
		return UsageTotals{}, err
	}
	children, err := s.GetChildThreads(sessionID)
	if err != nil {
		return UsageTotals{}, err
	}
	for _, child := range children {
		childTotals, err := s.ThreadTreeUsage(child.ID)
		if err != nil {
			return UsageTotals{}, err
		}
		totals = totals.Add(childTotals)
	}
	return totals, nil
}
