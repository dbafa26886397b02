package store

import (
	"database/sql"
	"time"

	"github.com/promptobjects/core/internal/poerr"
)

// StoreEnvData inserts or overwrites a (root_thread_id, key) entry;
// storing the same key twice leaves only the latest write observable.
func (s *Store) StoreEnvData(e EnvDataEntry) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	now := time.Now()
	_, err := s.db.Exec(
		`INSERT INTO env_data (root_thread_id, key, short_description, value_json, stored_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(root_thread_id, key) DO UPDATE SET
			short_description = excluded.short_description,
			value_json = excluded.value_json,
			stored_by = excluded.stored_by,
			updated_at = excluded.updated_at`,
		e.RootThreadID, e.Key, e.ShortDescription, marshalJSON(e.Value), e.StoredBy, now, now,
	)
	if err != nil {
		return poerr.Wrap(poerr.KindStore, "storing env data", err)
	}
	return nil
}

// UpdateEnvData overwrites an existing entry; it returns false without
// writing anything if the key is absent.
func (s *Store) UpdateEnvData(rootThreadID, key string, shortDescription string, value any, storedBy string) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	res, err := s.db.Exec(
		`UPDATE env_data SET short_description = ?, value_json = ?, stored_by = ?, updated_at = ?
		 WHERE root_thread_id = ? AND key = ?`,
		shortDescription, marshalJSON(value), storedBy, time.Now(), rootThreadID, key,
	)
	if err != nil {
		return false, poerr.Wrap(poerr.KindStore, "updating env data", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, poerr.Wrap(poerr.KindStore, "checking env data update", err)
	}
	return n > 0, nil
}

// DeleteEnvData removes an entry; false if it was absent.
func (s *Store) DeleteEnvData(rootThreadID, key string) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	res, err := s.db.Exec(`DELETE FROM env_data WHERE root_thread_id = ? AND key = ?`, rootThreadID, key)
	if err != nil {
		return false, poerr.Wrap(poerr.KindStore, "deleting env data", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, poerr.Wrap(poerr.KindStore, "checking env data delete", err)
	}
	return n > 0, nil
}

func scanEnvData(row interface{ Scan(...any) error }) (EnvDataEntry, error) {
	var e EnvDataEntry
	var valueJSON string
	if err := row.Scan(&e.RootThreadID, &e.Key, &e.ShortDescription, &valueJSON, &e.StoredBy, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return EnvDataEntry{}, err
	}
	unmarshalJSON(valueJSON, &e.Value)
	return e, nil
}

const envDataColumns = `root_thread_id, key, short_description, value_json, stored_by, created_at, updated_at`

// GetEnvData fetches one entry including its value.
func (s *Store) GetEnvData(rootThreadID, key string) (EnvDataEntry, bool, error) {
	row := s.db.QueryRow(`SELECT `+envDataColumns+` FROM env_data WHERE root_thread_id = ? AND key = ?`, rootThreadID, key)
	e, err := scanEnvData(row)
	if err == sql.ErrNoRows {
		return EnvDataEntry{}, false, nil
	}
	if err != nil {
		return EnvDataEntry{}, false, poerr.Wrap(poerr.KindStore, "getting env data", err)
	}
	return e, true, nil
}

// ListEnvData lists every entry for a root thread, without Value:
// listings carry short_description only, so a caller building LLM
// context never pulls full values it didn't ask for.
func (s *Store) ListEnvData(rootThreadID string) ([]EnvDataEntry, error) {
	rows, err := s.db.Query(
		`SELECT root_thread_id, key, short_description, stored_by, created_at, updated_at
		 FROM env_data WHERE root_thread_id = ? ORDER BY key ASC`, rootThreadID)
	if err != nil {
		return nil, poerr.Wrap(poerr.KindStore, "listing env data", err)
	}
	defer rows.Close()
	var out []EnvDataEntry
	for rows.Next() {
		var e EnvDataEntry
		if err := rows.Scan(&e.RootThreadID, &e.Key, &e.ShortDescription, &e.StoredBy, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, poerr.Wrap(poerr.KindStore, "scanning env data listing", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
