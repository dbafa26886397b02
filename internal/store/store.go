// Package store implements the Thread Store: a SQLite-backed,
// WAL-mode persistence layer for sessions, messages, env data, and bus
// events, plus full-text search, exports, and usage aggregation.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/promptobjects/core/internal/bus"
	"github.com/promptobjects/core/internal/poerr"
)

// Store is the Thread Store. Writes serialize through writeMu (SQLite
// allows exactly one writer); Open caps the pool at one connection, so
// reads share that connection too. Open also enables WAL mode.
type Store struct {
	db      *sql.DB
	writeMu sync.Mutex
}

// Open opens (creating if absent) a SQLite database at dsn, enables WAL
// mode, and applies any pending migrations.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, poerr.Wrap(poerr.KindStore, "opening store", err)
	}
	db.SetMaxOpenConns(1) // SQLite: one writer, serialize everything through it.

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, poerr.Wrap(poerr.KindStore, "enabling WAL mode", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		db.Close()
		return nil, poerr.Wrap(poerr.KindStore, "enabling foreign keys", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var version int
	row := s.db.QueryRow(`SELECT version FROM schema_version LIMIT 1`)
	if err := row.Scan(&version); err != nil {
		// Either the table doesn't exist yet (first boot) or there's no
		// row in it; either way we start from version 0.
		version = 0
	}

	for _, m := range migrations {
		if m.Version <= version {
			continue
		}
		tx, err := s.db.Begin()
		if err != nil {
			return poerr.Wrap(poerr.KindStore, "beginning migration", err)
		}
		for _, stmt := range m.SQL {
			if _, err := tx.Exec(stmt); err != nil {
				tx.Rollback()
				return poerr.Wrap(poerr.KindStore, fmt.Sprintf("applying migration %d", m.Version), err)
			}
		}
		if _, err := tx.Exec(`DELETE FROM schema_version`); err != nil {
			tx.Rollback()
			return poerr.Wrap(poerr.KindStore, "clearing schema_version", err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_version(version) VALUES (?)`, m.Version); err != nil {
			tx.Rollback()
			return poerr.Wrap(poerr.KindStore, "recording schema_version", err)
		}
		if err := tx.Commit(); err != nil {
			return poerr.Wrap(poerr.KindStore, "committing migration", err)
		}
		version = m.Version
	}
	return nil
}

// SchemaVersion reports the currently-applied schema version.
func (s *Store) SchemaVersion() int {
	var v int
	_ = s.db.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&v)
	return v
}

func newID() string { return uuid.NewString() }

func marshalJSON(v any) string {
	if v == nil {
		return "null"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

func unmarshalJSON[T any](s string, dst *T) {
	if s == "" {
		return
	}
	_ = json.Unmarshal([]byte(s), dst)
}

// AppendEvent implements bus.Persister, writing a published bus event
// into the events table.
func (s *Store) AppendEvent(sessionID string, e bus.Event) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	id := e.ID
	if id == "" {
		id = newID()
	}
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	from, _ := e.Extra["from"].(string)
	to, _ := e.Extra["to"].(string)
	_, err := s.db.Exec(
		`INSERT INTO events (id, session_id, from_name, to_name, content, summary, event_type, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, sessionID, from, to, e.Content, e.Summary, string(e.Kind), createdAt,
	)
	if err != nil {
		return poerr.Wrap(poerr.KindStore, "appending event", err)
	}
	return nil
}

// GetEventsSince returns every event at or after ts, oldest first — the
// reconnect catch-up query connectors use after a dropped link.
func (s *Store) GetEventsSince(ts time.Time) ([]bus.Event, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, from_name, to_name, content, summary, event_type, created_at
		 FROM events WHERE created_at >= ? ORDER BY created_at ASC`, ts)
	if err != nil {
		return nil, poerr.Wrap(poerr.KindStore, "querying events", err)
	}
	defer rows.Close()

	var out []bus.Event
	for rows.Next() {
		var e bus.Event
		var from, to string
		if err := rows.Scan(&e.ID, &e.SessionID, &from, &to, &e.Content, &e.Summary, &e.Kind, &e.CreatedAt); err != nil {
			return nil, poerr.Wrap(poerr.KindStore, "scanning event", err)
		}
		e.Extra = map[string]any{"from": from, "to": to}
		out = append(out, e)
	}
	return out, rows.Err()
}
