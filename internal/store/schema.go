package store

// migration is one ordered, idempotent schema step. Open applies every
// migration with Version greater than the stored schema_version in
// order, then records the final version, so future schema changes
// have an explicit ledger to land in rather than ad hoc ALTERs.
type migration struct {
	Version int
	SQL     []string
}

var migrations = []migration{
	{
		Version: 1,
		SQL: []string{
			`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`,
			`CREATE TABLE IF NOT EXISTS sessions (
				id TEXT PRIMARY KEY,
				po_name TEXT NOT NULL,
				name TEXT NOT NULL DEFAULT '',
				source TEXT NOT NULL DEFAULT '',
				last_message_source TEXT NOT NULL DEFAULT '',
				parent_session_id TEXT NOT NULL DEFAULT '',
				parent_po TEXT NOT NULL DEFAULT '',
				parent_message_id TEXT NOT NULL DEFAULT '',
				thread_type TEXT NOT NULL DEFAULT 'root',
				metadata_json TEXT NOT NULL DEFAULT '{}',
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_sessions_po_name ON sessions(po_name)`,
			`CREATE INDEX IF NOT EXISTS idx_sessions_source ON sessions(source)`,
			`CREATE INDEX IF NOT EXISTS idx_sessions_parent ON sessions(parent_session_id)`,
			`CREATE TABLE IF NOT EXISTS messages (
				id TEXT PRIMARY KEY,
				session_id TEXT NOT NULL,
				role TEXT NOT NULL,
				content TEXT NOT NULL DEFAULT '',
				from_po TEXT NOT NULL DEFAULT '',
				tool_calls_json TEXT NOT NULL DEFAULT '[]',
				tool_results_json TEXT NOT NULL DEFAULT '[]',
				usage_json TEXT NOT NULL DEFAULT 'null',
				source TEXT NOT NULL DEFAULT '',
				created_at DATETIME NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at)`,
			`CREATE TABLE IF NOT EXISTS events (
				id TEXT PRIMARY KEY,
				session_id TEXT NOT NULL DEFAULT '',
				from_name TEXT NOT NULL DEFAULT '',
				to_name TEXT NOT NULL DEFAULT '',
				content TEXT NOT NULL DEFAULT '',
				summary TEXT NOT NULL DEFAULT '',
				event_type TEXT NOT NULL DEFAULT '',
				created_at DATETIME NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id, created_at)`,
			`CREATE TABLE IF NOT EXISTS env_data (
				root_thread_id TEXT NOT NULL,
				key TEXT NOT NULL,
				short_description TEXT NOT NULL DEFAULT '',
				value_json TEXT NOT NULL DEFAULT 'null',
				stored_by TEXT NOT NULL DEFAULT '',
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				PRIMARY KEY (root_thread_id, key)
			)`,
			`CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
				content, session_id UNINDEXED, content='messages', content_rowid='rowid'
			)`,
			`CREATE TRIGGER IF NOT EXISTS messages_ai AFTER INSERT ON messages BEGIN
				INSERT INTO messages_fts(rowid, content, session_id) VALUES (new.rowid, new.content, new.session_id);
			END`,
			`CREATE TRIGGER IF NOT EXISTS messages_ad AFTER DELETE ON messages BEGIN
				INSERT INTO messages_fts(messages_fts, rowid, content, session_id) VALUES ('delete', old.rowid, old.content, old.session_id);
			END`,
			`CREATE TRIGGER IF NOT EXISTS messages_au AFTER UPDATE ON messages BEGIN
				INSERT INTO messages_fts(messages_fts, rowid, content, session_id) VALUES ('delete', old.rowid, old.content, old.session_id);
				INSERT INTO messages_fts(rowid, content, session_id) VALUES (new.rowid, new.content, new.session_id);
			END`,
		},
	},
}

func currentSchemaVersion() int {
	v := 0
	for _, m := range migrations {
		if m.Version > v {
			v = m.Version
		}
	}
	return v
}
