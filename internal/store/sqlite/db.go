package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/arborlabs/arbor/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	message_id TEXT NOT NULL,
	channel_id TEXT NOT NULL,
	guild_id TEXT,
	user_id TEXT NOT NULL,
	content TEXT NOT NULL,
	is_assistant INTEGER NOT NULL DEFAULT 0,
	persona_name TEXT,
	emotion TEXT,
	created_at TIMESTAMP NOT NULL,
	UNIQUE(channel_id, message_id)
);
CREATE INDEX IF NOT EXISTS idx_messages_channel_created ON messages(channel_id, created_at);

CREATE TABLE IF NOT EXISTS chat_summaries (
	id TEXT PRIMARY KEY,
	channel_id TEXT NOT NULL,
	start_ts TIMESTAMP NOT NULL,
	end_ts TIMESTAMP NOT NULL,
	summary TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_summaries_channel_end ON chat_summaries(channel_id, end_ts);

CREATE TABLE IF NOT EXISTS channel_activation (
	guild_id TEXT NOT NULL,
	channel_id TEXT NOT NULL,
	activated_by TEXT NOT NULL,
	activated_at TIMESTAMP NOT NULL,
	PRIMARY KEY (guild_id, channel_id)
);

CREATE TABLE IF NOT EXISTS channel_settings (
	channel_id TEXT PRIMARY KEY,
	context_window INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS interaction_logs (
	id TEXT PRIMARY KEY,
	requested_at TIMESTAMP NOT NULL,
	received_at TIMESTAMP NOT NULL,
	model TEXT NOT NULL,
	request TEXT NOT NULL,
	response TEXT,
	status_code INTEGER NOT NULL,
	tags TEXT,
	user_id TEXT,
	guild_id TEXT
);
`

// OpenDB opens (creating if needed) the SQLite database at path and applies
// the schema. Use ":memory:" for tests.
func OpenDB(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		path = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc sqlite handles are not safe for concurrent writes over
	// multiple connections; a single connection serializes them.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return db, nil
}

// NewStores creates all stores backed by SQLite (standalone mode).
func NewStores(path string) (*store.Stores, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	s := &store.Stores{
		Messages:     NewMessageStore(db),
		Summaries:    NewSummaryStore(db),
		Activation:   NewActivationStore(db),
		Settings:     NewSettingsStore(db),
		Interactions: NewInteractionStore(db),
	}
	return s.WithCloser(db.Close), nil
}
