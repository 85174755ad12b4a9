package persistence

import (
	"context"
	"database/sql"
	"fmt"
)

const schema = `
	CREATE TABLE IF NOT EXISTS messages (
		random_id INTEGER PRIMARY KEY,
		local_id INTEGER NOT NULL,
		server_id INTEGER NOT NULL DEFAULT 0,
		dialog_id INTEGER NOT NULL,
		peer_kind INTEGER NOT NULL,
		peer_id INTEGER NOT NULL,
		peer_access_hash INTEGER NOT NULL DEFAULT 0,
		group_id INTEGER NOT NULL DEFAULT 0,
		body TEXT NOT NULL DEFAULT '',
		entities_json TEXT,
		reply_to INTEGER NOT NULL DEFAULT 0,
		silent INTEGER NOT NULL DEFAULT 0,
		schedule_at INTEGER NOT NULL DEFAULT 0,
		media_kind TEXT NOT NULL DEFAULT 'text',
		media_json TEXT,
		attach_path TEXT,
		state INTEGER NOT NULL,
		acked INTEGER NOT NULL DEFAULT 0,
		unread INTEGER NOT NULL DEFAULT 0,
		remote_json TEXT,
		at INTEGER NOT NULL DEFAULT 0,
		error_text TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_messages_dialog_local
		ON messages(dialog_id, local_id);
	CREATE INDEX IF NOT EXISTS idx_messages_dialog_server
		ON messages(dialog_id, server_id);
	CREATE INDEX IF NOT EXISTS idx_messages_errored
		ON messages(dialog_id, group_id, state);

	CREATE TABLE IF NOT EXISTS dialogs (
		dialog_id INTEGER PRIMARY KEY,
		peer_kind INTEGER NOT NULL,
		peer_id INTEGER NOT NULL,
		peer_access_hash INTEGER NOT NULL DEFAULT 0,
		title TEXT NOT NULL DEFAULT '',
		read_outbox_max INTEGER NOT NULL DEFAULT 0,
		last_sent_by_me_at INTEGER,
		updated_at INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS sent_files (
		file_key TEXT PRIMARY KEY,
		path TEXT NOT NULL,
		remote_json TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
`

// schemaVersion is stored in PRAGMA user_version.
const schemaVersion = 1

func migrate(ctx context.Context, db *sql.DB) error {
	var current int
	if err := db.QueryRowContext(ctx, `PRAGMA user_version;`).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if current > schemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported %d", current, schemaVersion)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	if current != schemaVersion {
		if _, err := db.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d;`, schemaVersion)); err != nil {
			return fmt.Errorf("write schema version: %w", err)
		}
	}
	return nil
}
