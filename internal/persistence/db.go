package persistence

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // register sqlite driver

	"github.com/skobkin/courier/internal/domain"
)

// The writer queue and the sender loop write from different goroutines, so
// a busy database waits instead of failing with SQLITE_BUSY.
var connectionPragmas = []struct {
	name string
	stmt string
}{
	{name: "enable foreign keys", stmt: `PRAGMA foreign_keys = ON;`},
	{name: "set wal mode", stmt: `PRAGMA journal_mode = WAL;`},
	{name: "set busy timeout", stmt: `PRAGMA busy_timeout = 5000;`},
	{name: "set synchronous mode", stmt: `PRAGMA synchronous = NORMAL;`},
}

// InterruptedReason is stored on messages that were still on their way when
// the previous run stopped.
const InterruptedReason = "interrupted before the server confirmed the message"

func Open(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	for _, p := range connectionPragmas {
		if _, err := db.ExecContext(ctx, p.stmt); err != nil {
			_ = db.Close()

			return nil, fmt.Errorf("%s: %w", p.name, err)
		}
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()

		return nil, err
	}
	if err := settleInterrupted(ctx, db); err != nil {
		_ = db.Close()

		return nil, err
	}

	return db, nil
}

// settleInterrupted brings rows left behind by a previous run into a state the
// sender can pick up again. An unconfirmed edit never changed the stored
// content, so it only drops back to sent. Drafts that never reached a server
// answer become errors and can be retried with their original random id.
func settleInterrupted(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin settle tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx,
		`UPDATE messages SET state = ? WHERE state = ?`,
		int(domain.StateSent), int(domain.StateEditing),
	); err != nil {
		return fmt.Errorf("settle interrupted edits: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE messages SET state = ?, error_text = ? WHERE state IN (?, ?, ?)`,
		int(domain.StateError), InterruptedReason,
		int(domain.StateDrafting), int(domain.StateAwaitingMedia), int(domain.StateDispatched),
	); err != nil {
		return fmt.Errorf("settle interrupted sends: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit settle tx: %w", err)
	}
	return nil
}
