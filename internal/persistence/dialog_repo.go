package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/skobkin/courier/internal/domain"
)

type DialogRepo struct {
	db *sql.DB
}

func NewDialogRepo(db *sql.DB) *DialogRepo {
	return &DialogRepo{db: db}
}

// Upsert never moves timestamps or the read marker backwards and keeps a
// known title when the update carries none.
func (r *DialogRepo) Upsert(ctx context.Context, d domain.Dialog) error {
	id := d.ID
	if id == 0 {
		id = d.Peer.DialogID()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO dialogs(dialog_id, peer_kind, peer_id, peer_access_hash, title, read_outbox_max, last_sent_by_me_at, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(dialog_id) DO UPDATE SET
			peer_access_hash = CASE
				WHEN excluded.peer_access_hash != 0 THEN excluded.peer_access_hash
				ELSE dialogs.peer_access_hash
			END,
			title = CASE
				WHEN excluded.title != '' THEN excluded.title
				ELSE dialogs.title
			END,
			read_outbox_max = MAX(dialogs.read_outbox_max, excluded.read_outbox_max),
			last_sent_by_me_at = CASE
				WHEN excluded.last_sent_by_me_at > COALESCE(dialogs.last_sent_by_me_at, 0)
				THEN excluded.last_sent_by_me_at
				ELSE dialogs.last_sent_by_me_at
			END,
			updated_at = CASE
				WHEN excluded.updated_at > dialogs.updated_at THEN excluded.updated_at
				ELSE dialogs.updated_at
			END
	`, id, int(d.Peer.Kind), d.Peer.ID, d.Peer.AccessHash, d.Title, d.ReadOutboxMax,
		toUnixMillis(d.LastSentByMeAt), toUnixMillis(d.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert dialog: %w", err)
	}
	return nil
}

func (r *DialogRepo) SetReadOutboxMax(ctx context.Context, dialogID, maxID int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE dialogs SET read_outbox_max = MAX(read_outbox_max, ?) WHERE dialog_id = ?
	`, maxID, dialogID)
	if err != nil {
		return fmt.Errorf("set read outbox max: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("dialog %d: %w", dialogID, domain.ErrNotFound)
	}
	return nil
}

func (r *DialogRepo) ListSortedByLastSentByMe(ctx context.Context) ([]domain.Dialog, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT dialog_id, peer_kind, peer_id, peer_access_hash, title, read_outbox_max, last_sent_by_me_at, updated_at
		FROM dialogs
		ORDER BY last_sent_by_me_at DESC, updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list dialogs: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Dialog, 0)
	for rows.Next() {
		var (
			d          domain.Dialog
			kind       int
			lastSentMs sql.NullInt64
			updatedMs  int64
		)
		if err := rows.Scan(&d.ID, &kind, &d.Peer.ID, &d.Peer.AccessHash, &d.Title, &d.ReadOutboxMax, &lastSentMs, &updatedMs); err != nil {
			return nil, fmt.Errorf("scan dialog: %w", err)
		}
		d.Peer.Kind = domain.PeerKind(kind)
		if lastSentMs.Valid {
			d.LastSentByMeAt = fromUnixMillis(lastSentMs.Int64)
		}
		d.UpdatedAt = fromUnixMillis(updatedMs)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dialogs: %w", err)
	}
	return out, nil
}
