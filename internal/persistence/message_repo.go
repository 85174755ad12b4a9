package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/skobkin/courier/internal/domain"
)

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `random_id, local_id, server_id, peer_kind, peer_id, peer_access_hash, group_id,
	body, entities_json, reply_to, silent, schedule_at, media_kind, media_json, attach_path,
	state, acked, unread, remote_json, at, error_text`

// PutMessages inserts or fully replaces rows keyed by random id.
func (r *MessageRepo) PutMessages(ctx context.Context, msgs []domain.OutboundMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin put messages tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, m := range msgs {
		args, err := messageArgs(m)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO messages(dialog_id, `+messageColumns+`)
			VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, append([]any{m.DialogID()}, args...)...); err != nil {
			return fmt.Errorf("put message %d: %w", m.RandomID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit put messages tx: %w", err)
	}
	return nil
}

func (r *MessageRepo) MarkSendError(ctx context.Context, m domain.OutboundMessage) error {
	m.State = domain.StateError
	return r.PutMessages(ctx, []domain.OutboundMessage{m})
}

func (r *MessageRepo) MarkAcked(ctx context.Context, randomID int64) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE messages SET acked = 1 WHERE random_id = ?`, randomID); err != nil {
		return fmt.Errorf("mark message acked: %w", err)
	}
	return nil
}

// UpdateIdentity moves a row from its provisional id to the server id. The
// row is located by random id, old id only guards against a stale update.
func (r *MessageRepo) UpdateIdentity(ctx context.Context, dialogID, randomID, oldID, newID int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE messages
		SET server_id = ?
		WHERE dialog_id = ? AND random_id = ? AND (server_id = ? OR (server_id = 0 AND local_id = ?))
	`, newID, dialogID, randomID, oldID, oldID)
	if err != nil {
		return fmt.Errorf("update message identity: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update message identity %d/%d: %w", dialogID, oldID, domain.ErrNotFound)
	}
	return nil
}

func (r *MessageRepo) DeleteMessages(ctx context.Context, dialogID int64, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete messages tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM messages
			WHERE dialog_id = ? AND (server_id = ? OR (server_id = 0 AND local_id = ?))
		`, dialogID, id, id); err != nil {
			return fmt.Errorf("delete message %d: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete messages tx: %w", err)
	}
	return nil
}

func (r *MessageRepo) LoadMessage(ctx context.Context, ref domain.MessageRef) (domain.OutboundMessage, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE dialog_id = ? AND (server_id = ? OR (server_id = 0 AND local_id = ?))
		LIMIT 1
	`, ref.Dialog, ref.ID, ref.ID)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.OutboundMessage{}, fmt.Errorf("message %s: %w", ref, domain.ErrNotFound)
	}
	return m, err
}

// LoadErrored returns errored members of a group, newest first.
func (r *MessageRepo) LoadErrored(ctx context.Context, dialogID, groupID int64) ([]domain.OutboundMessage, error) {
	return r.query(ctx, "list errored messages", `
		SELECT `+messageColumns+`
		FROM messages
		WHERE dialog_id = ? AND group_id = ? AND state = ?
		ORDER BY local_id ASC
	`, dialogID, groupID, int(domain.StateError))
}

// ListErrored returns every errored message of a dialog, grouped or not,
// newest first.
func (r *MessageRepo) ListErrored(ctx context.Context, dialogID int64) ([]domain.OutboundMessage, error) {
	return r.query(ctx, "list dialog errors", `
		SELECT `+messageColumns+`
		FROM messages
		WHERE dialog_id = ? AND state = ?
		ORDER BY local_id ASC
	`, dialogID, int(domain.StateError))
}

func (r *MessageRepo) query(ctx context.Context, action, q string, args ...any) ([]domain.OutboundMessage, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", action, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []domain.OutboundMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", action, err)
	}
	return out, nil
}

func (r *MessageRepo) ReadOutboxMax(ctx context.Context, dialogID int64) (int64, error) {
	var v int64
	err := r.db.QueryRowContext(ctx, `SELECT read_outbox_max FROM dialogs WHERE dialog_id = ?`, dialogID).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read outbox max: %w", err)
	}
	return v, nil
}

// MinLocalID returns the lowest provisional id ever handed out, or zero.
func (r *MessageRepo) MinLocalID(ctx context.Context) (int64, error) {
	var v int64
	if err := r.db.QueryRowContext(ctx, `SELECT COALESCE(MIN(local_id), 0) FROM messages`).Scan(&v); err != nil {
		return 0, fmt.Errorf("min local id: %w", err)
	}
	return v, nil
}

func messageArgs(m domain.OutboundMessage) ([]any, error) {
	kind, media, err := encodeDraft(m.Media)
	if err != nil {
		return nil, err
	}
	var entities any
	if len(m.Entities) > 0 {
		if entities, err = encodeJSON(m.Entities); err != nil {
			return nil, fmt.Errorf("encode entities: %w", err)
		}
	}
	var remote any
	if m.Remote != nil {
		if remote, err = encodeJSON(m.Remote); err != nil {
			return nil, fmt.Errorf("encode remote file: %w", err)
		}
	}
	return []any{
		m.RandomID, m.LocalID, m.ServerID,
		int(m.Peer.Kind), m.Peer.ID, m.Peer.AccessHash, m.GroupID,
		m.Text, entities, m.ReplyTo, boolToInt(m.Silent), toUnixMillis(m.ScheduleDate),
		kind, media, nullableString(m.AttachPath),
		int(m.State), boolToInt(m.Acked), boolToInt(m.Unread), remote,
		toUnixMillis(m.Date), nullableString(m.ErrorText),
	}, nil
}

func scanMessage(scanner interface {
	Scan(dest ...any) error
}) (domain.OutboundMessage, error) {
	var (
		m                                domain.OutboundMessage
		peerKind, state                  int
		silent, acked, unread            int
		scheduleMs, atMs                 int64
		mediaKind                        string
		entitiesRaw, mediaRaw, remoteRaw sql.NullString
		attachRaw, errorRaw              sql.NullString
	)
	if err := scanner.Scan(
		&m.RandomID, &m.LocalID, &m.ServerID,
		&peerKind, &m.Peer.ID, &m.Peer.AccessHash, &m.GroupID,
		&m.Text, &entitiesRaw, &m.ReplyTo, &silent, &scheduleMs,
		&mediaKind, &mediaRaw, &attachRaw,
		&state, &acked, &unread, &remoteRaw,
		&atMs, &errorRaw,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.OutboundMessage{}, err
		}
		return domain.OutboundMessage{}, fmt.Errorf("scan message: %w", err)
	}
	m.Peer.Kind = domain.PeerKind(peerKind)
	m.State = domain.State(state)
	m.Silent = silent != 0
	m.Acked = acked != 0
	m.Unread = unread != 0
	m.ScheduleDate = fromUnixMillis(scheduleMs)
	m.Date = fromUnixMillis(atMs)
	m.AttachPath = attachRaw.String
	m.ErrorText = errorRaw.String

	if entitiesRaw.Valid {
		if err := json.Unmarshal([]byte(entitiesRaw.String), &m.Entities); err != nil {
			return domain.OutboundMessage{}, fmt.Errorf("decode entities of %d: %w", m.RandomID, err)
		}
	}
	if remoteRaw.Valid {
		var rf domain.RemoteFile
		if err := json.Unmarshal([]byte(remoteRaw.String), &rf); err != nil {
			return domain.OutboundMessage{}, fmt.Errorf("decode remote file of %d: %w", m.RandomID, err)
		}
		m.Remote = &rf
	}
	media, err := decodeDraft(mediaKind, mediaRaw.String)
	if err != nil {
		return domain.OutboundMessage{}, err
	}
	m.Media = media
	return m, nil
}
