package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/skobkin/courier/internal/domain"
)

// SentFileRepo remembers which server file a local file became, so the same
// unchanged file is not uploaded twice.
type SentFileRepo struct {
	db  *sql.DB
	now func() time.Time
}

func NewSentFileRepo(db *sql.DB) *SentFileRepo {
	return &SentFileRepo{db: db, now: time.Now}
}

// fileKey changes whenever the file is replaced or modified.
func fileKey(path string) (string, string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", "", fmt.Errorf("resolve %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", "", err
	}
	if info.IsDir() {
		return "", "", fmt.Errorf("%s is a directory", abs)
	}
	return fmt.Sprintf("%s|%d|%d", abs, info.Size(), info.ModTime().UnixNano()), abs, nil
}

func (r *SentFileRepo) Lookup(ctx context.Context, path string) (domain.RemoteFile, bool, error) {
	key, _, err := fileKey(path)
	if errors.Is(err, os.ErrNotExist) {
		return domain.RemoteFile{}, false, nil
	}
	if err != nil {
		return domain.RemoteFile{}, false, err
	}

	var raw string
	err = r.db.QueryRowContext(ctx, `SELECT remote_json FROM sent_files WHERE file_key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RemoteFile{}, false, nil
	}
	if err != nil {
		return domain.RemoteFile{}, false, fmt.Errorf("lookup sent file: %w", err)
	}
	var f domain.RemoteFile
	if err := json.Unmarshal([]byte(raw), &f); err != nil {
		return domain.RemoteFile{}, false, fmt.Errorf("decode sent file: %w", err)
	}
	return f, true, nil
}

func (r *SentFileRepo) Remember(ctx context.Context, path string, f domain.RemoteFile) error {
	key, abs, err := fileKey(path)
	if err != nil {
		return fmt.Errorf("remember sent file: %w", err)
	}
	raw, err := encodeJSON(f)
	if err != nil {
		return fmt.Errorf("encode sent file: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO sent_files(file_key, path, remote_json, updated_at)
		VALUES(?, ?, ?, ?)
		ON CONFLICT(file_key) DO UPDATE SET
			remote_json = excluded.remote_json,
			updated_at = excluded.updated_at
	`, key, abs, raw, toUnixMillis(r.now())); err != nil {
		return fmt.Errorf("remember sent file: %w", err)
	}
	return nil
}

