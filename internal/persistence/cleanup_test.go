package persistence

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/skobkin/courier/internal/domain"
)

func TestClearDatabase_ClearsAllTables(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, filepath.Join(t.TempDir(), "app.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer func() { _ = db.Close() }()

	peer := domain.Peer{Kind: domain.PeerUser, ID: 42, AccessHash: 1}
	if err := NewDialogRepo(db).Upsert(ctx, domain.Dialog{Peer: peer, Title: "Alice", UpdatedAt: time.Now()}); err != nil {
		t.Fatalf("seed dialogs: %v", err)
	}
	if err := NewMessageRepo(db).PutMessages(ctx, []domain.OutboundMessage{{
		LocalID: -1, RandomID: 1, Peer: peer, Text: "hello", State: domain.StateDrafting,
	}}); err != nil {
		t.Fatalf("seed messages: %v", err)
	}
	file := filepath.Join(t.TempDir(), "a.jpg")
	if err := os.WriteFile(file, []byte("jpeg"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := NewSentFileRepo(db).Remember(ctx, file, domain.RemoteFile{ID: 7}); err != nil {
		t.Fatalf("seed sent files: %v", err)
	}

	if err := ClearDatabase(ctx, db); err != nil {
		t.Fatalf("clear database: %v", err)
	}

	tableChecks := []struct {
		name  string
		query string
	}{
		{name: "messages", query: "SELECT COUNT(*) FROM messages;"},
		{name: "dialogs", query: "SELECT COUNT(*) FROM dialogs;"},
		{name: "sent_files", query: "SELECT COUNT(*) FROM sent_files;"},
	}
	for _, table := range tableChecks {
		var count int
		if err := db.QueryRowContext(ctx, table.query).Scan(&count); err != nil {
			t.Fatalf("count rows in %s: %v", table.name, err)
		}
		if count != 0 {
			t.Fatalf("expected %s to be empty after clear, got %d rows", table.name, count)
		}
	}
}
