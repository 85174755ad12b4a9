package persistence

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/skobkin/courier/internal/domain"
)

func TestOpenSettlesInterruptedMessages(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "app.db")

	db, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	seed := []domain.OutboundMessage{
		{LocalID: -1, RandomID: 1, Peer: testPeer, Text: "uploading", State: domain.StateAwaitingMedia},
		{LocalID: -2, RandomID: 2, Peer: testPeer, Text: "on the wire", State: domain.StateDispatched},
		{LocalID: -3, ServerID: 50, RandomID: 3, Peer: testPeer, Text: "old caption", State: domain.StateEditing},
		{LocalID: -4, ServerID: 51, RandomID: 4, Peer: testPeer, Text: "done", State: domain.StateSent},
	}
	if err := NewMessageRepo(db).PutMessages(ctx, seed); err != nil {
		t.Fatalf("seed messages: %v", err)
	}
	_ = db.Close()

	db, err = Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen db: %v", err)
	}
	defer func() { _ = db.Close() }()
	repo := NewMessageRepo(db)

	errored, err := repo.ListErrored(ctx, testPeer.DialogID())
	if err != nil {
		t.Fatalf("list errored: %v", err)
	}
	if len(errored) != 2 {
		t.Fatalf("expected both unfinished drafts to become errors, got %d", len(errored))
	}
	for _, m := range errored {
		if !strings.Contains(m.ErrorText, "interrupted") {
			t.Fatalf("expected interrupted reason, got %q", m.ErrorText)
		}
	}

	edited, err := repo.LoadMessage(ctx, domain.MessageRef{Dialog: testPeer.DialogID(), ID: 50})
	if err != nil {
		t.Fatalf("load edited message: %v", err)
	}
	if edited.State != domain.StateSent || edited.Text != "old caption" {
		t.Fatalf("expected unconfirmed edit to fall back to sent content, got %s %q", edited.State, edited.Text)
	}
}

func TestOpenRecordsSchemaVersionAndPragmas(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "app.db")
	db, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	var version int
	if err := db.QueryRowContext(ctx, `PRAGMA user_version;`).Scan(&version); err != nil {
		t.Fatalf("read user_version: %v", err)
	}
	if version != schemaVersion {
		t.Fatalf("expected schema version %d, got %d", schemaVersion, version)
	}
	var timeout int
	if err := db.QueryRowContext(ctx, `PRAGMA busy_timeout;`).Scan(&timeout); err != nil {
		t.Fatalf("read busy_timeout: %v", err)
	}
	if timeout != 5000 {
		t.Fatalf("expected busy timeout 5000, got %d", timeout)
	}

	if _, err := db.ExecContext(ctx, `PRAGMA user_version = 99;`); err != nil {
		t.Fatalf("bump user_version: %v", err)
	}
	_ = db.Close()
	if _, err := Open(ctx, path); err == nil || !strings.Contains(err.Error(), "newer than supported") {
		t.Fatalf("expected newer schema to be refused, got %v", err)
	}
}
