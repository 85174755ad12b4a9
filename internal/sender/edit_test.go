package sender

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skobkin/courier/internal/domain"
	"github.com/skobkin/courier/internal/events"
)

func sentPhoto() domain.OutboundMessage {
	remote := &domain.RemoteFile{ID: 10, AccessHash: 11, FileReference: []byte("ref"), Photo: true}
	return domain.OutboundMessage{
		LocalID:    -1,
		ServerID:   300,
		RandomID:   9001,
		Peer:       dialog42,
		Text:       "old caption",
		Entities:   []domain.Entity{{Type: "bold", Offset: 0, Length: 3}},
		Media:      domain.PhotoDraft{FileSource: domain.FileSource{Path: "/tmp/old.jpg", Remote: remote}},
		AttachPath: "/tmp/old.jpg",
		State:      domain.StateSent,
		Remote:     remote,
	}
}

var editRef = domain.MessageRef{Dialog: 42, ID: 300}

func newPhotoEdit(path string) domain.EditIntent {
	return domain.EditIntent{
		Media:   domain.PhotoDraft{FileSource: domain.FileSource{Path: path}},
		Caption: "new caption",
	}
}

func TestEditMediaSucceeds(t *testing.T) {
	h := newHarness(t, Options{})
	h.store.put(sentPhoto())
	ctx := context.Background()

	require.NoError(t, h.engine.EditMedia(ctx, editRef, newPhotoEdit("/tmp/new.jpg")))
	provisional, _ := h.store.get(9001)
	assert.Equal(t, domain.StateEditing, provisional.State)
	assert.Equal(t, "old caption", provisional.Text)

	assert.ErrorIs(t, h.engine.EditMedia(ctx, editRef, newPhotoEdit("/tmp/other.jpg")), domain.ErrAlreadyEditing)

	h.ready(t, "/tmp/new.jpg", uploaded(44))
	require.Equal(t, 1, h.transport.count())
	req := h.transport.request(0).req
	assert.Equal(t, domain.RequestEditMedia, req.Kind)
	assert.Equal(t, int64(300), req.EditID)
	assert.Equal(t, int64(44), req.Items[0].Media.File.ID)

	h.transport.request(0).done(domain.SendResponse{Messages: []domain.ServerMessage{{
		ID:     300,
		Remote: &domain.RemoteFile{ID: 45, AccessHash: 1, FileReference: []byte("n"), Photo: true},
	}}}, nil)
	h.sync(t)

	edited := h.bus.topic(events.TopicMessageEdited)
	require.Len(t, edited, 1)
	msg := edited[0].(events.MessageEdited).Message
	assert.Equal(t, domain.StateSent, msg.State)
	assert.Equal(t, "new caption", msg.Text)
	assert.Equal(t, int64(45), msg.Remote.ID)
	assert.Empty(t, h.bus.topic(events.TopicEditRolledBack))

	stored, _ := h.store.get(9001)
	assert.Equal(t, domain.StateSent, stored.State)
	assert.Equal(t, "new caption", stored.Text)
	assert.Equal(t, int64(45), stored.Remote.ID)
}

func TestEditKeepsConfirmedContentStoredUntilServerAnswers(t *testing.T) {
	h := newHarness(t, Options{})
	original := sentPhoto()
	h.store.put(original)

	require.NoError(t, h.engine.EditMedia(context.Background(), editRef, newPhotoEdit("/tmp/new.jpg")))
	h.ready(t, "/tmp/new.jpg", uploaded(44))
	require.Equal(t, 1, h.transport.count())

	// uploaded and requested, but not yet confirmed
	stored, ok := h.store.get(9001)
	require.True(t, ok)
	assert.Equal(t, domain.StateEditing, stored.State)
	stored.State = domain.StateSent
	assert.Equal(t, original, stored)
}

func TestEditRollsBackExactlyOnMediaFailure(t *testing.T) {
	h := newHarness(t, Options{})
	original := sentPhoto()
	h.store.put(original)

	require.NoError(t, h.engine.EditMedia(context.Background(), editRef, newPhotoEdit("/tmp/new.jpg")))
	h.engine.ResourceFailed("/tmp/new.jpg", errors.New("too large"))
	h.sync(t)

	restored, ok := h.store.get(9001)
	require.True(t, ok)
	assert.Equal(t, original, restored)
	assert.Equal(t, 0, h.transport.count())

	rolled := h.bus.topic(events.TopicEditRolledBack)
	require.Len(t, rolled, 1)
	assert.Equal(t, original, rolled[0].(events.EditRolledBack).Message)
	assert.Contains(t, rolled[0].(events.EditRolledBack).Reason, "too large")
}

func TestEditRollsBackOnTransportError(t *testing.T) {
	h := newHarness(t, Options{})
	original := sentPhoto()
	h.store.put(original)

	require.NoError(t, h.engine.EditMedia(context.Background(), editRef, newPhotoEdit("/tmp/new.jpg")))
	h.ready(t, "/tmp/new.jpg", uploaded(1))
	h.transport.fail(0, &domain.TransportError{Code: 400, Type: "MESSAGE_NOT_MODIFIED", Err: errors.New("not modified")})
	h.sync(t)

	restored, _ := h.store.get(9001)
	assert.Equal(t, original, restored)
	assert.Empty(t, h.bus.topic(events.TopicMessageFailed))
	assert.Len(t, h.bus.topic(events.TopicEditRolledBack), 1)

	// a new edit may start after the rollback
	require.NoError(t, h.engine.EditMedia(context.Background(), editRef, newPhotoEdit("/tmp/again.jpg")))
}

func TestCancelEditRestoresSnapshot(t *testing.T) {
	h := newHarness(t, Options{})
	original := sentPhoto()
	h.store.put(original)
	ctx := context.Background()

	require.NoError(t, h.engine.EditMedia(ctx, editRef, newPhotoEdit("/tmp/new.jpg")))
	require.NoError(t, h.engine.Cancel(ctx, editRef))

	restored, _ := h.store.get(9001)
	assert.Equal(t, original, restored)
	cancelled := h.media.ops("cancel")
	require.Len(t, cancelled, 1)
	assert.Equal(t, "/tmp/new.jpg", cancelled[0].key)

	rolled := h.bus.topic(events.TopicEditRolledBack)
	require.Len(t, rolled, 1)
	assert.Equal(t, domain.ErrCancelled.Error(), rolled[0].(events.EditRolledBack).Reason)

	// late upload result is ignored
	h.ready(t, "/tmp/new.jpg", uploaded(1))
	assert.Equal(t, 0, h.transport.count())
}

func TestEditRejectsDrafts(t *testing.T) {
	h := newHarness(t, Options{})

	err := h.engine.EditMedia(context.Background(), domain.MessageRef{Dialog: 42, ID: -1}, newPhotoEdit("/tmp/x.jpg"))
	assert.True(t, domain.IsValidation(err))

	err = h.engine.EditMedia(context.Background(), editRef, domain.EditIntent{Media: domain.DiceDraft{Emoticon: "🎯"}})
	assert.True(t, domain.IsValidation(err))
}
