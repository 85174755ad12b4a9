package telegram

import (
	"testing"
	"time"

	"github.com/gotd/td/tg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skobkin/courier/internal/domain"
)

type outcome struct {
	resp domain.SendResponse
	err  error
}

func send(t *testing.T, tr *Transport, req domain.SendRequest) outcome {
	t.Helper()
	done := make(chan outcome, 1)
	tr.Send(req, nil, func(resp domain.SendResponse, err error) { done <- outcome{resp, err} })
	select {
	case o := <-done:
		return o
	case <-time.After(2 * time.Second):
		t.Fatal("request did not complete")
		return outcome{}
	}
}

func TestTransportSendsText(t *testing.T) {
	api := &fakeAPI{updates: &tg.Updates{Updates: []tg.UpdateClass{
		&tg.UpdateMessageID{ID: 900, RandomID: 55},
		&tg.UpdateNewMessage{Message: &tg.Message{ID: 900}},
	}}}
	tr := NewTransport(api, TransportConfig{}, nil, nil)

	o := send(t, tr, domain.SendRequest{
		Kind:      domain.RequestText,
		Peer:      chatPeer,
		ReplyTo:   12,
		Silent:    true,
		NoWebpage: true,
		Items:     []domain.RequestItem{{RandomID: 55, Message: "hello"}},
	})
	require.NoError(t, o.err)
	m, ok := o.resp.ByRandomID(55)
	require.True(t, ok)
	assert.Equal(t, int64(900), m.ID)

	calls := api.recorded()
	require.Len(t, calls, 1)
	req := calls[0].(*tg.MessagesSendMessageRequest)
	assert.Equal(t, "hello", req.Message)
	assert.Equal(t, int64(55), req.RandomID)
	assert.True(t, req.Silent)
	assert.True(t, req.NoWebpage)
	assert.Equal(t, &tg.InputReplyToMessage{ReplyToMsgID: 12}, req.ReplyTo)
}

func TestTransportAlbumUploadsFilesFirst(t *testing.T) {
	api := &fakeAPI{
		uploaded: &tg.MessageMediaPhoto{Photo: &tg.Photo{ID: 3, AccessHash: 4}},
		updates:  &tg.Updates{},
	}
	tr := NewTransport(api, TransportConfig{RequestsPerSecond: 100, Burst: 10}, nil, nil)
	photo := func(randomID int64) domain.RequestItem {
		return domain.RequestItem{RandomID: randomID, Media: &domain.InputMedia{
			Draft:     domain.PhotoDraft{FileSource: domain.FileSource{Path: "/a.jpg"}},
			File:      &domain.UploadedFile{ID: randomID, Parts: 1, Name: "a.jpg"},
			NeedsFile: true,
		}}
	}

	o := send(t, tr, domain.SendRequest{
		Kind:  domain.RequestMultiMedia,
		Peer:  chatPeer,
		Items: []domain.RequestItem{photo(1), photo(2)},
	})
	require.NoError(t, o.err)

	calls := api.recorded()
	require.Len(t, calls, 3)
	assert.IsType(t, &tg.MessagesUploadMediaRequest{}, calls[0])
	assert.IsType(t, &tg.MessagesUploadMediaRequest{}, calls[1])
	multi := calls[2].(*tg.MessagesSendMultiMediaRequest)
	require.Len(t, multi.MultiMedia, 2)
	assert.Equal(t, int64(2), multi.MultiMedia[1].RandomID)
	assert.IsType(t, &tg.InputMediaPhoto{}, multi.MultiMedia[0].Media)
}

func TestTransportForwardFlattensItems(t *testing.T) {
	api := &fakeAPI{updates: &tg.Updates{}}
	tr := NewTransport(api, TransportConfig{}, nil, nil)
	from := domain.Peer{Kind: domain.PeerUser, ID: 5, AccessHash: 6}
	item := func(id, randomID int64) domain.RequestItem {
		return domain.RequestItem{RandomID: randomID, Media: &domain.InputMedia{
			Draft: domain.ForwardDraft{From: from, MessageIDs: []int64{id}},
		}}
	}

	o := send(t, tr, domain.SendRequest{
		Kind:  domain.RequestForward,
		Peer:  chatPeer,
		Items: []domain.RequestItem{item(10, 100), item(11, 101)},
	})
	require.NoError(t, o.err)

	req := api.recorded()[0].(*tg.MessagesForwardMessagesRequest)
	assert.Equal(t, []int{10, 11}, req.ID)
	assert.Equal(t, []int64{100, 101}, req.RandomID)
	assert.Equal(t, &tg.InputPeerUser{UserID: 5, AccessHash: 6}, req.FromPeer)
}

func TestTransportEdit(t *testing.T) {
	api := &fakeAPI{updates: &tg.Updates{}}
	tr := NewTransport(api, TransportConfig{}, nil, nil)
	remote := &domain.RemoteFile{ID: 1, AccessHash: 2, Photo: true}

	o := send(t, tr, domain.SendRequest{
		Kind:   domain.RequestEditMedia,
		Peer:   chatPeer,
		EditID: 300,
		Items: []domain.RequestItem{{Message: "caption", Media: &domain.InputMedia{
			Draft: domain.PhotoDraft{FileSource: domain.FileSource{Remote: remote}},
		}}},
	})
	require.NoError(t, o.err)
	req := api.recorded()[0].(*tg.MessagesEditMessageRequest)
	assert.Equal(t, 300, req.ID)
	assert.Equal(t, "caption", req.Message)
}

func TestTransportRejectsSecretPeer(t *testing.T) {
	api := &fakeAPI{}
	tr := NewTransport(api, TransportConfig{}, nil, nil)
	o := send(t, tr, domain.SendRequest{
		Kind:  domain.RequestText,
		Peer:  domain.Peer{Kind: domain.PeerSecret, ID: 1},
		Items: []domain.RequestItem{{RandomID: 1, Message: "x"}},
	})
	require.ErrorIs(t, o.err, domain.ErrTransport)
	assert.Empty(t, api.recorded())
}

func TestTransportCancelSuppressesOutcome(t *testing.T) {
	api := &fakeAPI{block: make(chan struct{}), updates: &tg.Updates{}}
	tr := NewTransport(api, TransportConfig{}, nil, nil)

	done := make(chan struct{}, 1)
	h := tr.Send(domain.SendRequest{
		Kind:  domain.RequestText,
		Peer:  chatPeer,
		Items: []domain.RequestItem{{RandomID: 1, Message: "x"}},
	}, nil, func(domain.SendResponse, error) { done <- struct{}{} })

	require.Eventually(t, func() bool { return len(api.recorded()) == 1 }, time.Second, 5*time.Millisecond)
	tr.Cancel(h)
	close(api.block)

	select {
	case <-done:
		t.Fatal("cancelled request reported back")
	case <-time.After(50 * time.Millisecond):
	}
}
