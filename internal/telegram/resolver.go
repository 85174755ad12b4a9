package telegram

import (
	"context"
	"errors"
	"fmt"

	"github.com/gotd/td/tg"

	"github.com/skobkin/courier/internal/domain"
)

var ErrNoOrigin = errors.New("remote file has no origin message")

// Resolver re-reads the message a file was sent in to obtain a fresh file
// reference.
type Resolver struct {
	api API
}

func NewResolver(api API) *Resolver {
	return &Resolver{api: api}
}

func (r *Resolver) RefreshReference(ctx context.Context, parent domain.RemoteFile) (domain.RemoteFile, error) {
	if parent.Origin.ID == 0 || parent.Origin.Peer.IsZero() {
		return domain.RemoteFile{}, ErrNoOrigin
	}
	ids := []tg.InputMessageClass{&tg.InputMessageID{ID: int(parent.Origin.ID)}}

	var (
		res tg.MessagesMessagesClass
		err error
	)
	if parent.Origin.Peer.Kind == domain.PeerChannel {
		res, err = r.api.ChannelsGetMessages(ctx, &tg.ChannelsGetMessagesRequest{
			Channel: &tg.InputChannel{ChannelID: parent.Origin.Peer.ID, AccessHash: parent.Origin.Peer.AccessHash},
			ID:      ids,
		})
	} else {
		res, err = r.api.MessagesGetMessages(ctx, ids)
	}
	if err != nil {
		return domain.RemoteFile{}, fmt.Errorf("get origin message: %w", classify(err))
	}

	for _, m := range messagesOf(res) {
		msg, ok := m.(*tg.Message)
		if !ok || int64(msg.ID) != parent.Origin.ID {
			continue
		}
		fresh := remoteOf(parent.Origin.Peer, msg.ID, msg.Media)
		if fresh == nil || fresh.ID != parent.ID {
			return domain.RemoteFile{}, fmt.Errorf("origin message %d no longer carries file %d", msg.ID, parent.ID)
		}
		return *fresh, nil
	}
	return domain.RemoteFile{}, fmt.Errorf("origin message %d: %w", parent.Origin.ID, domain.ErrNotFound)
}

func messagesOf(res tg.MessagesMessagesClass) []tg.MessageClass {
	switch v := res.(type) {
	case *tg.MessagesMessages:
		return v.Messages
	case *tg.MessagesMessagesSlice:
		return v.Messages
	case *tg.MessagesChannelMessages:
		return v.Messages
	default:
		return nil
	}
}
