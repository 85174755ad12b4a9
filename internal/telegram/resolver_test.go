package telegram

import (
	"context"
	"testing"

	"github.com/gotd/td/tg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skobkin/courier/internal/domain"
)

func TestResolverRefreshesFromChannel(t *testing.T) {
	channel := domain.Peer{Kind: domain.PeerChannel, ID: 1001, AccessHash: 5}
	api := &fakeAPI{messages: &tg.MessagesChannelMessages{Messages: []tg.MessageClass{
		&tg.Message{ID: 300, Media: &tg.MessageMediaPhoto{
			Photo: &tg.Photo{ID: 10, AccessHash: 11, FileReference: []byte{9, 9}},
		}},
	}}}
	parent := domain.RemoteFile{ID: 10, AccessHash: 11, FileReference: []byte{1}, Photo: true, Origin: domain.MessageOrigin{Peer: channel, ID: 300}}

	fresh, err := NewResolver(api).RefreshReference(context.Background(), parent)
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 9}, fresh.FileReference)

	req := api.recorded()[0].(*tg.ChannelsGetMessagesRequest)
	assert.Equal(t, &tg.InputChannel{ChannelID: 1001, AccessHash: 5}, req.Channel)
}

func TestResolverUsesMessagesForUsers(t *testing.T) {
	api := &fakeAPI{messages: &tg.MessagesMessages{Messages: []tg.MessageClass{
		&tg.Message{ID: 7, Media: &tg.MessageMediaDocument{Document: &tg.Document{ID: 4, FileReference: []byte{2}}}},
	}}}
	parent := domain.RemoteFile{ID: 4, Origin: domain.MessageOrigin{Peer: domain.Peer{Kind: domain.PeerUser, ID: 1}, ID: 7}}

	fresh, err := NewResolver(api).RefreshReference(context.Background(), parent)
	require.NoError(t, err)
	assert.Equal(t, []byte{2}, fresh.FileReference)
	assert.IsType(t, []tg.InputMessageClass{}, api.recorded()[0])
}

func TestResolverFailures(t *testing.T) {
	_, err := NewResolver(&fakeAPI{}).RefreshReference(context.Background(), domain.RemoteFile{ID: 1})
	require.ErrorIs(t, err, ErrNoOrigin)

	origin := domain.MessageOrigin{Peer: domain.Peer{Kind: domain.PeerUser, ID: 1}, ID: 7}
	api := &fakeAPI{messages: &tg.MessagesMessages{}}
	_, err = NewResolver(api).RefreshReference(context.Background(), domain.RemoteFile{ID: 1, Origin: origin})
	require.ErrorIs(t, err, domain.ErrNotFound)

	api = &fakeAPI{messages: &tg.MessagesMessages{Messages: []tg.MessageClass{
		&tg.Message{ID: 7, Media: &tg.MessageMediaDocument{Document: &tg.Document{ID: 99}}},
	}}}
	_, err = NewResolver(api).RefreshReference(context.Background(), domain.RemoteFile{ID: 1, Origin: origin})
	require.Error(t, err)
}
