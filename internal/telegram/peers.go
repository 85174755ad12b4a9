package telegram

import (
	"errors"
	"fmt"

	"github.com/gotd/td/tg"

	"github.com/skobkin/courier/internal/domain"
)

var ErrSecretPeer = errors.New("secret chats are not supported by this transport")

func inputPeer(p domain.Peer) (tg.InputPeerClass, error) {
	switch p.Kind {
	case domain.PeerUser:
		return &tg.InputPeerUser{UserID: p.ID, AccessHash: p.AccessHash}, nil
	case domain.PeerChat:
		return &tg.InputPeerChat{ChatID: p.ID}, nil
	case domain.PeerChannel:
		return &tg.InputPeerChannel{ChannelID: p.ID, AccessHash: p.AccessHash}, nil
	case domain.PeerSecret:
		return nil, ErrSecretPeer
	default:
		return nil, fmt.Errorf("unknown peer kind %s", p.Kind)
	}
}

// peerOf converts a resolved input peer back to the domain form.
func peerOf(p tg.InputPeerClass) (domain.Peer, error) {
	switch v := p.(type) {
	case *tg.InputPeerUser:
		return domain.Peer{Kind: domain.PeerUser, ID: v.UserID, AccessHash: v.AccessHash}, nil
	case *tg.InputPeerChat:
		return domain.Peer{Kind: domain.PeerChat, ID: v.ChatID}, nil
	case *tg.InputPeerChannel:
		return domain.Peer{Kind: domain.PeerChannel, ID: v.ChannelID, AccessHash: v.AccessHash}, nil
	default:
		return domain.Peer{}, fmt.Errorf("unsupported peer %T", p)
	}
}
