package domain

import (
	"fmt"
	"time"
)

type PeerKind int

const (
	PeerUser PeerKind = iota + 1
	PeerChat
	PeerChannel
	PeerSecret
)

func (k PeerKind) String() string {
	switch k {
	case PeerUser:
		return "user"
	case PeerChat:
		return "chat"
	case PeerChannel:
		return "channel"
	case PeerSecret:
		return "secret"
	default:
		return fmt.Sprintf("peer(%d)", int(k))
	}
}

const channelDialogOffset = 1_000_000_000_000

// Peer addresses a conversation. AccessHash is zero for basic chats.
type Peer struct {
	Kind       PeerKind
	ID         int64
	AccessHash int64
}

func (p Peer) IsZero() bool {
	return p.Kind == 0 || p.ID == 0
}

func (p Peer) IsSecret() bool {
	return p.Kind == PeerSecret
}

// DialogID folds the peer kind into a single signed id so that users, chats,
// channels and secret chats never collide.
func (p Peer) DialogID() int64 {
	switch p.Kind {
	case PeerChat:
		return -p.ID
	case PeerChannel:
		return -(channelDialogOffset + p.ID)
	case PeerSecret:
		return p.ID << 32
	default:
		return p.ID
	}
}

type State int

const (
	StateDrafting State = iota + 1
	StateAwaitingMedia
	StateDispatched
	StateSent
	StateError
	StateEditing
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateDrafting:
		return "drafting"
	case StateAwaitingMedia:
		return "awaiting_media"
	case StateDispatched:
		return "dispatched"
	case StateSent:
		return "sent"
	case StateError:
		return "error"
	case StateEditing:
		return "editing"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateSent || s == StateCancelled
}

type Entity struct {
	Type   string
	Offset int
	Length int
	URL    string
}

type MessageRef struct {
	Dialog int64
	ID     int64
}

func (r MessageRef) String() string {
	return fmt.Sprintf("%d/%d", r.Dialog, r.ID)
}

type OutboundMessage struct {
	LocalID      int64
	ServerID     int64
	RandomID     int64
	Peer         Peer
	GroupID      int64
	Text         string
	Entities     []Entity
	ReplyTo      int64
	Silent       bool
	ScheduleDate time.Time
	Media        MediaDraft
	AttachPath   string
	State        State
	Acked        bool
	Unread       bool
	Remote       *RemoteFile
	Date         time.Time
	ErrorText    string
}

func (m OutboundMessage) DialogID() int64 {
	return m.Peer.DialogID()
}

// CurrentID returns the server id once reconciled and the local id before.
func (m OutboundMessage) CurrentID() int64 {
	if m.ServerID != 0 {
		return m.ServerID
	}
	return m.LocalID
}

func (m OutboundMessage) Ref() MessageRef {
	return MessageRef{Dialog: m.DialogID(), ID: m.CurrentID()}
}

func (m OutboundMessage) Scheduled() bool {
	return !m.ScheduleDate.IsZero()
}

func (m OutboundMessage) Clone() OutboundMessage {
	out := m
	if m.Entities != nil {
		out.Entities = append([]Entity(nil), m.Entities...)
	}
	if m.Remote != nil {
		r := m.Remote.Clone()
		out.Remote = &r
	}
	return out
}

type Dialog struct {
	ID             int64
	Peer           Peer
	Title          string
	ReadOutboxMax  int64
	LastSentByMeAt time.Time
	UpdatedAt      time.Time
}
