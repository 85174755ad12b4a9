package events

import "github.com/skobkin/courier/internal/domain"

// MessageCreated is published once a provisional message is persisted.
type MessageCreated struct {
	Message domain.OutboundMessage
}

type MessageStateChanged struct {
	Ref   domain.MessageRef
	State domain.State
}

// MessageAcked means the transport received the request. It is not a
// delivery confirmation.
type MessageAcked struct {
	Ref      domain.MessageRef
	RandomID int64
}

// MessageSent reports the local to server id reconciliation.
type MessageSent struct {
	Dialog   int64
	OldID    int64
	NewID    int64
	RandomID int64
	Message  domain.OutboundMessage
}

type MessageFailed struct {
	Message domain.OutboundMessage
	Reason  string
}

type MessagesDeleted struct {
	Dialog int64
	IDs    []int64
}

type MessageEdited struct {
	Message domain.OutboundMessage
}

// EditRolledBack carries the restored pre-edit message.
type EditRolledBack struct {
	Message domain.OutboundMessage
	Reason  string
}
