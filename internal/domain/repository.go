package domain

import "context"

type MessageRepository interface {
	PutMessages(ctx context.Context, msgs []OutboundMessage) error
	MarkSendError(ctx context.Context, m OutboundMessage) error
	MarkAcked(ctx context.Context, randomID int64) error
	UpdateIdentity(ctx context.Context, dialogID, randomID, oldID, newID int64) error
	DeleteMessages(ctx context.Context, dialogID int64, ids []int64) error
	LoadMessage(ctx context.Context, ref MessageRef) (OutboundMessage, error)
	LoadErrored(ctx context.Context, dialogID, groupID int64) ([]OutboundMessage, error)
	ReadOutboxMax(ctx context.Context, dialogID int64) (int64, error)
	MinLocalID(ctx context.Context) (int64, error)
}

type DialogRepository interface {
	Upsert(ctx context.Context, d Dialog) error
	SetReadOutboxMax(ctx context.Context, dialogID, maxID int64) error
	ListSortedByLastSentByMe(ctx context.Context) ([]Dialog, error)
}

type SentFileRepository interface {
	Lookup(ctx context.Context, path string) (RemoteFile, bool, error)
	Remember(ctx context.Context, path string, f RemoteFile) error
}
