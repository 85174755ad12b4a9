package persistence

import (
	"context"
	"time"

	"github.com/skobkin/courier/internal/bus"
	"github.com/skobkin/courier/internal/domain"
	"github.com/skobkin/courier/internal/events"
)

// WriteQueue serializes persistence writes from async events.
type WriteQueue interface {
	Enqueue(name string, fn func(context.Context) error)
}

// StartDialogProjection keeps dialog rows in step with outbound traffic: a
// dialog appears with its first draft and moves up the list on every send.
func StartDialogProjection(ctx context.Context, b bus.MessageBus, queue WriteQueue, dialogs domain.DialogRepository) {
	sub := b.Subscribe(events.TopicMessageCreated, events.TopicMessageSent)

	go func() {
		defer b.Unsubscribe(sub, events.TopicMessageCreated, events.TopicMessageSent)
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-sub:
				if !ok {
					return
				}
				switch ev := raw.(type) {
				case events.MessageCreated:
					d := domain.Dialog{
						ID:        ev.Message.DialogID(),
						Peer:      ev.Message.Peer,
						UpdatedAt: stamp(ev.Message.Date),
					}
					queue.Enqueue("upsert_dialog", func(writeCtx context.Context) error {
						return dialogs.Upsert(writeCtx, d)
					})
				case events.MessageSent:
					at := stamp(ev.Message.Date)
					d := domain.Dialog{
						ID:             ev.Dialog,
						Peer:           ev.Message.Peer,
						LastSentByMeAt: at,
						UpdatedAt:      at,
					}
					queue.Enqueue("touch_dialog_sent", func(writeCtx context.Context) error {
						return dialogs.Upsert(writeCtx, d)
					})
				}
			}
		}
	}()
}

func stamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
