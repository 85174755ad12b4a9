package main

import (
	"context"
	"fmt"

	"github.com/skobkin/courier/internal/bus"
	"github.com/skobkin/courier/internal/domain"
	"github.com/skobkin/courier/internal/events"
)

type result struct {
	LocalID  int64
	ServerID int64
	Err      string
}

var waitTopics = []string{
	events.TopicMessageSent,
	events.TopicMessageFailed,
	events.TopicMessagesDeleted,
	events.TopicMessageEdited,
	events.TopicEditRolledBack,
}

// waiter collects the terminal outcome of messages by local id. It must be
// created before the messages are sent so no event is missed.
type waiter struct {
	b   bus.MessageBus
	sub bus.Subscription
}

func newWaiter(b bus.MessageBus) *waiter {
	return &waiter{b: b, sub: b.Subscribe(waitTopics...)}
}

func (w *waiter) close() {
	w.b.Unsubscribe(w.sub, waitTopics...)
}

func (w *waiter) wait(ctx context.Context, dialog int64, ids []int64) ([]result, error) {
	pending := make(map[int64]bool, len(ids))
	for _, id := range ids {
		pending[id] = true
	}
	out := make([]result, 0, len(ids))
	for len(pending) > 0 {
		select {
		case <-ctx.Done():
			return out, fmt.Errorf("%d message(s) still pending: %w", len(pending), ctx.Err())
		case raw, ok := <-w.sub:
			if !ok {
				return out, fmt.Errorf("event bus closed")
			}
			switch ev := raw.(type) {
			case events.MessageSent:
				if ev.Dialog == dialog && pending[ev.OldID] {
					delete(pending, ev.OldID)
					out = append(out, result{LocalID: ev.OldID, ServerID: ev.NewID})
				}
			case events.MessageFailed:
				if ev.Message.DialogID() == dialog && pending[ev.Message.LocalID] {
					delete(pending, ev.Message.LocalID)
					out = append(out, result{LocalID: ev.Message.LocalID, Err: ev.Reason})
				}
			case events.MessagesDeleted:
				if ev.Dialog != dialog {
					continue
				}
				for _, id := range ev.IDs {
					if pending[id] {
						delete(pending, id)
						out = append(out, result{LocalID: id, Err: domain.ErrCancelled.Error()})
					}
				}
			}
		}
	}
	return out, nil
}

// waitEdit blocks until the edit of ref is confirmed or rolled back.
func (w *waiter) waitEdit(ctx context.Context, ref domain.MessageRef) error {
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("edit still pending: %w", ctx.Err())
		case raw, ok := <-w.sub:
			if !ok {
				return fmt.Errorf("event bus closed")
			}
			switch ev := raw.(type) {
			case events.MessageEdited:
				if ev.Message.Ref() == ref {
					return nil
				}
			case events.EditRolledBack:
				if ev.Message.Ref() == ref {
					return fmt.Errorf("edit of %s rolled back: %s", ref, ev.Reason)
				}
			}
		}
	}
}
