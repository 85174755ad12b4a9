package sender

import (
	"github.com/skobkin/courier/internal/domain"
	"github.com/skobkin/courier/internal/events"
)

// cancelOne withdraws a message from every registry. Drafts are deleted and
// edits are rolled back. Unknown, sent and cancelled ids are ignored.
func (e *Engine) cancelOne(ref domain.MessageRef) {
	if t, ok := e.editing[ref]; ok {
		e.cancelEdit(t)
		return
	}
	t, ok := e.messages[ref.ID]
	if !ok {
		e.discardStored(ref)
		return
	}
	if t.msg.DialogID() != ref.Dialog || t.msg.State.Terminal() {
		return
	}

	e.cancelMedia(e.pending.unbind(t.upload))
	switch {
	case t.batch != nil:
		e.removeFromBatch(t)
	case t.flight != nil:
		e.detachFromFlight(t)
	}
	t.msg.State = domain.StateCancelled
	e.untrack(t)

	ctx, cancel := e.storeCtx()
	if err := e.deps.Messages.DeleteMessages(ctx, ref.Dialog, []int64{t.msg.LocalID}); err != nil {
		e.logger.Error("delete cancelled message failed", "local_id", t.msg.LocalID, "error", err)
	}
	cancel()

	e.publish(events.TopicMessagesDeleted, events.MessagesDeleted{Dialog: ref.Dialog, IDs: []int64{t.msg.LocalID}})
	e.deps.Metrics.RecordCancelled()
	e.updateGauges()
	e.logger.Info("message cancelled", "local_id", t.msg.LocalID, "dialog", ref.Dialog)
	e.releaseFollowUps(t)
}

// detachFromFlight pulls t out of a non-batch request. The remaining members
// of a forward are sent on their own.
func (e *Engine) detachFromFlight(t *tracked) {
	f := t.flight
	rest := make([]*tracked, 0, len(f.members))
	for _, m := range f.members {
		if m != t {
			rest = append(rest, m)
		}
	}
	e.abortFlight(f)
	if len(rest) > 0 {
		e.schedule(e.newFlight(rest, nil))
	}
}

// discardStored deletes an errored draft that is only known to storage, such
// as one left over from an earlier run.
func (e *Engine) discardStored(ref domain.MessageRef) {
	if ref.ID >= 0 {
		return
	}
	ctx, cancel := e.storeCtx()
	defer cancel()
	msg, err := e.deps.Messages.LoadMessage(ctx, ref)
	if err != nil || msg.State != domain.StateError {
		return
	}
	if err := e.deps.Messages.DeleteMessages(ctx, ref.Dialog, []int64{msg.LocalID}); err != nil {
		e.logger.Error("delete stored draft failed", "local_id", msg.LocalID, "error", err)
		return
	}
	e.publish(events.TopicMessagesDeleted, events.MessagesDeleted{Dialog: ref.Dialog, IDs: []int64{msg.LocalID}})
	e.deps.Metrics.RecordCancelled()
	e.logger.Info("stored draft discarded", "local_id", msg.LocalID, "dialog", ref.Dialog)
}
