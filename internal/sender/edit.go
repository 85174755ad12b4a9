package sender

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/skobkin/courier/internal/domain"
	"github.com/skobkin/courier/internal/events"
)

// editSession keeps what the message looked like before the edit started.
type editSession struct {
	snapshot domain.OutboundMessage
}

func validateEdit(ref domain.MessageRef, in domain.EditIntent) error {
	if ref.ID <= 0 {
		return domain.NewValidationError("message", "only sent messages can be edited")
	}
	src, ok := domain.SourceOf(in.Media)
	if !ok {
		return domain.NewValidationError("media", "edit needs a photo, video or document")
	}
	if src.Empty() || !src.Valid() {
		return domain.NewValidationError("media", "exactly one file source is required")
	}
	if utf8.RuneCountInString(in.Caption) > domain.MaxCaptionLength {
		return domain.NewValidationError("caption", fmt.Sprintf("longer than %d characters", domain.MaxCaptionLength))
	}
	return nil
}

func (e *Engine) startEdit(ref domain.MessageRef, in domain.EditIntent) error {
	if _, busy := e.editing[ref]; busy {
		return domain.ErrAlreadyEditing
	}
	if err := validateEdit(ref, in); err != nil {
		return err
	}

	ctx, cancel := e.storeCtx()
	msg, err := e.deps.Messages.LoadMessage(ctx, ref)
	cancel()
	if err != nil {
		return fmt.Errorf("load message %s: %w", ref, err)
	}
	if msg.State != domain.StateSent {
		return domain.NewValidationError("message", "message is not sent yet")
	}

	snapshot := msg.Clone()
	draft, thumbReady := e.resolveCachedMedia(in.Media)
	msg.Media = draft
	msg.Text = in.Caption
	msg.Entities = append([]domain.Entity(nil), in.Entities...)
	msg.AttachPath = attachPath(draft)
	msg.State = domain.StateEditing

	t := &tracked{msg: msg, edit: &editSession{snapshot: snapshot}}
	t.upload = newPendingUpload(t, requestItem(msg), thumbReady)

	// The stored row keeps the confirmed content until the server accepts
	// the edit. Only the state changes.
	marked := snapshot.Clone()
	marked.State = domain.StateEditing
	ctx, cancel = e.storeCtx()
	err = e.deps.Messages.PutMessages(ctx, []domain.OutboundMessage{marked})
	cancel()
	if err != nil {
		return fmt.Errorf("persist edit state: %w", err)
	}

	e.editing[ref] = t
	e.publishState(t)
	e.logger.Debug("edit started", "ref", ref.String(), "kind", domain.KindOf(draft))
	if t.upload.waiting() {
		e.bindHead(t.upload)
		return nil
	}
	e.startEditFlight(t)
	return nil
}

func (e *Engine) startEditFlight(t *tracked) {
	e.nextFlight++
	f := &flight{id: e.nextFlight, edit: true, members: []*tracked{t}}
	f.req = domain.SendRequest{
		Kind:   domain.RequestEditMedia,
		Peer:   t.msg.Peer,
		EditID: t.msg.ServerID,
		Items:  []domain.RequestItem{*t.upload.Item},
	}
	t.flight = f
	e.startFlight(f)
}

func (e *Engine) finishEdit(t *tracked, resp domain.SendResponse) {
	for _, sm := range resp.Messages {
		if sm.ID != t.msg.ServerID && len(resp.Messages) > 1 {
			continue
		}
		if sm.Remote != nil {
			r := sm.Remote.Clone()
			t.msg.Remote = &r
			t.msg.Media = domain.WithRemote(t.msg.Media, r)
		}
		break
	}
	t.msg.State = domain.StateSent
	t.flight = nil
	delete(e.editing, t.msg.Ref())

	ctx, cancel := e.storeCtx()
	if err := e.deps.Messages.PutMessages(ctx, []domain.OutboundMessage{t.msg.Clone()}); err != nil {
		e.logger.Error("persist edited message failed", "server_id", t.msg.ServerID, "error", err)
	}
	cancel()

	e.rememberSentFile(t.msg)
	e.publish(events.TopicMessageEdited, events.MessageEdited{Message: t.msg.Clone()})
	e.deps.Metrics.RecordEdit(true)
	e.logger.Info("message edited", "dialog", t.msg.DialogID(), "id", t.msg.ServerID)
}

// rollbackEdit restores the snapshot exactly as it was before the edit.
func (e *Engine) rollbackEdit(t *tracked, cause error) {
	e.cancelMedia(e.pending.unbind(t.upload))
	ref := t.msg.Ref()
	delete(e.editing, ref)
	t.flight = nil

	restored := t.edit.snapshot.Clone()
	t.msg = restored
	ctx, cancel := e.storeCtx()
	if err := e.deps.Messages.PutMessages(ctx, []domain.OutboundMessage{restored.Clone()}); err != nil {
		e.logger.Error("persist edit rollback failed", "ref", ref.String(), "error", err)
	}
	cancel()

	reason := domain.ErrCancelled.Error()
	if cause != nil && !errors.Is(cause, domain.ErrCancelled) {
		reason = cause.Error()
	}
	e.publish(events.TopicEditRolledBack, events.EditRolledBack{Message: restored.Clone(), Reason: reason})
	e.deps.Metrics.RecordEdit(false)
	e.logger.Warn("edit rolled back", "ref", ref.String(), "reason", reason)
}

func (e *Engine) cancelEdit(t *tracked) {
	if t.flight != nil {
		e.abortFlight(t.flight)
	}
	e.rollbackEdit(t, domain.ErrCancelled)
}
