package sender

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/skobkin/courier/internal/domain"
	"github.com/skobkin/courier/internal/events"
)

func (e *Engine) validate(in domain.SendIntent) error {
	if in.Peer.IsZero() {
		return domain.NewValidationError("peer", "recipient is required")
	}
	text := strings.TrimSpace(in.Text)

	switch m := in.Media.(type) {
	case nil, domain.TextDraft:
		if text == "" {
			return domain.NewValidationError("text", "message is empty")
		}
		if utf8.RuneCountInString(in.Text) > domain.MaxTextLength {
			return domain.NewValidationError("text", fmt.Sprintf("longer than %d characters", domain.MaxTextLength))
		}
	case domain.PhotoDraft, domain.VideoDraft, domain.DocumentDraft:
		src, _ := domain.SourceOf(m)
		if src.Empty() {
			return domain.NewValidationError("media", "caption without media")
		}
		if !src.Valid() {
			return domain.NewValidationError("media", "exactly one file source is required")
		}
		if utf8.RuneCountInString(in.Text) > domain.MaxCaptionLength {
			return domain.NewValidationError("caption", fmt.Sprintf("longer than %d characters", domain.MaxCaptionLength))
		}
	case domain.ContactDraft:
		if strings.TrimSpace(m.Phone) == "" {
			return domain.NewValidationError("contact", "phone number is required")
		}
	case domain.LocationDraft:
		if math.Abs(m.Lat) > 90 || math.Abs(m.Long) > 180 {
			return domain.NewValidationError("location", "coordinates out of range")
		}
	case domain.PollDraft:
		if strings.TrimSpace(m.Question) == "" {
			return domain.NewValidationError("poll", "question is required")
		}
		if len(m.Answers) < domain.MinPollAnswers || len(m.Answers) > domain.MaxPollAnswers {
			return domain.NewValidationError("poll", fmt.Sprintf("needs %d to %d answers", domain.MinPollAnswers, domain.MaxPollAnswers))
		}
		if m.Quiz && (m.CorrectAnswer < 0 || m.CorrectAnswer >= len(m.Answers)) {
			return domain.NewValidationError("poll", "quiz needs a valid correct answer")
		}
	case domain.GameDraft:
		if strings.TrimSpace(m.ShortName) == "" {
			return domain.NewValidationError("game", "short name is required")
		}
	case domain.DiceDraft:
		if strings.TrimSpace(m.Emoticon) == "" {
			return domain.NewValidationError("dice", "emoticon is required")
		}
	case domain.ForwardDraft:
		if m.From.IsZero() {
			return domain.NewValidationError("forward", "source peer is required")
		}
		if len(m.MessageIDs) == 0 {
			return domain.NewValidationError("forward", "no messages to forward")
		}
	case domain.InlineResultDraft:
		if strings.TrimSpace(m.ResultID) == "" {
			return domain.NewValidationError("inline_result", "result id is required")
		}
	default:
		return domain.NewValidationError("media", fmt.Sprintf("unsupported media %T", m))
	}

	if in.Peer.IsSecret() {
		switch in.Media.(type) {
		case domain.PollDraft, domain.GameDraft, domain.InlineResultDraft, domain.ForwardDraft:
			return domain.NewValidationError("media", fmt.Sprintf("%s is not allowed in secret chats", domain.KindOf(in.Media)))
		}
	}

	if in.GroupID != 0 {
		if !domain.IsFileDraft(in.Media) {
			return domain.NewValidationError("group", "only photos, videos and documents can be grouped")
		}
		if b := e.groups[in.GroupID]; b != nil {
			switch {
			case b.Dialog != in.Peer.DialogID():
				return domain.NewValidationError("group", "group belongs to another dialog")
			case b.FinalID != 0 && !b.capped:
				return domain.NewValidationError("group", "group is already finalized")
			}
		}
	}

	if e.deps.Policy != nil {
		if err := e.deps.Policy(in.Peer, in.Media); err != nil {
			return domain.NewValidationError("policy", err.Error())
		}
	}
	return nil
}

func (e *Engine) materialize(in domain.SendIntent) ([]int64, error) {
	if err := e.validate(in); err != nil {
		return nil, err
	}
	if fwd, ok := in.Media.(domain.ForwardDraft); ok {
		return e.materializeForward(in, fwd)
	}

	draft, thumbReady := e.resolveCachedMedia(in.Media)
	t := &tracked{msg: domain.OutboundMessage{
		LocalID:      e.allocLocalID(),
		RandomID:     newRandomID(),
		Peer:         in.Peer,
		GroupID:      in.GroupID,
		Text:         in.Text,
		Entities:     append([]domain.Entity(nil), in.Entities...),
		ReplyTo:      in.ReplyTo,
		Silent:       in.Silent,
		ScheduleDate: in.ScheduleDate,
		Media:        draft,
		AttachPath:   attachPath(draft),
		State:        domain.StateDrafting,
		Unread:       true,
		Date:         time.Now(),
	}}
	if err := e.launch(t, in.FinalInGroup, thumbReady, true); err != nil {
		return nil, err
	}
	return []int64{t.msg.LocalID}, nil
}

// materializeForward creates one message per forwarded id, all carried by a
// single request.
func (e *Engine) materializeForward(in domain.SendIntent, fwd domain.ForwardDraft) ([]int64, error) {
	now := time.Now()
	members := make([]*tracked, 0, len(fwd.MessageIDs))
	msgs := make([]domain.OutboundMessage, 0, len(fwd.MessageIDs))
	for _, id := range fwd.MessageIDs {
		draft := domain.ForwardDraft{From: fwd.From, MessageIDs: []int64{id}, DropAuthor: fwd.DropAuthor}
		t := &tracked{msg: domain.OutboundMessage{
			LocalID:      e.allocLocalID(),
			RandomID:     newRandomID(),
			Peer:         in.Peer,
			Silent:       in.Silent,
			ScheduleDate: in.ScheduleDate,
			Media:        draft,
			State:        domain.StateDispatched,
			Unread:       true,
			Date:         now,
		}}
		t.upload = newPendingUpload(t, requestItem(t.msg), false)
		members = append(members, t)
		msgs = append(msgs, t.msg.Clone())
	}

	ctx, cancel := e.storeCtx()
	err := e.deps.Messages.PutMessages(ctx, msgs)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("persist forwarded messages: %w", err)
	}

	ids := make([]int64, 0, len(members))
	for _, t := range members {
		e.track(t)
		ids = append(ids, t.msg.LocalID)
		e.publish(events.TopicMessageCreated, events.MessageCreated{Message: t.msg.Clone()})
		e.deps.Metrics.RecordCreated(string(domain.MediaForward))
	}
	e.schedule(e.newFlight(members, nil))
	return ids, nil
}

// launch builds the request skeleton, persists the message and either binds
// it to its first media step or hands it to dispatch.
func (e *Engine) launch(t *tracked, final, thumbReady, created bool) error {
	t.upload = newPendingUpload(t, requestItem(t.msg), thumbReady)
	if t.upload.waiting() {
		t.msg.State = domain.StateAwaitingMedia
	} else {
		t.msg.State = domain.StateDrafting
	}
	t.msg.ErrorText = ""

	ctx, cancel := e.storeCtx()
	err := e.deps.Messages.PutMessages(ctx, []domain.OutboundMessage{t.msg.Clone()})
	cancel()
	if err != nil {
		return fmt.Errorf("persist outbound message: %w", err)
	}

	e.track(t)
	if t.msg.GroupID != 0 {
		e.addToGroup(t, final)
	}
	if created {
		e.publish(events.TopicMessageCreated, events.MessageCreated{Message: t.msg.Clone()})
		e.deps.Metrics.RecordCreated(string(domain.KindOf(t.msg.Media)))
	} else {
		e.publishState(t)
	}
	e.logger.Debug("message materialized",
		"local_id", t.msg.LocalID,
		"dialog", t.msg.DialogID(),
		"kind", domain.KindOf(t.msg.Media),
		"state", t.msg.State.String(),
	)

	if t.upload.waiting() {
		e.uploading.add(t)
		e.bindHead(t.upload)
		e.updateGauges()
		return nil
	}
	e.markFilled(t)
	return nil
}

// resolveCachedMedia swaps a local file for a previously uploaded copy and
// picks up a thumbnail prepared in advance. The second result reports that
// the thumbnail needs no transcoding.
func (e *Engine) resolveCachedMedia(d domain.MediaDraft) (domain.MediaDraft, bool) {
	src, ok := domain.SourceOf(d)
	if !ok || src.Path == "" || src.Remote != nil {
		return d, false
	}
	if e.deps.SentFiles != nil {
		ctx, cancel := e.storeCtx()
		remote, found, err := e.deps.SentFiles.Lookup(ctx, src.Path)
		cancel()
		switch {
		case err != nil:
			e.logger.Warn("sent file lookup failed", "path", src.Path, "error", err)
		case found:
			e.logger.Debug("reusing uploaded file", "path", src.Path, "file_id", remote.ID)
			return domain.WithRemote(d, remote), false
		}
	}
	if e.deps.Artifacts == nil || domain.ThumbOf(d) != "" {
		return d, false
	}
	if _, wantsThumb := d.(domain.PhotoDraft); wantsThumb {
		return d, false
	}
	if thumb, ok := e.deps.Artifacts.Await(src.Path, e.opts.ArtifactWait); ok {
		return domain.WithThumb(d, thumb), true
	}
	return d, false
}

func (e *Engine) track(t *tracked) {
	e.messages[t.msg.LocalID] = t
	d := t.msg.DialogID()
	e.dialogs[d] = append(e.dialogs[d], t)
}

func (e *Engine) untrackOrder(t *tracked) {
	d := t.msg.DialogID()
	list := e.dialogs[d]
	for i, other := range list {
		if other == t {
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(e.dialogs, d)
		return
	}
	e.dialogs[d] = list
}

func (e *Engine) untrack(t *tracked) {
	delete(e.messages, t.msg.LocalID)
	e.sending.remove(t.msg.LocalID)
	e.uploading.remove(t.msg.LocalID)
	e.untrackOrder(t)
}

func requestItem(m domain.OutboundMessage) *domain.RequestItem {
	item := &domain.RequestItem{
		LocalID:  m.LocalID,
		RandomID: m.RandomID,
		Message:  m.Text,
		Entities: append([]domain.Entity(nil), m.Entities...),
	}
	if _, plain := m.Media.(domain.TextDraft); m.Media != nil && !plain {
		item.Media = &domain.InputMedia{Draft: m.Media}
	}
	return item
}

func attachPath(d domain.MediaDraft) string {
	src, _ := domain.SourceOf(d)
	return src.Path
}

func (e *Engine) publishState(t *tracked) {
	e.publish(events.TopicMessageState, events.MessageStateChanged{Ref: t.msg.Ref(), State: t.msg.State})
}

func (e *Engine) setState(t *tracked, s domain.State) {
	if t.msg.State == s {
		return
	}
	t.msg.State = s
	e.publishState(t)
}
