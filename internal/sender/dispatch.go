package sender

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/skobkin/courier/internal/domain"
	"github.com/skobkin/courier/internal/events"
)

// flight is one request on its way to the server, carrying one or more
// messages.
type flight struct {
	id        uint64
	edit      bool
	req       domain.SendRequest
	members   []*tracked
	batch     *GroupBatch
	handle    Handle
	started   bool
	holder    *tracked
	refreshes int
	startedAt time.Time
}

func (f *flight) has(t *tracked) bool {
	for _, m := range f.members {
		if m == t {
			return true
		}
	}
	return false
}

func (e *Engine) newFlight(members []*tracked, batch *GroupBatch) *flight {
	e.nextFlight++
	f := &flight{id: e.nextFlight, members: members, batch: batch}
	f.req = buildRequest(members, batch != nil)
	for _, t := range members {
		t.flight = f
	}
	return f
}

func buildRequest(members []*tracked, grouped bool) domain.SendRequest {
	first := members[0].msg
	req := domain.SendRequest{
		Peer:         first.Peer,
		ReplyTo:      first.ReplyTo,
		Silent:       first.Silent,
		ScheduleDate: first.ScheduleDate,
	}
	if td, ok := first.Media.(domain.TextDraft); ok {
		req.NoWebpage = td.NoWebpage
	}
	for _, t := range members {
		req.Items = append(req.Items, *t.upload.Item)
	}

	switch domain.KindOf(first.Media) {
	case domain.MediaText:
		req.Kind = domain.RequestText
	case domain.MediaForward:
		req.Kind = domain.RequestForward
	case domain.MediaInlineResult:
		req.Kind = domain.RequestInlineResult
	default:
		req.Kind = domain.RequestMedia
		if grouped && len(members) > 1 {
			req.Kind = domain.RequestMultiMedia
		}
	}
	return req
}

func (e *Engine) bindHead(pu *PendingUpload) {
	s := pu.head()
	if s == nil {
		return
	}
	if e.pending.bind(s.key, s.op, pu) {
		e.issue(s)
	}
}

func (e *Engine) issue(s *step) {
	e.logger.Debug("media step issued", "op", s.op.String(), "key", s.key)
	switch s.op {
	case opUpload:
		e.deps.Media.Upload(s.key, s.source, s.kind)
	case opDownload:
		e.deps.Media.Download(s.key, s.source)
	case opTranscode:
		e.deps.Media.Transcode(s.key, s.source)
	}
}

func (e *Engine) cancelMedia(orphaned map[string]stepOp) {
	for key, op := range orphaned {
		switch op {
		case opTranscode:
			e.deps.Media.CancelTranscode(key)
		case opUpload, opDownload:
			e.deps.Media.Cancel(key)
		}
	}
}

func (e *Engine) onReady(ev ResourceReady) {
	if strings.HasPrefix(ev.Key, groupKeyPrefix) {
		return
	}
	bound := e.pending.resolve(ev.Key)
	if len(bound) == 0 {
		e.logger.Debug("ready for unknown key", "key", ev.Key)
		return
	}
	for _, pu := range bound {
		e.advance(pu, ev.Key, ev.Handle)
	}
}

func (e *Engine) onFailed(ev ResourceFailed) {
	if strings.HasPrefix(ev.Key, groupKeyPrefix) {
		return
	}
	bound := e.pending.resolve(ev.Key)
	if len(bound) == 0 {
		return
	}
	err := ev.Err
	if err == nil {
		err = errors.New("unknown error")
	}
	if !errors.Is(err, domain.ErrMediaPreparation) {
		err = fmt.Errorf("%w: %s: %w", domain.ErrMediaPreparation, ev.Key, err)
	}
	e.logger.Warn("media failed", "key", ev.Key, "bound", len(bound), "error", err)
	for _, pu := range bound {
		if !pu.owner.live() {
			continue
		}
		e.failMedia(pu.owner, err)
	}
}

// advance moves pu past the step that produced key. Download and transcode
// results turn into an upload of the produced file.
func (e *Engine) advance(pu *PendingUpload, key string, h domain.MediaHandle) {
	t := pu.owner
	s := pu.head()
	if !t.live() || s == nil || s.key != key {
		return
	}
	switch s.op {
	case opDownload, opTranscode:
		if h.LocalPath == "" {
			e.failMedia(t, fmt.Errorf("%w: %s %s produced no file", domain.ErrMediaPreparation, s.op, key))
			return
		}
		next := &step{op: opUpload, key: h.LocalPath, source: h.LocalPath, role: s.role, kind: s.kind}
		pu.steps[0] = next
	case opUpload:
		if h.File == nil {
			e.failMedia(t, fmt.Errorf("%w: upload of %s returned no file", domain.ErrMediaPreparation, key))
			return
		}
		pu.fill(s.role, h.File)
		pu.steps = pu.steps[1:]
	}

	if pu.waiting() {
		e.bindHead(pu)
		return
	}
	e.uploading.remove(t.msg.LocalID)
	e.updateGauges()
	e.markFilled(t)
}

func (e *Engine) markFilled(t *tracked) {
	if t.edit != nil {
		e.startEditFlight(t)
		return
	}
	e.setState(t, domain.StateDispatched)
	if t.batch != nil {
		e.checkBatch(t.batch)
		return
	}
	e.schedule(e.newFlight([]*tracked{t}, nil))
}

// schedule starts f unless an earlier message of the same dialog is still
// gated, in which case f waits behind the latest such message.
func (e *Engine) schedule(f *flight) {
	if holder := e.orderGate(f); holder != nil {
		f.holder = holder
		holder.followUps = append(holder.followUps, f)
		e.logger.Debug("request deferred", "flight", f.id, "behind", holder.msg.LocalID)
		return
	}
	e.startFlight(f)
}

func (e *Engine) orderGate(f *flight) *tracked {
	if f.edit {
		return nil
	}
	list := e.dialogs[f.req.Peer.DialogID()]
	first := -1
	for i, t := range list {
		if f.has(t) {
			first = i
			break
		}
	}
	for i := first - 1; i >= 0; i-- {
		if list[i].gated() && !f.has(list[i]) {
			return list[i]
		}
	}
	return nil
}

func (e *Engine) startFlight(f *flight) {
	if !f.edit {
		for _, t := range f.members {
			if e.sending.has(t.msg.LocalID) {
				e.logger.Warn("duplicate dispatch ignored", "local_id", t.msg.LocalID)
				return
			}
		}
	}
	f.holder = nil
	f.started = true
	f.startedAt = time.Now()
	e.flights[f.id] = f
	if !f.edit {
		for _, t := range f.members {
			e.sending.add(t)
		}
	}
	e.transmit(f)
	e.updateGauges()
}

// transmit hands f to the transport. Secret chat requests are wrapped first.
func (e *Engine) transmit(f *flight) {
	req := f.req
	if req.Peer.IsSecret() && e.deps.Envelope != nil {
		wrapped, err := e.deps.Envelope.Wrap(req)
		if err != nil {
			delete(e.flights, f.id)
			e.failFlight(f, fmt.Errorf("wrap secret chat request: %w", err))
			return
		}
		req = wrapped
	}
	id := f.id
	e.logger.Debug("request sent", "flight", id, "kind", req.Kind.String(), "items", len(req.Items))
	f.handle = e.deps.Transport.Send(req,
		func() { e.post(func() { e.onAck(id) }) },
		func(resp domain.SendResponse, err error) {
			e.Deliver(TransportResult{Flight: id, Response: resp, Err: err})
		},
	)
}

func (e *Engine) onAck(id uint64) {
	f, ok := e.flights[id]
	if !ok || f.edit {
		return
	}
	for _, t := range f.members {
		if t.msg.Acked {
			continue
		}
		t.msg.Acked = true
		randomID := t.msg.RandomID
		e.enqueueWrite("mark_acked", func(ctx context.Context) error {
			return e.deps.Messages.MarkAcked(ctx, randomID)
		})
		e.publish(events.TopicMessageAcked, events.MessageAcked{Ref: t.msg.Ref(), RandomID: randomID})
	}
}

func (e *Engine) onResult(ev TransportResult) {
	f, ok := e.flights[ev.Flight]
	if !ok {
		return
	}
	if ev.Err != nil && errors.Is(ev.Err, domain.ErrStaleMediaReference) {
		e.refresh(f, ev.Err)
		return
	}
	delete(e.flights, f.id)
	defer e.updateGauges()
	if ev.Err != nil {
		e.logger.Warn("request failed", "flight", f.id, "kind", f.req.Kind.String(), "error", ev.Err)
		e.failFlight(f, ev.Err)
		return
	}
	if f.edit {
		e.finishEdit(f.members[0], ev.Response)
		return
	}
	e.reconcile(f, ev.Response)
}

// reconcile matches server messages to members by random id.
func (e *Engine) reconcile(f *flight, resp domain.SendResponse) {
	ctx, cancel := e.storeCtx()
	readMax, err := e.deps.Messages.ReadOutboxMax(ctx, f.req.Peer.DialogID())
	cancel()
	if err != nil {
		e.logger.Warn("read outbox max unavailable", "dialog", f.req.Peer.DialogID(), "error", err)
	}
	if f.batch != nil {
		e.forgetGroup(f.batch)
		f.batch.flight = nil
	}

	for _, t := range f.members {
		sm, ok := resp.ByRandomID(t.msg.RandomID)
		if !ok && len(f.members) == 1 && len(resp.Messages) == 1 && resp.Messages[0].RandomID == 0 {
			sm, ok = resp.Messages[0], true
		}
		t.batch = nil
		if !ok || sm.ID == 0 {
			e.failMessage(t, &domain.TransportError{Type: "MISSING_MESSAGE", Err: fmt.Errorf("no server message for random id %d", t.msg.RandomID)})
			continue
		}
		e.completeSent(t, f, sm, readMax)
	}
}

func (e *Engine) completeSent(t *tracked, f *flight, sm domain.ServerMessage, readMax int64) {
	oldID := t.msg.LocalID
	t.msg.ServerID = sm.ID
	t.msg.State = domain.StateSent
	t.msg.Acked = true
	t.msg.ErrorText = ""
	t.flight = nil
	if !sm.Date.IsZero() {
		t.msg.Date = sm.Date
	}
	if sm.Remote != nil {
		r := sm.Remote.Clone()
		t.msg.Remote = &r
		t.msg.Media = domain.WithRemote(t.msg.Media, r)
	}
	if readMax >= sm.ID {
		t.msg.Unread = false
	}

	ctx, cancel := e.storeCtx()
	if err := e.deps.Messages.UpdateIdentity(ctx, t.msg.DialogID(), t.msg.RandomID, oldID, sm.ID); err != nil {
		e.logger.Error("update message identity failed", "local_id", oldID, "server_id", sm.ID, "error", err)
	}
	if err := e.deps.Messages.PutMessages(ctx, []domain.OutboundMessage{t.msg.Clone()}); err != nil {
		e.logger.Error("persist sent message failed", "server_id", sm.ID, "error", err)
	}
	cancel()

	e.rememberSentFile(t.msg)
	e.untrack(t)
	e.publish(events.TopicMessageSent, events.MessageSent{
		Dialog:   t.msg.DialogID(),
		OldID:    oldID,
		NewID:    sm.ID,
		RandomID: t.msg.RandomID,
		Message:  t.msg.Clone(),
	})
	e.deps.Metrics.RecordSent(string(domain.KindOf(t.msg.Media)), time.Since(f.startedAt).Seconds())
	e.logger.Info("message sent", "dialog", t.msg.DialogID(), "old_id", oldID, "new_id", sm.ID)
	e.releaseFollowUps(t)
}

func (e *Engine) rememberSentFile(m domain.OutboundMessage) {
	if e.deps.SentFiles == nil || m.AttachPath == "" || m.Remote == nil {
		return
	}
	path, remote := m.AttachPath, m.Remote.Clone()
	e.enqueueWrite("remember_sent_file", func(ctx context.Context) error {
		return e.deps.SentFiles.Remember(ctx, path, remote)
	})
}

// refresh re-reads the parent objects of every remote file in f and resends
// it with the same ids.
func (e *Engine) refresh(f *flight, cause error) {
	parents := make(map[int]domain.RemoteFile)
	for i, t := range f.members {
		if t.upload == nil || len(t.upload.Parents) == 0 {
			continue
		}
		parents[i] = t.upload.Parents[0].Clone()
	}
	if len(parents) == 0 || e.deps.Resolver == nil {
		delete(e.flights, f.id)
		e.failFlight(f, cause)
		return
	}
	if limit := e.opts.MaxReferenceRefreshes; limit > 0 && f.refreshes >= limit {
		delete(e.flights, f.id)
		e.failFlight(f, fmt.Errorf("gave up after %d reference refreshes: %w", f.refreshes, cause))
		return
	}
	f.refreshes++
	e.deps.Metrics.RecordReferenceRefresh()
	e.logger.Info("refreshing media references", "flight", f.id, "attempt", f.refreshes, "files", len(parents))

	id, resolver, ctx := f.id, e.deps.Resolver, e.ctx
	go func() {
		fresh := make(map[int]domain.RemoteFile, len(parents))
		for i, parent := range parents {
			r, err := resolver.RefreshReference(ctx, parent)
			if err != nil {
				e.post(func() { e.onRefreshed(id, nil, err) })
				return
			}
			fresh[i] = r
		}
		e.post(func() { e.onRefreshed(id, fresh, nil) })
	}()
}

func (e *Engine) onRefreshed(id uint64, fresh map[int]domain.RemoteFile, err error) {
	f, ok := e.flights[id]
	if !ok {
		return
	}
	if err != nil {
		delete(e.flights, f.id)
		e.failFlight(f, fmt.Errorf("refresh media reference: %w", err))
		e.updateGauges()
		return
	}
	for i, r := range fresh {
		if i >= len(f.members) || i >= len(f.req.Items) || f.req.Items[i].Media == nil {
			continue
		}
		t := f.members[i]
		t.upload.Parents[0] = r.Clone()
		media := *f.req.Items[i].Media
		media.Draft = domain.WithRemote(media.Draft, r)
		f.req.Items[i].Media = &media
		t.msg.Media = media.Draft
	}
	e.transmit(f)
}

func (e *Engine) failFlight(f *flight, err error) {
	if f.edit {
		e.rollbackEdit(f.members[0], err)
		return
	}
	if f.batch != nil {
		e.forgetGroup(f.batch)
		f.batch.flight = nil
	}
	for _, t := range f.members {
		t.batch = nil
		e.failMessage(t, err)
	}
}

func (e *Engine) failMedia(t *tracked, err error) {
	switch {
	case t.edit != nil:
		e.rollbackEdit(t, err)
	case t.batch != nil:
		e.failBatch(t.batch, err)
	default:
		e.failMessage(t, err)
	}
}

// failMessage is terminal for this attempt. The message stays known so it can
// be retried.
func (e *Engine) failMessage(t *tracked, err error) {
	e.cancelMedia(e.pending.unbind(t.upload))
	e.sending.remove(t.msg.LocalID)
	e.uploading.remove(t.msg.LocalID)
	e.untrackOrder(t)
	t.flight = nil
	t.msg.State = domain.StateError
	t.msg.ErrorText = err.Error()

	ctx, cancel := e.storeCtx()
	if perr := e.deps.Messages.MarkSendError(ctx, t.msg.Clone()); perr != nil {
		e.logger.Error("persist send error failed", "local_id", t.msg.LocalID, "error", perr)
	}
	cancel()

	e.publish(events.TopicMessageFailed, events.MessageFailed{Message: t.msg.Clone(), Reason: err.Error()})
	e.deps.Metrics.RecordFailed(failureReason(err))
	e.logger.Warn("message failed", "local_id", t.msg.LocalID, "dialog", t.msg.DialogID(), "error", err)
	e.releaseFollowUps(t)
}

// releaseFollowUps re-schedules waiting requests in arrival order.
func (e *Engine) releaseFollowUps(t *tracked) {
	pending := t.followUps
	t.followUps = nil
	for _, f := range pending {
		f.holder = nil
		if len(f.members) == 0 {
			continue
		}
		e.schedule(f)
	}
}

// abortFlight withdraws f wherever it is: cancelled at the transport when
// started, removed from its holder otherwise.
func (e *Engine) abortFlight(f *flight) {
	if f.started {
		e.deps.Transport.Cancel(f.handle)
		delete(e.flights, f.id)
	} else if h := f.holder; h != nil {
		for i, other := range h.followUps {
			if other == f {
				h.followUps = append(h.followUps[:i:i], h.followUps[i+1:]...)
				break
			}
		}
		f.holder = nil
	}
	for _, m := range f.members {
		if m.flight == f {
			m.flight = nil
		}
		if !f.edit {
			e.sending.remove(m.msg.LocalID)
		}
	}
	e.updateGauges()
}

func (e *Engine) retry(ref domain.MessageRef) error {
	t, err := e.lookupForRetry(ref)
	if err != nil {
		return err
	}
	if t.msg.State != domain.StateError {
		if e.sending.has(t.msg.LocalID) {
			return domain.ErrAlreadySending
		}
		return fmt.Errorf("%w: %s", domain.ErrNotRetryable, t.msg.State)
	}

	batch := []*tracked{t}
	if t.msg.GroupID != 0 {
		batch = e.erroredSiblings(t)
	}
	for i, m := range batch {
		m.msg.Media, _ = e.resolveCachedMedia(m.msg.Media)
		m.msg.Date = time.Now()
		if err := e.launch(m, m.msg.GroupID != 0 && i == len(batch)-1, false, false); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) lookupForRetry(ref domain.MessageRef) (*tracked, error) {
	if t := e.messages[ref.ID]; t != nil && t.msg.DialogID() == ref.Dialog {
		return t, nil
	}
	ctx, cancel := e.storeCtx()
	msg, err := e.deps.Messages.LoadMessage(ctx, ref)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("load message %s: %w", ref, err)
	}
	if msg.State != domain.StateError {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotRetryable, msg.State)
	}
	t := &tracked{msg: msg}
	e.messages[msg.LocalID] = t
	return t, nil
}

// erroredSiblings returns every errored member of t's group in creation
// order, loading the ones not held in memory.
func (e *Engine) erroredSiblings(t *tracked) []*tracked {
	out := []*tracked{t}
	seen := map[int64]bool{t.msg.LocalID: true}
	for _, other := range e.messages {
		if other.msg.GroupID == t.msg.GroupID && other.msg.DialogID() == t.msg.DialogID() && other.msg.State == domain.StateError && !seen[other.msg.LocalID] {
			out = append(out, other)
			seen[other.msg.LocalID] = true
		}
	}
	ctx, cancel := e.storeCtx()
	stored, err := e.deps.Messages.LoadErrored(ctx, t.msg.DialogID(), t.msg.GroupID)
	cancel()
	if err != nil {
		e.logger.Warn("load errored group members failed", "group_id", t.msg.GroupID, "error", err)
	}
	for _, msg := range stored {
		if seen[msg.LocalID] {
			continue
		}
		other := &tracked{msg: msg}
		e.messages[msg.LocalID] = other
		out = append(out, other)
		seen[msg.LocalID] = true
	}
	// local ids decrease with creation time
	sort.Slice(out, func(i, j int) bool { return out[i].msg.LocalID > out[j].msg.LocalID })
	if len(out) > e.opts.GroupBatchSize {
		out = out[:e.opts.GroupBatchSize]
	}
	return out
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrMediaPreparation):
		return "media"
	case errors.Is(err, domain.ErrStaleMediaReference):
		return "stale_reference"
	case errors.Is(err, domain.ErrTransport):
		return "transport"
	default:
		return "other"
	}
}
