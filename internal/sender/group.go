package sender

import (
	"fmt"

	"github.com/skobkin/courier/internal/domain"
)

const groupKeyPrefix = "group_"

// groupKey names the pending record of one batch. Batches after the first of
// an album carry their part number.
func groupKey(id int64, part int) string {
	if part == 0 {
		return fmt.Sprintf("%s%d", groupKeyPrefix, id)
	}
	return fmt.Sprintf("%s%d_%d", groupKeyPrefix, id, part)
}

// GroupBatch collects the members of one album. It is sent as a single
// multi-media request once every member is filled and the final member is
// known. An album longer than the batch size is split into consecutive
// batches sharing the group id.
type GroupBatch struct {
	ID      int64
	Dialog  int64
	Part    int
	Members []*tracked
	FinalID int64

	// capped is set when the batch was closed by reaching the size limit
	// rather than by an explicit final member.
	capped bool
	flight *flight
	record *PendingUpload
}

func (b *GroupBatch) key() string {
	return groupKey(b.ID, b.Part)
}

func (b *GroupBatch) eligible() bool {
	if b.FinalID == 0 || len(b.Members) == 0 {
		return false
	}
	final := false
	for _, m := range b.Members {
		if m.msg.LocalID == b.FinalID {
			final = true
		}
		if m.msg.State != domain.StateDispatched {
			return false
		}
		if m.upload != nil && m.upload.Item != nil && !m.upload.Item.Media.Filled() {
			return false
		}
	}
	return final
}

// addToGroup appends t to the open batch of its album. The member that fills
// a batch to the size limit becomes its final member, and the next member of
// the album opens a new batch.
func (e *Engine) addToGroup(t *tracked, final bool) {
	b := e.groups[t.msg.GroupID]
	if b == nil || b.capped {
		part := 0
		if b != nil {
			part = b.Part + 1
		}
		b = &GroupBatch{ID: t.msg.GroupID, Dialog: t.msg.DialogID(), Part: part}
		b.record = &PendingUpload{Type: domain.ResourceGroup, batch: b}
		e.pending.bind(b.key(), opGroup, b.record)
		e.groups[b.ID] = b
	}
	b.Members = append(b.Members, t)
	t.batch = b
	switch {
	case final:
		b.FinalID = t.msg.LocalID
	case len(b.Members) >= e.opts.GroupBatchSize:
		b.FinalID = t.msg.LocalID
		b.capped = true
		e.logger.Debug("group batch full", "group_id", b.ID, "part", b.Part, "members", len(b.Members))
	}
}

// forgetGroup drops b from the open batches unless a later part already took
// its place.
func (e *Engine) forgetGroup(b *GroupBatch) {
	if e.groups[b.ID] == b {
		delete(e.groups, b.ID)
	}
}

// checkBatch dispatches b when eligible. Resolving the group key makes the
// conversion happen once.
func (e *Engine) checkBatch(b *GroupBatch) {
	if b.flight != nil || !b.eligible() {
		return
	}
	if len(e.pending.resolve(b.key())) == 0 {
		return
	}
	members := append([]*tracked(nil), b.Members...)
	f := e.newFlight(members, b)
	b.flight = f
	e.logger.Debug("group batch ready", "group_id", b.ID, "part", b.Part, "members", len(members))
	e.schedule(f)
}

// failBatch moves every member to error. Nothing of the batch is sent.
func (e *Engine) failBatch(b *GroupBatch, err error) {
	e.pending.resolve(b.key())
	e.forgetGroup(b)
	if b.flight != nil {
		e.abortFlight(b.flight)
		b.flight = nil
	}
	members := append([]*tracked(nil), b.Members...)
	for _, m := range members {
		m.batch = nil
	}
	for _, m := range members {
		if m.msg.State.Terminal() || m.msg.State == domain.StateError {
			continue
		}
		e.failMessage(m, err)
	}
}

// removeFromBatch detaches a cancelled member. The last remaining member
// becomes final when the final one leaves, and an in-flight batch is
// re-dispatched without it.
func (e *Engine) removeFromBatch(t *tracked) {
	b := t.batch
	t.batch = nil
	for i, m := range b.Members {
		if m == t {
			b.Members = append(b.Members[:i:i], b.Members[i+1:]...)
			break
		}
	}

	if len(b.Members) == 0 {
		e.pending.resolve(b.key())
		e.forgetGroup(b)
		if b.flight != nil {
			e.abortFlight(b.flight)
			b.flight = nil
		}
		return
	}
	if b.FinalID == t.msg.LocalID {
		b.FinalID = b.Members[len(b.Members)-1].msg.LocalID
	}
	if b.flight != nil {
		e.abortFlight(b.flight)
		b.flight = nil
		e.pending.bind(b.key(), opGroup, b.record)
	}
	e.checkBatch(b)
}
