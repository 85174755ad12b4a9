package sender

import (
	"github.com/skobkin/courier/internal/domain"
)

// tracked is the loop's view of one outbound message.
type tracked struct {
	msg    domain.OutboundMessage
	upload *PendingUpload
	batch  *GroupBatch
	flight *flight
	edit   *editSession
	// followUps wait for this message to settle before they may start.
	followUps []*flight
}

// gated reports whether later messages of the same dialog must wait for this
// one. A request already handed to the transport still gates: the transport
// may run requests concurrently, so the next one starts only after Sent or
// Error.
func (t *tracked) gated() bool {
	switch {
	case t.msg.State == domain.StateAwaitingMedia:
		return true
	case t.flight != nil:
		return true
	case t.batch != nil && t.flight == nil:
		return true
	default:
		return false
	}
}

// live reports whether t still takes part in the pipeline.
func (t *tracked) live() bool {
	return t != nil && t.msg.State != domain.StateError && !t.msg.State.Terminal()
}

type index map[int64]*tracked

func (ix index) add(t *tracked) {
	ix[t.msg.LocalID] = t
}

func (ix index) remove(localID int64) {
	delete(ix, localID)
}

func (ix index) has(localID int64) bool {
	_, ok := ix[localID]
	return ok
}

func (ix index) inDialog(dialogID int64) bool {
	for _, t := range ix {
		if t.msg.DialogID() == dialogID {
			return true
		}
	}
	return false
}

type stepOp int

const (
	opUpload stepOp = iota + 1
	opDownload
	opTranscode
	opGroup
)

func (op stepOp) String() string {
	switch op {
	case opUpload:
		return "upload"
	case opDownload:
		return "download"
	case opTranscode:
		return "transcode"
	case opGroup:
		return "group"
	default:
		return "unknown"
	}
}

type slotRole int

const (
	slotMain slotRole = iota + 1
	slotThumb
)

type step struct {
	op     stepOp
	key    string
	source string
	role   slotRole
	kind   domain.ResourceType
}

// PendingUpload gates one message, or a whole batch for group records, until
// its media is ready. Parents holds the already uploaded files the item
// reuses; their file references are refreshed when the server reports them
// stale.
type PendingUpload struct {
	Type    domain.ResourceType
	Item    *domain.RequestItem
	Parents []domain.RemoteFile

	steps []*step
	owner *tracked
	batch *GroupBatch
}

func (pu *PendingUpload) head() *step {
	if pu == nil || len(pu.steps) == 0 {
		return nil
	}
	return pu.steps[0]
}

func (pu *PendingUpload) waiting() bool {
	return pu.head() != nil
}

func (pu *PendingUpload) fill(role slotRole, f *domain.UploadedFile) {
	if pu.Item == nil || pu.Item.Media == nil {
		return
	}
	if role == slotThumb {
		pu.Item.Media.Thumb = f
		return
	}
	pu.Item.Media.File = f
}

// newPendingUpload derives the ordered steps needed before item can be sent.
// The thumbnail chain precedes the main file.
func newPendingUpload(owner *tracked, item *domain.RequestItem, thumbReady bool) *PendingUpload {
	pu := &PendingUpload{owner: owner, Item: item}
	if item == nil || item.Media == nil {
		return pu
	}
	src, ok := domain.SourceOf(item.Media.Draft)
	if !ok {
		return pu
	}
	pu.Type = domain.ResourceTypeOf(item.Media.Draft)
	if src.Remote != nil {
		pu.Parents = append(pu.Parents, src.Remote.Clone())
		return pu
	}

	if thumb := domain.ThumbOf(item.Media.Draft); thumb != "" {
		item.Media.NeedsThumb = true
		if thumbReady {
			pu.steps = append(pu.steps, &step{op: opUpload, key: thumb, source: thumb, role: slotThumb, kind: domain.ResourcePhoto})
		} else {
			pu.steps = append(pu.steps, &step{op: opTranscode, key: transcodeKey(thumb), source: thumb, role: slotThumb, kind: domain.ResourcePhoto})
		}
	}

	item.Media.NeedsFile = true
	if src.URL != "" {
		pu.steps = append(pu.steps, &step{op: opDownload, key: src.URL, source: src.URL, role: slotMain, kind: pu.Type})
	} else {
		pu.steps = append(pu.steps, &step{op: opUpload, key: src.Path, source: src.Path, role: slotMain, kind: pu.Type})
	}
	return pu
}

func transcodeKey(path string) string {
	return "thumb:" + path
}

type registryEntry struct {
	op    stepOp
	bound []*PendingUpload
}

// uploadRegistry maps resource keys to every record waiting on them. A key
// resolves all of its bindings at once.
type uploadRegistry struct {
	byKey map[string]*registryEntry
}

func newUploadRegistry() *uploadRegistry {
	return &uploadRegistry{byKey: make(map[string]*registryEntry)}
}

// bind reports whether the key is new and its media operation must be issued.
func (r *uploadRegistry) bind(key string, op stepOp, pu *PendingUpload) bool {
	entry, ok := r.byKey[key]
	if !ok {
		r.byKey[key] = &registryEntry{op: op, bound: []*PendingUpload{pu}}
		return true
	}
	for _, b := range entry.bound {
		if b == pu {
			return false
		}
	}
	entry.bound = append(entry.bound, pu)
	return false
}

func (r *uploadRegistry) resolve(key string) []*PendingUpload {
	entry, ok := r.byKey[key]
	if !ok {
		return nil
	}
	delete(r.byKey, key)
	return entry.bound
}

// unbind detaches pu from every key and returns the keys left without any
// binding, with the operation that was serving them.
func (r *uploadRegistry) unbind(pu *PendingUpload) map[string]stepOp {
	if pu == nil {
		return nil
	}
	var orphaned map[string]stepOp
	for key, entry := range r.byKey {
		kept := entry.bound[:0]
		found := false
		for _, b := range entry.bound {
			if b == pu {
				found = true
				continue
			}
			kept = append(kept, b)
		}
		if !found {
			continue
		}
		entry.bound = kept
		if len(kept) == 0 {
			delete(r.byKey, key)
			if orphaned == nil {
				orphaned = make(map[string]stepOp)
			}
			orphaned[key] = entry.op
		}
	}
	return orphaned
}

func (r *uploadRegistry) has(key string) bool {
	_, ok := r.byKey[key]
	return ok
}

func (r *uploadRegistry) len() int {
	return len(r.byKey)
}
