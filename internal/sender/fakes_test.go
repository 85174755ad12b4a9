package sender

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/skobkin/courier/internal/domain"
)

type identityUpdate struct {
	dialog, randomID, oldID, newID int64
}

type fakeStore struct {
	mu         sync.Mutex
	byRandom   map[int64]domain.OutboundMessage
	identities []identityUpdate
	errors     []domain.OutboundMessage
	deleted    []int64
	acked      []int64
	readMax    map[int64]int64
	minLocal   int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		byRandom: make(map[int64]domain.OutboundMessage),
		readMax:  make(map[int64]int64),
	}
}

func (s *fakeStore) PutMessages(_ context.Context, msgs []domain.OutboundMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range msgs {
		s.byRandom[m.RandomID] = m.Clone()
	}
	return nil
}

func (s *fakeStore) MarkSendError(_ context.Context, m domain.OutboundMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, m.Clone())
	s.byRandom[m.RandomID] = m.Clone()
	return nil
}

func (s *fakeStore) MarkAcked(_ context.Context, randomID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acked = append(s.acked, randomID)
	return nil
}

func (s *fakeStore) UpdateIdentity(_ context.Context, dialogID, randomID, oldID, newID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identities = append(s.identities, identityUpdate{dialog: dialogID, randomID: randomID, oldID: oldID, newID: newID})
	return nil
}

func (s *fakeStore) DeleteMessages(_ context.Context, dialogID int64, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		for r, m := range s.byRandom {
			if m.DialogID() == dialogID && m.CurrentID() == id {
				delete(s.byRandom, r)
			}
		}
		s.deleted = append(s.deleted, id)
	}
	return nil
}

func (s *fakeStore) LoadMessage(_ context.Context, ref domain.MessageRef) (domain.OutboundMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.byRandom {
		if m.DialogID() == ref.Dialog && m.CurrentID() == ref.ID {
			return m.Clone(), nil
		}
	}
	return domain.OutboundMessage{}, domain.ErrNotFound
}

func (s *fakeStore) LoadErrored(_ context.Context, dialogID, groupID int64) ([]domain.OutboundMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.OutboundMessage
	for _, m := range s.byRandom {
		if m.DialogID() == dialogID && m.GroupID == groupID && m.State == domain.StateError {
			out = append(out, m.Clone())
		}
	}
	return out, nil
}

func (s *fakeStore) ReadOutboxMax(_ context.Context, dialogID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readMax[dialogID], nil
}

func (s *fakeStore) MinLocalID(context.Context) (int64, error) {
	return s.minLocal, nil
}

func (s *fakeStore) put(m domain.OutboundMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byRandom[m.RandomID] = m.Clone()
}

func (s *fakeStore) get(randomID int64) (domain.OutboundMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byRandom[randomID]
	return m, ok
}

func (s *fakeStore) identityUpdates() []identityUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]identityUpdate(nil), s.identities...)
}

type sentRequest struct {
	handle Handle
	req    domain.SendRequest
	ack    func()
	done   func(domain.SendResponse, error)
}

type fakeTransport struct {
	mu        sync.Mutex
	next      Handle
	requests  []sentRequest
	cancelled []Handle
}

func (tr *fakeTransport) Send(req domain.SendRequest, onAck func(), onDone func(domain.SendResponse, error)) Handle {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.next++
	tr.requests = append(tr.requests, sentRequest{handle: tr.next, req: req, ack: onAck, done: onDone})
	return tr.next
}

func (tr *fakeTransport) Cancel(h Handle) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.cancelled = append(tr.cancelled, h)
}

func (tr *fakeTransport) count() int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return len(tr.requests)
}

func (tr *fakeTransport) request(i int) sentRequest {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.requests[i]
}

func (tr *fakeTransport) cancelledHandles() []Handle {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]Handle(nil), tr.cancelled...)
}

// succeed answers request i with server ids assigned in item order.
func (tr *fakeTransport) succeed(i int, ids ...int64) {
	r := tr.request(i)
	resp := domain.SendResponse{}
	for n, item := range r.req.Items {
		resp.Messages = append(resp.Messages, domain.ServerMessage{ID: ids[n], RandomID: item.RandomID, Date: time.Unix(1700000000, 0)})
	}
	r.done(resp, nil)
}

func (tr *fakeTransport) fail(i int, err error) {
	tr.request(i).done(domain.SendResponse{}, err)
}

type mediaCall struct {
	op   string
	key  string
	src  string
	kind domain.ResourceType
}

type fakeMedia struct {
	mu    sync.Mutex
	calls []mediaCall
}

func (m *fakeMedia) record(c mediaCall) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, c)
}

func (m *fakeMedia) Upload(key, path string, kind domain.ResourceType) {
	m.record(mediaCall{op: "upload", key: key, src: path, kind: kind})
}

func (m *fakeMedia) Download(key, url string) {
	m.record(mediaCall{op: "download", key: key, src: url})
}

func (m *fakeMedia) Transcode(key, path string) {
	m.record(mediaCall{op: "transcode", key: key, src: path})
}

func (m *fakeMedia) CancelTranscode(key string) {
	m.record(mediaCall{op: "cancel_transcode", key: key})
}

func (m *fakeMedia) Cancel(key string) {
	m.record(mediaCall{op: "cancel", key: key})
}

func (m *fakeMedia) ops(op string) []mediaCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []mediaCall
	for _, c := range m.calls {
		if c.op == op {
			out = append(out, c)
		}
	}
	return out
}

type fakeResolver struct {
	mu    sync.Mutex
	calls []domain.RemoteFile
	err   error
}

func (r *fakeResolver) RefreshReference(_ context.Context, parent domain.RemoteFile) (domain.RemoteFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, parent)
	if r.err != nil {
		return domain.RemoteFile{}, r.err
	}
	fresh := parent.Clone()
	fresh.FileReference = append([]byte("fresh-"), parent.FileReference...)
	return fresh, nil
}

type published struct {
	topic   string
	payload any
}

type recordingBus struct {
	mu     sync.Mutex
	events []published
}

func (b *recordingBus) Publish(topic string, msg any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, published{topic: topic, payload: msg})
}

func (b *recordingBus) topic(name string) []any {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []any
	for _, ev := range b.events {
		if ev.topic == name {
			out = append(out, ev.payload)
		}
	}
	return out
}

type harness struct {
	engine    *Engine
	store     *fakeStore
	transport *fakeTransport
	media     *fakeMedia
	resolver  *fakeResolver
	bus       *recordingBus
}

func newHarness(t *testing.T, opts Options, tweak ...func(*Deps)) *harness {
	t.Helper()
	h := &harness{
		store:     newFakeStore(),
		transport: &fakeTransport{},
		media:     &fakeMedia{},
		resolver:  &fakeResolver{},
		bus:       &recordingBus{},
	}
	deps := Deps{
		Messages:  h.store,
		Transport: h.transport,
		Media:     h.media,
		Resolver:  h.resolver,
		Bus:       h.bus,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, fn := range tweak {
		fn(&deps)
	}
	h.engine = New(deps, opts)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, h.engine.Start(ctx))
	return h
}

// sync waits until every event posted so far has been handled.
func (h *harness) sync(t *testing.T) {
	t.Helper()
	require.NoError(t, h.engine.call(context.Background(), func() {}))
}

func (h *harness) ready(t *testing.T, key string, handle domain.MediaHandle) {
	t.Helper()
	h.engine.ResourceReady(key, handle)
	h.sync(t)
}

// pendingKey reports whether a media step or group record is still bound to
// key.
func (h *harness) pendingKey(t *testing.T, key string) bool {
	t.Helper()
	var ok bool
	require.NoError(t, h.engine.call(context.Background(), func() {
		ok = h.engine.pending.has(key)
	}))
	return ok
}

func (h *harness) state(t *testing.T, localID int64) domain.State {
	t.Helper()
	m, ok := h.engine.Message(localID)
	if !ok {
		return 0
	}
	return m.State
}

func uploaded(id int64) domain.MediaHandle {
	return domain.MediaHandle{File: &domain.UploadedFile{ID: id, Parts: 1, Name: "file"}}
}

var (
	dialog42 = domain.Peer{Kind: domain.PeerUser, ID: 42, AccessHash: 1}
	dialog7  = domain.Peer{Kind: domain.PeerUser, ID: 7, AccessHash: 1}
)

func photoIntent(peer domain.Peer, path string) domain.SendIntent {
	return domain.SendIntent{Peer: peer, Media: domain.PhotoDraft{FileSource: domain.FileSource{Path: path}}}
}

func textIntent(peer domain.Peer, text string) domain.SendIntent {
	return domain.SendIntent{Peer: peer, Text: text}
}
