package sender

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/skobkin/courier/internal/domain"
	"github.com/skobkin/courier/internal/metrics"
)

const (
	defaultGroupBatchSize = 10
	defaultMailboxSize    = 256
	defaultStoreTimeout   = 5 * time.Second
	defaultArtifactWait   = 150 * time.Millisecond
)

var ErrStopped = errors.New("sender engine stopped")

type Options struct {
	GroupBatchSize int
	// MaxReferenceRefreshes caps resends after stale media references. Zero
	// means unbounded.
	MaxReferenceRefreshes int
	ArtifactWait          time.Duration
	StoreTimeout          time.Duration
	MailboxSize           int
}

func (o *Options) fillDefaults() {
	if o.GroupBatchSize <= 0 {
		o.GroupBatchSize = defaultGroupBatchSize
	}
	if o.ArtifactWait <= 0 {
		o.ArtifactWait = defaultArtifactWait
	}
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = defaultStoreTimeout
	}
	if o.MailboxSize <= 0 {
		o.MailboxSize = defaultMailboxSize
	}
	if o.MaxReferenceRefreshes < 0 {
		o.MaxReferenceRefreshes = 0
	}
}

// Deps are the collaborators of one account. Messages, Transport, Media and
// Bus are required.
type Deps struct {
	Messages  domain.MessageRepository
	SentFiles SentFileCache
	Transport Transport
	Media     MediaPipeline
	Resolver  ReferenceResolver
	Envelope  Envelope
	Bus       Publisher
	Artifacts ArtifactSource
	Writes    WriteQueue
	Metrics   *metrics.Metrics
	Policy    Policy
	Logger    *slog.Logger
}

// Event is delivered into the coordination goroutine by collaborators.
type Event interface {
	isEvent()
}

type ResourceReady struct {
	Key    string
	Handle domain.MediaHandle
}

type ResourceFailed struct {
	Key string
	Err error
}

type TransportResult struct {
	Flight   uint64
	Response domain.SendResponse
	Err      error
}

func (ResourceReady) isEvent()   {}
func (ResourceFailed) isEvent()  {}
func (TransportResult) isEvent() {}

type SendOutcome struct {
	LocalIDs []int64
	Err      error
}

// Engine is the outbound pipeline of one account. A single goroutine owns all
// registries; public methods post closures into its mailbox.
type Engine struct {
	opts   Options
	deps   Deps
	logger *slog.Logger

	cmds    chan func()
	stopped chan struct{}
	ctx     context.Context

	messages   map[int64]*tracked
	dialogs    map[int64][]*tracked
	sending    index
	uploading  index
	editing    map[domain.MessageRef]*tracked
	pending    *uploadRegistry
	groups     map[int64]*GroupBatch
	flights    map[uint64]*flight
	nextLocal  int64
	nextFlight uint64
}

func New(deps Deps, opts Options) *Engine {
	opts.fillDefaults()
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		opts:      opts,
		deps:      deps,
		logger:    logger,
		cmds:      make(chan func(), opts.MailboxSize),
		stopped:   make(chan struct{}),
		messages:  make(map[int64]*tracked),
		dialogs:   make(map[int64][]*tracked),
		sending:   make(index),
		uploading: make(index),
		editing:   make(map[domain.MessageRef]*tracked),
		pending:   newUploadRegistry(),
		groups:    make(map[int64]*GroupBatch),
		flights:   make(map[uint64]*flight),
		nextLocal: -1,
	}
}

// Start resumes the local id counter from storage and runs the loop until ctx
// is done.
func (e *Engine) Start(ctx context.Context) error {
	minID, err := e.deps.Messages.MinLocalID(ctx)
	if err != nil {
		return fmt.Errorf("load lowest local id: %w", err)
	}
	if minID < 0 {
		e.nextLocal = minID - 1
	}
	e.ctx = ctx
	go e.run(ctx)
	e.logger.Info("sender started", "next_local_id", e.nextLocal)
	return nil
}

// Done is closed once the loop has exited.
func (e *Engine) Done() <-chan struct{} {
	return e.stopped
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.stopped)
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("sender stopped", "in_flight", len(e.flights), "awaiting_media", len(e.uploading))
			return
		case fn := <-e.cmds:
			fn()
		}
	}
}

// call runs fn on the loop and waits for it.
func (e *Engine) call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	wrapped := func() {
		defer close(done)
		fn()
	}
	select {
	case e.cmds <- wrapped:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopped:
		return ErrStopped
	}
	select {
	case <-done:
		return nil
	case <-e.stopped:
		select {
		case <-done:
			return nil
		default:
			return ErrStopped
		}
	}
}

// post never blocks the caller, which may be the loop itself.
func (e *Engine) post(fn func()) {
	select {
	case e.cmds <- fn:
	case <-e.stopped:
	default:
		go func() {
			select {
			case e.cmds <- fn:
			case <-e.stopped:
			}
		}()
	}
}

func (e *Engine) Deliver(ev Event) {
	e.post(func() { e.handle(ev) })
}

// ResourceReady and ResourceFailed let the engine act as a media sink.
func (e *Engine) ResourceReady(key string, h domain.MediaHandle) {
	e.Deliver(ResourceReady{Key: key, Handle: h})
}

func (e *Engine) ResourceFailed(key string, err error) {
	e.Deliver(ResourceFailed{Key: key, Err: err})
}

func (e *Engine) handle(ev Event) {
	switch ev := ev.(type) {
	case ResourceReady:
		e.onReady(ev)
	case ResourceFailed:
		e.onFailed(ev)
	case TransportResult:
		e.onResult(ev)
	default:
		e.logger.Warn("unknown event", "type", fmt.Sprintf("%T", ev))
	}
}

func (e *Engine) Send(ctx context.Context, intent domain.SendIntent) (int64, error) {
	out := e.SendAll(ctx, []domain.SendIntent{intent})[0]
	if out.Err != nil {
		return 0, out.Err
	}
	return out.LocalIDs[0], nil
}

// SendAll materializes intents independently: one rejected intent does not
// affect the others.
func (e *Engine) SendAll(ctx context.Context, intents []domain.SendIntent) []SendOutcome {
	out := make([]SendOutcome, len(intents))
	err := e.call(ctx, func() {
		for i, in := range intents {
			ids, err := e.materialize(in)
			out[i] = SendOutcome{LocalIDs: ids, Err: err}
		}
	})
	if err != nil {
		for i := range out {
			if out[i].Err == nil && out[i].LocalIDs == nil {
				out[i].Err = err
			}
		}
	}
	return out
}

func (e *Engine) Retry(ctx context.Context, ref domain.MessageRef) error {
	var err error
	if callErr := e.call(ctx, func() { err = e.retry(ref) }); callErr != nil {
		return callErr
	}
	return err
}

func (e *Engine) Cancel(ctx context.Context, refs ...domain.MessageRef) error {
	return e.call(ctx, func() {
		for _, ref := range refs {
			e.cancelOne(ref)
		}
	})
}

func (e *Engine) EditMedia(ctx context.Context, ref domain.MessageRef, intent domain.EditIntent) error {
	var err error
	if callErr := e.call(ctx, func() { err = e.startEdit(ref, intent) }); callErr != nil {
		return callErr
	}
	return err
}

// IsSending reports whether the message is on its way: waiting for media,
// queued or in flight.
func (e *Engine) IsSending(localID int64) bool {
	var ok bool
	_ = e.call(context.Background(), func() {
		t := e.messages[localID]
		ok = t != nil && (t.msg.State == domain.StateAwaitingMedia || t.msg.State == domain.StateDispatched)
	})
	return ok
}

func (e *Engine) IsUploading(dialogID int64) bool {
	var ok bool
	_ = e.call(context.Background(), func() {
		ok = e.uploading.inDialog(dialogID)
	})
	return ok
}

// Message returns a copy of a tracked message.
func (e *Engine) Message(localID int64) (domain.OutboundMessage, bool) {
	var (
		msg domain.OutboundMessage
		ok  bool
	)
	_ = e.call(context.Background(), func() {
		if t := e.messages[localID]; t != nil {
			msg, ok = t.msg.Clone(), true
		}
	})
	return msg, ok
}

func (e *Engine) allocLocalID() int64 {
	id := e.nextLocal
	e.nextLocal--
	return id
}

// newRandomID returns a non-zero nonce.
func newRandomID() int64 {
	var buf [8]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			panic(fmt.Sprintf("read random id: %v", err))
		}
		if id := int64(binary.LittleEndian.Uint64(buf[:])); id != 0 {
			return id
		}
	}
}

func (e *Engine) storeCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(e.ctx, e.opts.StoreTimeout)
}

func (e *Engine) publish(topic string, payload any) {
	if e.deps.Bus == nil {
		return
	}
	e.deps.Bus.Publish(topic, payload)
}

// enqueueWrite falls back to an inline write when no queue is configured.
func (e *Engine) enqueueWrite(name string, fn func(context.Context) error) {
	if e.deps.Writes != nil {
		e.deps.Writes.Enqueue(name, fn)
		return
	}
	ctx, cancel := e.storeCtx()
	defer cancel()
	if err := fn(ctx); err != nil {
		e.logger.Error("db write failed", "cmd", name, "error", err)
	}
}

func (e *Engine) updateGauges() {
	e.deps.Metrics.SetInFlight(len(e.flights))
	e.deps.Metrics.SetAwaitingMedia(len(e.uploading))
}
