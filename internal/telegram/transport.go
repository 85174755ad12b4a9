package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gotd/td/tg"
	"golang.org/x/time/rate"

	"github.com/skobkin/courier/internal/domain"
	"github.com/skobkin/courier/internal/metrics"
	"github.com/skobkin/courier/internal/sender"
)

type TransportConfig struct {
	// RequestsPerSecond and Burst shape outgoing RPCs. Zero disables the
	// limiter.
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
}

// Transport sends requests over a gotd client. Every request runs on its own
// goroutine and can be withdrawn with Cancel until it completes.
type Transport struct {
	api     API
	limiter *rate.Limiter
	timeout time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu      sync.Mutex
	ctx     context.Context
	next    sender.Handle
	running map[sender.Handle]context.CancelFunc
}

func NewTransport(api API, cfg TransportConfig, m *metrics.Metrics, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}
	t := &Transport{
		api:     api,
		timeout: cfg.Timeout,
		metrics: m,
		logger:  logger,
		ctx:     context.Background(),
		running: make(map[sender.Handle]context.CancelFunc),
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return t
}

// Bind sets the context requests derive from. Cancelling it aborts every
// request still running.
func (t *Transport) Bind(ctx context.Context) {
	t.mu.Lock()
	t.ctx = ctx
	t.mu.Unlock()
}

func (t *Transport) Send(req domain.SendRequest, _ func(), onDone func(domain.SendResponse, error)) sender.Handle {
	t.mu.Lock()
	t.next++
	h := t.next
	ctx, cancel := context.WithTimeout(t.ctx, t.timeout)
	t.running[h] = cancel
	t.mu.Unlock()

	go func() {
		resp, err := t.do(ctx, req)
		if !t.release(h) {
			return
		}
		t.metrics.RecordTransportRequest(req.Kind.String(), err == nil)
		if err != nil {
			if isFloodWait(err) {
				t.metrics.RecordFloodWait()
			}
			t.logger.Debug("request failed", "kind", req.Kind.String(), "error", err)
			onDone(domain.SendResponse{}, classify(err))
			return
		}
		onDone(resp, nil)
	}()
	return h
}

// Cancel withdraws h. A withdrawn request never reports back.
func (t *Transport) Cancel(h sender.Handle) {
	t.mu.Lock()
	cancel, ok := t.running[h]
	delete(t.running, h)
	t.mu.Unlock()
	if ok {
		cancel()
	}
}

func (t *Transport) release(h sender.Handle) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	cancel, ok := t.running[h]
	if !ok {
		return false
	}
	delete(t.running, h)
	cancel()
	return true
}

func (t *Transport) wait(ctx context.Context) error {
	if t.limiter == nil {
		return nil
	}
	return t.limiter.Wait(ctx)
}

func (t *Transport) do(ctx context.Context, req domain.SendRequest) (domain.SendResponse, error) {
	if len(req.Items) == 0 {
		return domain.SendResponse{}, errors.New("request has no items")
	}
	peer, err := inputPeer(req.Peer)
	if err != nil {
		return domain.SendResponse{}, err
	}
	if err := t.wait(ctx); err != nil {
		return domain.SendResponse{}, err
	}

	var replyTo tg.InputReplyToClass
	if req.ReplyTo != 0 {
		replyTo = &tg.InputReplyToMessage{ReplyToMsgID: int(req.ReplyTo)}
	}
	schedule := 0
	if !req.ScheduleDate.IsZero() {
		schedule = int(req.ScheduleDate.Unix())
	}
	first := req.Items[0]

	var updates tg.UpdatesClass
	switch req.Kind {
	case domain.RequestText:
		updates, err = t.api.MessagesSendMessage(ctx, &tg.MessagesSendMessageRequest{
			NoWebpage:    req.NoWebpage,
			Silent:       req.Silent,
			Peer:         peer,
			ReplyTo:      replyTo,
			Message:      first.Message,
			RandomID:     first.RandomID,
			Entities:     entities(first.Entities),
			ScheduleDate: schedule,
		})
	case domain.RequestMedia:
		media, merr := inputMedia(first.Media)
		if merr != nil {
			return domain.SendResponse{}, merr
		}
		updates, err = t.api.MessagesSendMedia(ctx, &tg.MessagesSendMediaRequest{
			Silent:       req.Silent,
			Peer:         peer,
			ReplyTo:      replyTo,
			Media:        media,
			Message:      first.Message,
			RandomID:     first.RandomID,
			Entities:     entities(first.Entities),
			ScheduleDate: schedule,
		})
	case domain.RequestMultiMedia:
		items, merr := t.albumItems(ctx, peer, req.Items)
		if merr != nil {
			return domain.SendResponse{}, merr
		}
		updates, err = t.api.MessagesSendMultiMedia(ctx, &tg.MessagesSendMultiMediaRequest{
			Silent:       req.Silent,
			Peer:         peer,
			ReplyTo:      replyTo,
			MultiMedia:   items,
			ScheduleDate: schedule,
		})
	case domain.RequestForward:
		fwd, ok := draftOf[domain.ForwardDraft](first)
		if !ok {
			return domain.SendResponse{}, errors.New("forward request without forward draft")
		}
		from, perr := inputPeer(fwd.From)
		if perr != nil {
			return domain.SendResponse{}, perr
		}
		ids, randomIDs := forwardIDs(req.Items)
		updates, err = t.api.MessagesForwardMessages(ctx, &tg.MessagesForwardMessagesRequest{
			Silent:       req.Silent,
			DropAuthor:   fwd.DropAuthor,
			FromPeer:     from,
			ID:           ids,
			RandomID:     randomIDs,
			ToPeer:       peer,
			ScheduleDate: schedule,
		})
	case domain.RequestInlineResult:
		res, ok := draftOf[domain.InlineResultDraft](first)
		if !ok {
			return domain.SendResponse{}, errors.New("inline result request without inline result draft")
		}
		updates, err = t.api.MessagesSendInlineBotResult(ctx, &tg.MessagesSendInlineBotResultRequest{
			Silent:       req.Silent,
			HideVia:      res.HideVia,
			Peer:         peer,
			ReplyTo:      replyTo,
			RandomID:     first.RandomID,
			QueryID:      res.QueryID,
			ID:           res.ResultID,
			ScheduleDate: schedule,
		})
	case domain.RequestEditMedia:
		media, merr := inputMedia(first.Media)
		if merr != nil {
			return domain.SendResponse{}, merr
		}
		updates, err = t.api.MessagesEditMessage(ctx, &tg.MessagesEditMessageRequest{
			Peer:     peer,
			ID:       int(req.EditID),
			Message:  first.Message,
			Media:    media,
			Entities: entities(first.Entities),
		})
	default:
		return domain.SendResponse{}, fmt.Errorf("unsupported request kind %s", req.Kind)
	}
	if err != nil {
		return domain.SendResponse{}, err
	}
	return sendResponse(req.Peer, updates), nil
}

// albumItems uploads freshly sent files with messages.uploadMedia first,
// since albums only accept media already stored on the server.
func (t *Transport) albumItems(ctx context.Context, peer tg.InputPeerClass, items []domain.RequestItem) ([]tg.InputSingleMedia, error) {
	out := make([]tg.InputSingleMedia, 0, len(items))
	for i, it := range items {
		media, err := inputMedia(it.Media)
		if err != nil {
			return nil, fmt.Errorf("album item %d: %w", i, err)
		}
		switch media.(type) {
		case *tg.InputMediaUploadedPhoto, *tg.InputMediaUploadedDocument:
			if err := t.wait(ctx); err != nil {
				return nil, err
			}
			stored, err := t.api.MessagesUploadMedia(ctx, &tg.MessagesUploadMediaRequest{Peer: peer, Media: media})
			if err != nil {
				return nil, err
			}
			ref, ok := uploadedInput(stored, spoilerOf(it.Media.Draft))
			if !ok {
				return nil, fmt.Errorf("album item %d: unexpected upload result %T", i, stored)
			}
			media = ref
		}
		out = append(out, tg.InputSingleMedia{
			Media:    media,
			RandomID: it.RandomID,
			Message:  it.Message,
			Entities: entities(it.Entities),
		})
	}
	return out, nil
}

func draftOf[T domain.MediaDraft](it domain.RequestItem) (T, bool) {
	var zero T
	if it.Media == nil {
		return zero, false
	}
	d, ok := it.Media.Draft.(T)
	return d, ok
}

// forwardIDs flattens the per-message forward items into the parallel id
// lists messages.forwardMessages expects.
func forwardIDs(items []domain.RequestItem) ([]int, []int64) {
	var ids []int
	var randomIDs []int64
	for _, it := range items {
		fwd, ok := draftOf[domain.ForwardDraft](it)
		if !ok {
			continue
		}
		for _, id := range fwd.MessageIDs {
			ids = append(ids, int(id))
			randomIDs = append(randomIDs, it.RandomID)
		}
	}
	return ids, randomIDs
}

func spoilerOf(d domain.MediaDraft) bool {
	switch v := d.(type) {
	case domain.PhotoDraft:
		return v.Spoiler
	case domain.VideoDraft:
		return v.Spoiler
	default:
		return false
	}
}

var _ sender.Transport = (*Transport)(nil)
