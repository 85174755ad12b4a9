package telegram

import (
	"context"
	"errors"
	"sync"

	"github.com/gotd/td/tg"
)

type fakeAPI struct {
	mu       sync.Mutex
	calls    []any
	updates  tg.UpdatesClass
	err      error
	uploaded tg.MessageMediaClass
	messages tg.MessagesMessagesClass
	block    chan struct{}
}

func (f *fakeAPI) record(ctx context.Context, req any) (tg.UpdatesClass, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	block := f.block
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.updates, f.err
}

func (f *fakeAPI) recorded() []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]any(nil), f.calls...)
}

func (f *fakeAPI) MessagesSendMessage(ctx context.Context, r *tg.MessagesSendMessageRequest) (tg.UpdatesClass, error) {
	return f.record(ctx, r)
}

func (f *fakeAPI) MessagesSendMedia(ctx context.Context, r *tg.MessagesSendMediaRequest) (tg.UpdatesClass, error) {
	return f.record(ctx, r)
}

func (f *fakeAPI) MessagesSendMultiMedia(ctx context.Context, r *tg.MessagesSendMultiMediaRequest) (tg.UpdatesClass, error) {
	return f.record(ctx, r)
}

func (f *fakeAPI) MessagesUploadMedia(_ context.Context, r *tg.MessagesUploadMediaRequest) (tg.MessageMediaClass, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, r)
	if f.uploaded == nil {
		return nil, errors.New("no upload result")
	}
	return f.uploaded, nil
}

func (f *fakeAPI) MessagesForwardMessages(ctx context.Context, r *tg.MessagesForwardMessagesRequest) (tg.UpdatesClass, error) {
	return f.record(ctx, r)
}

func (f *fakeAPI) MessagesSendInlineBotResult(ctx context.Context, r *tg.MessagesSendInlineBotResultRequest) (tg.UpdatesClass, error) {
	return f.record(ctx, r)
}

func (f *fakeAPI) MessagesEditMessage(ctx context.Context, r *tg.MessagesEditMessageRequest) (tg.UpdatesClass, error) {
	return f.record(ctx, r)
}

func (f *fakeAPI) MessagesGetMessages(_ context.Context, id []tg.InputMessageClass) (tg.MessagesMessagesClass, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, id)
	return f.messages, f.err
}

func (f *fakeAPI) ChannelsGetMessages(_ context.Context, r *tg.ChannelsGetMessagesRequest) (tg.MessagesMessagesClass, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, r)
	return f.messages, f.err
}
