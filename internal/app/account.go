package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gotd/td/tg"

	"github.com/skobkin/courier/internal/config"
	"github.com/skobkin/courier/internal/events"
	"github.com/skobkin/courier/internal/media"
	"github.com/skobkin/courier/internal/sender"
	"github.com/skobkin/courier/internal/telegram"
)

// AccountDeps are the server-facing collaborators of one account.
type AccountDeps struct {
	Transport sender.Transport
	Uploader  media.Uploader
	Resolver  sender.ReferenceResolver
	Envelope  sender.Envelope
}

// AccountContext is the outbound pipeline of one logged in account.
type AccountContext struct {
	Engine   *sender.Engine
	Pipeline *media.Pipeline

	rt     *Runtime
	cancel context.CancelFunc
}

// TelegramAccountDeps binds the pipeline to a connected gotd client.
func TelegramAccountDeps(ctx context.Context, rt *Runtime, api *tg.Client) AccountDeps {
	cfg := rt.CurrentConfig()
	tr := telegram.NewTransport(api, telegram.TransportConfig{
		RequestsPerSecond: cfg.Telegram.RequestsPerSecond,
		Burst:             cfg.Telegram.RequestBurst,
		Timeout:           time.Duration(cfg.Telegram.RequestTimeoutSec) * time.Second,
	}, rt.Metrics, rt.LogManager.Logger("telegram"))
	tr.Bind(ctx)

	return AccountDeps{
		Transport: tr,
		Uploader:  telegram.NewUploader(api, cfg.Media.UploadThreads),
		Resolver:  telegram.NewResolver(api),
	}
}

// OpenAccount starts the sender engine and media pipeline for an account.
// Both stop when ctx is done or Close is called.
func (r *Runtime) OpenAccount(parent context.Context, deps AccountDeps) (*AccountContext, error) {
	if deps.Transport == nil || deps.Uploader == nil {
		return nil, errors.New("account needs a transport and an uploader")
	}
	cfg := r.CurrentConfig()
	ctx, cancel := context.WithCancel(parent)

	pipeline := media.NewPipeline(media.Deps{
		Pool:      r.MediaPool,
		Transfers: r.Transfers,
		Uploader:  deps.Uploader,
		Fetcher:   r.Fetcher,
		Imager:    r.Imager,
		Metrics:   r.Metrics,
		Logger:    r.LogManager.Logger("media"),
	})

	engine := sender.New(sender.Deps{
		Messages:  r.MessageRepo,
		SentFiles: r.SentFileRepo,
		Transport: deps.Transport,
		Media:     pipeline,
		Resolver:  deps.Resolver,
		Envelope:  deps.Envelope,
		Bus:       r.Bus,
		Artifacts: r.Artifacts,
		Writes:    r.WriterQueue,
		Metrics:   r.Metrics,
		Logger:    r.LogManager.Logger("sender"),
	}, senderOptions(cfg.Sending))
	pipeline.Bind(ctx, engine)

	if err := engine.Start(ctx); err != nil {
		cancel()
		return nil, fmt.Errorf("start sender: %w", err)
	}

	acc := &AccountContext{Engine: engine, Pipeline: pipeline, rt: r, cancel: cancel}
	acc.startArtifactJanitor(ctx)

	return acc, nil
}

func senderOptions(cfg config.SendingConfig) sender.Options {
	return sender.Options{
		GroupBatchSize:        cfg.GroupBatchSize,
		MaxReferenceRefreshes: cfg.MaxReferenceRefreshes,
		ArtifactWait:          cfg.ArtifactWait(),
		StoreTimeout:          cfg.StoreTimeout(),
	}
}

// PrepareThumbnail builds a thumbnail for a file the user is about to send so
// that sending it later does not wait for a transcode.
func (a *AccountContext) PrepareThumbnail(ctx context.Context, source, cover string) error {
	return a.rt.Artifacts.Prepare(ctx, source, cover)
}

// startArtifactJanitor drops prepared thumbnails once their message reached
// a terminal state.
func (a *AccountContext) startArtifactJanitor(ctx context.Context) {
	topics := []string{events.TopicMessageSent, events.TopicMessageFailed}
	sub := a.rt.Bus.Subscribe(topics...)
	go func() {
		defer a.rt.Bus.Unsubscribe(sub, topics...)
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-sub:
				if !ok {
					return
				}
				switch ev := raw.(type) {
				case events.MessageSent:
					a.forget(ev.Message.AttachPath)
				case events.MessageFailed:
					a.forget(ev.Message.AttachPath)
				}
			}
		}
	}()
}

func (a *AccountContext) forget(path string) {
	if path != "" {
		a.rt.Artifacts.Forget(path)
	}
}

// Close stops the engine and waits for its loop to exit.
func (a *AccountContext) Close() {
	a.cancel()
	<-a.Engine.Done()
}
