package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/skobkin/courier/internal/domain"
	"github.com/skobkin/courier/internal/metrics"
)

// Sink receives the outcome of every operation that was not cancelled.
type Sink interface {
	ResourceReady(key string, h domain.MediaHandle)
	ResourceFailed(key string, err error)
}

// Uploader stores a local file on the server.
type Uploader interface {
	Upload(ctx context.Context, path string, kind domain.ResourceType) (*domain.UploadedFile, error)
}

// Deps wires a pipeline. Pool runs image work. Transfers runs uploads and
// downloads and falls back to Pool when nil.
type Deps struct {
	Pool      *Pool
	Transfers *Pool
	Uploader  Uploader
	Fetcher   Fetcher
	Imager    *Imager
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// ErrJobPanicked is reported for an operation that panicked.
var ErrJobPanicked = errors.New("media operation panicked")

// Pipeline runs media operations keyed by resource key. At most one
// operation runs per key and a cancelled operation never reports back.
type Pipeline struct {
	deps   Deps
	logger *slog.Logger

	mu      sync.Mutex
	ctx     context.Context
	sink    Sink
	running map[string]context.CancelFunc
}

func NewPipeline(deps Deps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		deps:    deps,
		logger:  logger,
		ctx:     context.Background(),
		running: make(map[string]context.CancelFunc),
	}
}

// Bind sets the sink and the context every operation derives from.
func (p *Pipeline) Bind(ctx context.Context, sink Sink) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ctx = ctx
	p.sink = sink
}

func (p *Pipeline) Upload(key, path string, kind domain.ResourceType) {
	p.start(p.transfers(), key, "upload", func(ctx context.Context) (domain.MediaHandle, error) {
		src := path
		if kind == domain.ResourcePhoto && p.deps.Imager != nil {
			fitted, err := p.deps.Imager.FitPhoto(path)
			if err != nil {
				return domain.MediaHandle{}, err
			}
			src = fitted
		}
		f, err := p.deps.Uploader.Upload(ctx, src, kind)
		if err != nil {
			return domain.MediaHandle{}, err
		}
		return domain.MediaHandle{File: f, LocalPath: src}, nil
	})
}

func (p *Pipeline) Download(key, rawURL string) {
	p.start(p.transfers(), key, "download", func(ctx context.Context) (domain.MediaHandle, error) {
		if p.deps.Fetcher == nil {
			return domain.MediaHandle{}, ErrUnsupportedSource
		}
		local, err := p.deps.Fetcher.Fetch(ctx, rawURL)
		if err != nil {
			return domain.MediaHandle{}, err
		}
		return domain.MediaHandle{LocalPath: local}, nil
	})
}

// Transcode turns the image at path into an upload-ready thumbnail.
func (p *Pipeline) Transcode(key, path string) {
	p.start(p.deps.Pool, key, "transcode", func(context.Context) (domain.MediaHandle, error) {
		if p.deps.Imager == nil {
			return domain.MediaHandle{}, errors.New("no image processor configured")
		}
		thumb, err := p.deps.Imager.Thumbnail(path)
		if err != nil {
			return domain.MediaHandle{}, err
		}
		return domain.MediaHandle{LocalPath: thumb}, nil
	})
}

func (p *Pipeline) CancelTranscode(key string) {
	p.Cancel(key)
}

func (p *Pipeline) Cancel(key string) {
	p.mu.Lock()
	cancel, ok := p.running[key]
	delete(p.running, key)
	p.mu.Unlock()
	if ok {
		cancel()
		p.logger.Debug("media operation cancelled", "key", key)
	}
}

// Running reports how many operations are queued or in progress.
func (p *Pipeline) Running() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.running)
}

func (p *Pipeline) transfers() *Pool {
	if p.deps.Transfers != nil {
		return p.deps.Transfers
	}
	return p.deps.Pool
}

func (p *Pipeline) start(pool *Pool, key, op string, fn func(context.Context) (domain.MediaHandle, error)) {
	p.mu.Lock()
	if _, busy := p.running[key]; busy {
		p.mu.Unlock()
		p.logger.Debug("media operation already running", "key", key, "op", op)
		return
	}
	ctx, cancel := context.WithCancel(p.ctx)
	p.running[key] = cancel
	sink := p.sink
	p.mu.Unlock()

	run := func() {
		if ctx.Err() != nil {
			return
		}
		started := time.Now()
		h, err := guard(ctx, fn)
		if !p.finish(ctx, key) {
			return
		}
		p.deps.Metrics.RecordMediaJob(op, err == nil, time.Since(started).Seconds())
		if sink == nil {
			return
		}
		if err != nil {
			p.logger.Warn("media operation failed", "key", key, "op", op, "error", err)
			sink.ResourceFailed(key, fmt.Errorf("%s: %w", op, err))
			return
		}
		p.logger.Debug("media operation done", "key", key, "op", op, "duration", time.Since(started))
		sink.ResourceReady(key, h)
	}

	go func() {
		if err := pool.Submit(ctx, op+":"+key, run); err != nil {
			if p.finish(ctx, key) && sink != nil {
				sink.ResourceFailed(key, fmt.Errorf("%s: %w", op, err))
			}
		}
	}()
}

// guard turns a panic in fn into an error so the key is still released and
// reported.
func guard(ctx context.Context, fn func(context.Context) (domain.MediaHandle, error)) (h domain.MediaHandle, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrJobPanicked, r)
		}
	}()
	return fn(ctx)
}

// finish releases key and reports whether the operation is still wanted.
func (p *Pipeline) finish(ctx context.Context, key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ctx.Err() != nil {
		return false
	}
	if cancel, ok := p.running[key]; ok {
		delete(p.running, key)
		cancel()
	}
	return true
}
