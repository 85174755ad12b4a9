package media

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skobkin/courier/internal/domain"
)

type sinkEvent struct {
	key    string
	handle domain.MediaHandle
	err    error
}

type recordingSink struct {
	mu     sync.Mutex
	events []sinkEvent
}

func (s *recordingSink) ResourceReady(key string, h domain.MediaHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, sinkEvent{key: key, handle: h})
}

func (s *recordingSink) ResourceFailed(key string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, sinkEvent{key: key, err: err})
}

func (s *recordingSink) snapshot() []sinkEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sinkEvent(nil), s.events...)
}

type fakeUploader struct {
	mu      sync.Mutex
	paths   []string
	err     error
	release chan struct{}
}

func (u *fakeUploader) Upload(ctx context.Context, path string, _ domain.ResourceType) (*domain.UploadedFile, error) {
	if u.release != nil {
		select {
		case <-u.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.paths = append(u.paths, path)
	if u.err != nil {
		return nil, u.err
	}
	return &domain.UploadedFile{ID: int64(len(u.paths)), Name: path}, nil
}

type fakeFetcher struct {
	local string
	err   error
}

func (f fakeFetcher) Fetch(context.Context, string) (string, error) {
	return f.local, f.err
}

func newTestPipeline(t *testing.T, deps Deps) (*Pipeline, *recordingSink) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if deps.Pool == nil {
		deps.Pool = NewPool(nil, 2, 8)
		deps.Pool.Start(ctx)
	}
	p := NewPipeline(deps)
	sink := &recordingSink{}
	p.Bind(ctx, sink)
	return p, sink
}

func TestPipelineUploadReportsReady(t *testing.T) {
	up := &fakeUploader{}
	p, sink := newTestPipeline(t, Deps{Uploader: up})

	p.Upload("/tmp/doc.pdf", "/tmp/doc.pdf", domain.ResourceFile)
	require.Eventually(t, func() bool { return len(sink.snapshot()) == 1 }, time.Second, 5*time.Millisecond)

	ev := sink.snapshot()[0]
	assert.Equal(t, "/tmp/doc.pdf", ev.key)
	require.NoError(t, ev.err)
	assert.Equal(t, int64(1), ev.handle.File.ID)
	assert.Equal(t, 0, p.Running())
}

func TestPipelineUploadFailureIsReported(t *testing.T) {
	p, sink := newTestPipeline(t, Deps{Uploader: &fakeUploader{err: errors.New("FILE_PARTS_INVALID")}})

	p.Upload("k", "/tmp/x.bin", domain.ResourceFile)
	require.Eventually(t, func() bool { return len(sink.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	ev := sink.snapshot()[0]
	require.Error(t, ev.err)
	assert.Contains(t, ev.err.Error(), "upload: FILE_PARTS_INVALID")
}

func TestPipelineCancelledOperationStaysSilent(t *testing.T) {
	up := &fakeUploader{release: make(chan struct{})}
	p, sink := newTestPipeline(t, Deps{Uploader: up})

	p.Upload("slow", "/tmp/slow.bin", domain.ResourceFile)
	require.Equal(t, 1, p.Running())
	p.Cancel("slow")
	assert.Equal(t, 0, p.Running())
	close(up.release)

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, sink.snapshot())
}

func TestPipelineIgnoresDuplicateKey(t *testing.T) {
	up := &fakeUploader{release: make(chan struct{})}
	p, sink := newTestPipeline(t, Deps{Uploader: up})

	p.Upload("same", "/tmp/a", domain.ResourceFile)
	p.Upload("same", "/tmp/a", domain.ResourceFile)
	close(up.release)

	require.Eventually(t, func() bool { return len(sink.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, sink.snapshot(), 1)
}

func TestPipelineDownloadAndTranscode(t *testing.T) {
	im, err := NewImager(t.TempDir())
	require.NoError(t, err)
	src := writePNG(t, t.TempDir(), 800, 800)
	p, sink := newTestPipeline(t, Deps{Fetcher: fakeFetcher{local: "/tmp/downloads/a.zip"}, Imager: im})

	p.Download("https://example.org/a.zip", "https://example.org/a.zip")
	p.Transcode("thumb:"+src, src)
	require.Eventually(t, func() bool { return len(sink.snapshot()) == 2 }, time.Second, 5*time.Millisecond)

	byKey := map[string]sinkEvent{}
	for _, ev := range sink.snapshot() {
		byKey[ev.key] = ev
	}
	assert.Equal(t, "/tmp/downloads/a.zip", byKey["https://example.org/a.zip"].handle.LocalPath)
	thumb := byKey["thumb:"+src]
	require.NoError(t, thumb.err)
	w, h := imageSize(t, thumb.handle.LocalPath)
	assert.Equal(t, ThumbnailSize, w)
	assert.Equal(t, ThumbnailSize, h)
}

type panickingUploader struct{}

func (panickingUploader) Upload(context.Context, string, domain.ResourceType) (*domain.UploadedFile, error) {
	panic("nil part buffer")
}

func TestPipelinePanicIsReportedAndKeyReleased(t *testing.T) {
	p, sink := newTestPipeline(t, Deps{Uploader: panickingUploader{}})

	p.Upload("/tmp/crash.bin", "/tmp/crash.bin", domain.ResourceFile)
	require.Eventually(t, func() bool { return len(sink.snapshot()) == 1 }, time.Second, 5*time.Millisecond)

	ev := sink.snapshot()[0]
	assert.Equal(t, "/tmp/crash.bin", ev.key)
	require.ErrorIs(t, ev.err, ErrJobPanicked)
	assert.Contains(t, ev.err.Error(), "nil part buffer")
	assert.Equal(t, 0, p.Running())

	// the same key can be started again
	p.Upload("/tmp/crash.bin", "/tmp/crash.bin", domain.ResourceFile)
	require.Eventually(t, func() bool { return len(sink.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
}

func TestPipelineTransfersDoNotWaitForImageWork(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	images := NewPool(nil, 1, 4)
	images.Start(ctx)
	transfers := NewPool(nil, 1, 4)
	transfers.Start(ctx)

	busy := make(chan struct{})
	defer close(busy)
	require.NoError(t, images.Submit(ctx, "long resize", func() { <-busy }))

	p, sink := newTestPipeline(t, Deps{Pool: images, Transfers: transfers, Uploader: &fakeUploader{}})
	p.Upload("/tmp/doc.pdf", "/tmp/doc.pdf", domain.ResourceFile)
	p.Download("https://example.org/a.zip", "https://example.org/a.zip")

	require.Eventually(t, func() bool { return len(sink.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
	for _, ev := range sink.snapshot() {
		if ev.key == "https://example.org/a.zip" {
			require.ErrorIs(t, ev.err, ErrUnsupportedSource)
			continue
		}
		require.NoError(t, ev.err)
	}
}
