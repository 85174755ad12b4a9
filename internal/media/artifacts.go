package media

import (
	"context"
	"sync"
	"time"
)

type artifact struct {
	done  chan struct{}
	thumb string
	err   error
}

// Artifacts prepares thumbnails ahead of sending, for example while the user
// is still composing a message, and lets the sender wait a short while for
// them.
type Artifacts struct {
	pool   *Pool
	imager *Imager

	mu      sync.Mutex
	entries map[string]*artifact
}

func NewArtifacts(pool *Pool, imager *Imager) *Artifacts {
	return &Artifacts{
		pool:    pool,
		imager:  imager,
		entries: make(map[string]*artifact),
	}
}

// Prepare starts building a thumbnail for source from image. When image is
// empty the source itself is used. Repeated calls for the same source are
// ignored until Forget.
func (a *Artifacts) Prepare(ctx context.Context, source, image string) error {
	if image == "" {
		image = source
	}
	a.mu.Lock()
	if _, ok := a.entries[source]; ok {
		a.mu.Unlock()
		return nil
	}
	entry := &artifact{done: make(chan struct{})}
	a.entries[source] = entry
	a.mu.Unlock()

	err := a.pool.Submit(ctx, "artifact_thumbnail", func() {
		entry.thumb, entry.err = a.imager.Thumbnail(image)
		close(entry.done)
	})
	if err != nil {
		a.mu.Lock()
		delete(a.entries, source)
		a.mu.Unlock()
	}
	return err
}

// Await returns the prepared thumbnail for source, waiting at most timeout.
func (a *Artifacts) Await(source string, timeout time.Duration) (string, bool) {
	a.mu.Lock()
	entry, ok := a.entries[source]
	a.mu.Unlock()
	if !ok {
		return "", false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-entry.done:
	case <-timer.C:
		return "", false
	}
	if entry.err != nil {
		return "", false
	}
	return entry.thumb, true
}

func (a *Artifacts) Forget(source string) {
	a.mu.Lock()
	delete(a.entries, source)
	a.mu.Unlock()
}
