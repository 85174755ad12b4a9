package sender

import (
	"context"
	"time"

	"github.com/skobkin/courier/internal/domain"
)

// Handle identifies a request issued to a Transport.
type Handle uint64

// Transport issues RPC requests. Send must not block: onAck may be invoked
// once when the server receives the request and onDone is invoked exactly
// once with the outcome, both from any goroutine.
type Transport interface {
	Send(req domain.SendRequest, onAck func(), onDone func(domain.SendResponse, error)) Handle
	Cancel(h Handle)
}

// MediaPipeline prepares files in the background and reports back through
// ResourceReady and ResourceFailed keyed by the same key.
type MediaPipeline interface {
	Upload(key, path string, kind domain.ResourceType)
	Download(key, url string)
	Transcode(key, path string)
	CancelTranscode(key string)
	Cancel(key string)
}

// ReferenceResolver fetches a fresh file reference for an already uploaded
// file by re-reading the message it came from.
type ReferenceResolver interface {
	RefreshReference(ctx context.Context, parent domain.RemoteFile) (domain.RemoteFile, error)
}

// Envelope wraps requests addressed to secret chats.
type Envelope interface {
	Wrap(req domain.SendRequest) (domain.SendRequest, error)
}

type Publisher interface {
	Publish(topic string, msg any)
}

type SentFileCache interface {
	Lookup(ctx context.Context, path string) (domain.RemoteFile, bool, error)
	Remember(ctx context.Context, path string, f domain.RemoteFile) error
}

// ArtifactSource hands out files prepared ahead of time for a source path,
// such as a video thumbnail generated while the user was composing.
type ArtifactSource interface {
	Await(path string, timeout time.Duration) (string, bool)
}

// WriteQueue runs persistence work off the coordination goroutine.
type WriteQueue interface {
	Enqueue(name string, fn func(context.Context) error)
}

// Policy may veto an intent before anything is created.
type Policy func(peer domain.Peer, media domain.MediaDraft) error
