package sender

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skobkin/courier/internal/domain"
)

func itemFor(draft domain.MediaDraft) *domain.RequestItem {
	return &domain.RequestItem{Media: &domain.InputMedia{Draft: draft}}
}

func TestNewPendingUploadSteps(t *testing.T) {
	cases := []struct {
		name       string
		draft      domain.MediaDraft
		thumbReady bool
		want       []stepOp
		keys       []string
	}{
		{
			name:  "local photo",
			draft: domain.PhotoDraft{FileSource: domain.FileSource{Path: "/a.jpg"}},
			want:  []stepOp{opUpload},
			keys:  []string{"/a.jpg"},
		},
		{
			name:  "remote url",
			draft: domain.DocumentDraft{FileSource: domain.FileSource{URL: "https://x/y.zip"}},
			want:  []stepOp{opDownload},
			keys:  []string{"https://x/y.zip"},
		},
		{
			name:  "video with raw thumbnail",
			draft: domain.VideoDraft{FileSource: domain.FileSource{Path: "/v.mp4"}, ThumbPath: "/v.png"},
			want:  []stepOp{opTranscode, opUpload},
			keys:  []string{"thumb:/v.png", "/v.mp4"},
		},
		{
			name:       "video with prepared thumbnail",
			draft:      domain.VideoDraft{FileSource: domain.FileSource{Path: "/v.mp4"}, ThumbPath: "/v.jpg"},
			thumbReady: true,
			want:       []stepOp{opUpload, opUpload},
			keys:       []string{"/v.jpg", "/v.mp4"},
		},
		{
			name:  "already on server",
			draft: domain.PhotoDraft{FileSource: domain.FileSource{Remote: &domain.RemoteFile{ID: 1}}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pu := newPendingUpload(&tracked{}, itemFor(tc.draft), tc.thumbReady)
			var ops []stepOp
			var keys []string
			for _, s := range pu.steps {
				ops = append(ops, s.op)
				keys = append(keys, s.key)
			}
			assert.Equal(t, tc.want, ops)
			assert.Equal(t, tc.keys, keys)
			assert.Equal(t, len(tc.want) > 0, pu.waiting())
		})
	}
}

func TestRemoteSourceIsRecordedAsParent(t *testing.T) {
	remote := &domain.RemoteFile{ID: 5, FileReference: []byte("r")}
	pu := newPendingUpload(&tracked{}, itemFor(domain.PhotoDraft{FileSource: domain.FileSource{Remote: remote}}), false)
	require.Len(t, pu.Parents, 1)
	assert.Equal(t, int64(5), pu.Parents[0].ID)
	assert.Equal(t, domain.ResourcePhoto, pu.Type)
}

func TestUploadRegistryBindResolveUnbind(t *testing.T) {
	r := newUploadRegistry()
	a := &PendingUpload{}
	b := &PendingUpload{}

	assert.True(t, r.bind("k", opUpload, a))
	assert.False(t, r.bind("k", opUpload, b))
	assert.False(t, r.bind("k", opUpload, b))
	assert.True(t, r.bind("other", opTranscode, a))
	assert.Equal(t, 2, r.len())

	assert.Nil(t, r.unbind(b))
	assert.True(t, r.has("k"))

	orphaned := r.unbind(a)
	assert.Equal(t, map[string]stepOp{"k": opUpload, "other": opTranscode}, orphaned)
	assert.Equal(t, 0, r.len())

	r.bind("k", opUpload, a)
	r.bind("k", opUpload, b)
	bound := r.resolve("k")
	assert.Equal(t, []*PendingUpload{a, b}, bound)
	assert.Nil(t, r.resolve("k"))
}

func TestGatedStates(t *testing.T) {
	awaiting := &tracked{msg: domain.OutboundMessage{State: domain.StateAwaitingMedia}}
	assert.True(t, awaiting.gated())

	queued := &tracked{msg: domain.OutboundMessage{State: domain.StateDispatched}, flight: &flight{}}
	assert.True(t, queued.gated())

	started := &tracked{msg: domain.OutboundMessage{State: domain.StateDispatched}, flight: &flight{started: true}}
	assert.True(t, started.gated())

	sent := &tracked{msg: domain.OutboundMessage{State: domain.StateSent}}
	assert.False(t, sent.gated())

	inBatch := &tracked{msg: domain.OutboundMessage{State: domain.StateDispatched}, batch: &GroupBatch{}}
	assert.True(t, inBatch.gated())

	failed := &tracked{msg: domain.OutboundMessage{State: domain.StateError}}
	assert.False(t, failed.live())
}
