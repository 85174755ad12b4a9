package domain

import (
	"strings"
	"time"
)

type MediaKind string

const (
	MediaText         MediaKind = "text"
	MediaPhoto        MediaKind = "photo"
	MediaVideo        MediaKind = "video"
	MediaDocument     MediaKind = "document"
	MediaContact      MediaKind = "contact"
	MediaLocation     MediaKind = "location"
	MediaPoll         MediaKind = "poll"
	MediaGame         MediaKind = "game"
	MediaDice         MediaKind = "dice"
	MediaForward      MediaKind = "forward"
	MediaInlineResult MediaKind = "inline_result"
)

// MediaDraft is the closed set of payloads an outbound message can carry.
type MediaDraft interface {
	Kind() MediaKind
	isMediaDraft()
}

// KindOf treats a nil draft as plain text.
func KindOf(d MediaDraft) MediaKind {
	if d == nil {
		return MediaText
	}
	return d.Kind()
}

type ResourceType int

const (
	ResourcePhoto ResourceType = iota + 1
	ResourceVideo
	ResourceFile
	ResourceAudio
	ResourceSticker
	ResourceGroup
)

func (t ResourceType) String() string {
	switch t {
	case ResourcePhoto:
		return "photo"
	case ResourceVideo:
		return "video"
	case ResourceFile:
		return "file"
	case ResourceAudio:
		return "audio"
	case ResourceSticker:
		return "sticker"
	case ResourceGroup:
		return "group"
	default:
		return "unknown"
	}
}

// MessageOrigin points at the message a remote file was last seen in.
type MessageOrigin struct {
	Peer Peer
	ID   int64
}

// RemoteFile is a file already stored on the server.
type RemoteFile struct {
	ID            int64
	AccessHash    int64
	FileReference []byte
	DCID          int
	Photo         bool
	Origin        MessageOrigin
}

func (r RemoteFile) Clone() RemoteFile {
	out := r
	if r.FileReference != nil {
		out.FileReference = append([]byte(nil), r.FileReference...)
	}
	return out
}

// FileSource holds exactly one of Path, URL or Remote.
type FileSource struct {
	Path   string
	URL    string
	Remote *RemoteFile
}

func (s FileSource) count() int {
	n := 0
	if strings.TrimSpace(s.Path) != "" {
		n++
	}
	if strings.TrimSpace(s.URL) != "" {
		n++
	}
	if s.Remote != nil {
		n++
	}
	return n
}

func (s FileSource) Empty() bool {
	return s.count() == 0
}

func (s FileSource) Valid() bool {
	return s.count() == 1 || (s.Remote != nil && s.URL == "")
}

func (s FileSource) NeedsUpload() bool {
	return s.Remote == nil
}

type PhotoDraft struct {
	FileSource
	Spoiler    bool
	TTLSeconds int
}

func (PhotoDraft) Kind() MediaKind { return MediaPhoto }
func (PhotoDraft) isMediaDraft()   {}

type VideoDraft struct {
	FileSource
	ThumbPath         string
	MimeType          string
	Duration          time.Duration
	Width             int
	Height            int
	RoundMessage      bool
	SupportsStreaming bool
	Spoiler           bool
	TTLSeconds        int
}

func (VideoDraft) Kind() MediaKind { return MediaVideo }
func (VideoDraft) isMediaDraft()   {}

type DocumentType int

const (
	DocumentGeneric DocumentType = iota
	DocumentAudio
	DocumentVoice
	DocumentSticker
	DocumentAnimation
)

type DocumentDraft struct {
	FileSource
	Type      DocumentType
	ThumbPath string
	MimeType  string
	FileName  string
	Duration  time.Duration
	Title     string
	Performer string
}

func (DocumentDraft) Kind() MediaKind { return MediaDocument }
func (DocumentDraft) isMediaDraft()   {}

type ContactDraft struct {
	Phone     string
	FirstName string
	LastName  string
	VCard     string
}

func (ContactDraft) Kind() MediaKind { return MediaContact }
func (ContactDraft) isMediaDraft()   {}

type Venue struct {
	Title     string
	Address   string
	Provider  string
	VenueID   string
	VenueType string
}

// LocationDraft is a plain point, a live location when LivePeriod is set, or
// a venue.
type LocationDraft struct {
	Lat            float64
	Long           float64
	AccuracyRadius int
	LivePeriod     time.Duration
	Venue          *Venue
}

func (LocationDraft) Kind() MediaKind { return MediaLocation }
func (LocationDraft) isMediaDraft()   {}

type PollDraft struct {
	Question       string
	Answers        []string
	Quiz           bool
	MultipleChoice bool
	PublicVoters   bool
	CorrectAnswer  int
	Solution       string
}

func (PollDraft) Kind() MediaKind { return MediaPoll }
func (PollDraft) isMediaDraft()   {}

type GameDraft struct {
	BotID         int64
	BotAccessHash int64
	ShortName     string
}

func (GameDraft) Kind() MediaKind { return MediaGame }
func (GameDraft) isMediaDraft()   {}

type DiceDraft struct {
	Emoticon string
}

func (DiceDraft) Kind() MediaKind { return MediaDice }
func (DiceDraft) isMediaDraft()   {}

type ForwardDraft struct {
	From       Peer
	MessageIDs []int64
	DropAuthor bool
}

func (ForwardDraft) Kind() MediaKind { return MediaForward }
func (ForwardDraft) isMediaDraft()   {}

type InlineResultDraft struct {
	QueryID  int64
	ResultID string
	HideVia  bool
}

func (InlineResultDraft) Kind() MediaKind { return MediaInlineResult }
func (InlineResultDraft) isMediaDraft()   {}

type TextDraft struct {
	NoWebpage bool
}

func (TextDraft) Kind() MediaKind { return MediaText }
func (TextDraft) isMediaDraft()   {}

// SourceOf returns the file source of file-backed drafts.
func SourceOf(d MediaDraft) (FileSource, bool) {
	switch v := d.(type) {
	case PhotoDraft:
		return v.FileSource, true
	case VideoDraft:
		return v.FileSource, true
	case DocumentDraft:
		return v.FileSource, true
	default:
		return FileSource{}, false
	}
}

// IsFileDraft reports whether d is a photo, video or document.
func IsFileDraft(d MediaDraft) bool {
	_, ok := SourceOf(d)
	return ok
}

// WithRemote replaces the file source with an uploaded server file. The local
// path is kept so the attachment can still be shown.
func WithRemote(d MediaDraft, r RemoteFile) MediaDraft {
	set := func(s FileSource) FileSource {
		rc := r.Clone()
		return FileSource{Path: s.Path, Remote: &rc}
	}
	switch v := d.(type) {
	case PhotoDraft:
		v.FileSource = set(v.FileSource)
		return v
	case VideoDraft:
		v.FileSource = set(v.FileSource)
		return v
	case DocumentDraft:
		v.FileSource = set(v.FileSource)
		return v
	default:
		return d
	}
}

func ThumbOf(d MediaDraft) string {
	switch v := d.(type) {
	case VideoDraft:
		return v.ThumbPath
	case DocumentDraft:
		return v.ThumbPath
	default:
		return ""
	}
}

func WithThumb(d MediaDraft, path string) MediaDraft {
	switch v := d.(type) {
	case VideoDraft:
		v.ThumbPath = path
		return v
	case DocumentDraft:
		v.ThumbPath = path
		return v
	default:
		return d
	}
}

func ResourceTypeOf(d MediaDraft) ResourceType {
	switch v := d.(type) {
	case PhotoDraft:
		return ResourcePhoto
	case VideoDraft:
		return ResourceVideo
	case DocumentDraft:
		switch v.Type {
		case DocumentAudio, DocumentVoice:
			return ResourceAudio
		case DocumentSticker:
			return ResourceSticker
		default:
			return ResourceFile
		}
	default:
		return 0
	}
}

type UploadedFile struct {
	ID    int64
	Parts int
	Name  string
	MD5   string
	Big   bool
	Size  int64
}

// MediaHandle is what a finished media job hands back: an uploaded file, or a
// local file produced by a download or transcode.
type MediaHandle struct {
	File      *UploadedFile
	LocalPath string
}
