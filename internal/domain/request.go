package domain

import "time"

type RequestKind int

const (
	RequestText RequestKind = iota + 1
	RequestMedia
	RequestMultiMedia
	RequestForward
	RequestInlineResult
	RequestEditMedia
)

func (k RequestKind) String() string {
	switch k {
	case RequestText:
		return "text"
	case RequestMedia:
		return "media"
	case RequestMultiMedia:
		return "multi_media"
	case RequestForward:
		return "forward"
	case RequestInlineResult:
		return "inline_result"
	case RequestEditMedia:
		return "edit_media"
	default:
		return "unknown"
	}
}

// InputMedia is the media field of a request item. File and Thumb are
// placeholders filled as uploads finish.
type InputMedia struct {
	Draft      MediaDraft
	File       *UploadedFile
	Thumb      *UploadedFile
	NeedsFile  bool
	NeedsThumb bool
}

func (m *InputMedia) Filled() bool {
	if m == nil {
		return true
	}
	return (!m.NeedsFile || m.File != nil) && (!m.NeedsThumb || m.Thumb != nil)
}

type RequestItem struct {
	LocalID  int64
	RandomID int64
	Message  string
	Entities []Entity
	Media    *InputMedia
}

type SendRequest struct {
	Kind         RequestKind
	Peer         Peer
	Items        []RequestItem
	ReplyTo      int64
	Silent       bool
	ScheduleDate time.Time
	NoWebpage    bool
	EditID       int64
	// Encrypted is set when the request was wrapped for a secret chat.
	Encrypted []byte
}

func (r SendRequest) RandomIDs() []int64 {
	out := make([]int64, 0, len(r.Items))
	for _, it := range r.Items {
		out = append(out, it.RandomID)
	}
	return out
}

type ServerMessage struct {
	ID       int64
	RandomID int64
	Date     time.Time
	Remote   *RemoteFile
}

type SendResponse struct {
	Messages []ServerMessage
}

func (r SendResponse) ByRandomID(randomID int64) (ServerMessage, bool) {
	if randomID == 0 {
		return ServerMessage{}, false
	}
	for _, m := range r.Messages {
		if m.RandomID == randomID {
			return m, true
		}
	}
	return ServerMessage{}, false
}
