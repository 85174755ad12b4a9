package persistence

import (
	"encoding/json"
	"fmt"

	"github.com/skobkin/courier/internal/domain"
)

// encodeDraft stores a draft as its kind plus a JSON body. Plain text
// without options has no body.
func encodeDraft(d domain.MediaDraft) (string, any, error) {
	kind := domain.KindOf(d)
	if d == nil {
		return string(kind), nil, nil
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return "", nil, fmt.Errorf("encode %s draft: %w", kind, err)
	}
	return string(kind), string(raw), nil
}

func decodeDraft(kind string, raw string) (domain.MediaDraft, error) {
	if raw == "" {
		if domain.MediaKind(kind) == domain.MediaText {
			return nil, nil
		}
		return nil, fmt.Errorf("draft %q has no body", kind)
	}
	var (
		d   domain.MediaDraft
		err error
	)
	switch domain.MediaKind(kind) {
	case domain.MediaText:
		d, err = decodeAs[domain.TextDraft](raw)
	case domain.MediaPhoto:
		d, err = decodeAs[domain.PhotoDraft](raw)
	case domain.MediaVideo:
		d, err = decodeAs[domain.VideoDraft](raw)
	case domain.MediaDocument:
		d, err = decodeAs[domain.DocumentDraft](raw)
	case domain.MediaContact:
		d, err = decodeAs[domain.ContactDraft](raw)
	case domain.MediaLocation:
		d, err = decodeAs[domain.LocationDraft](raw)
	case domain.MediaPoll:
		d, err = decodeAs[domain.PollDraft](raw)
	case domain.MediaGame:
		d, err = decodeAs[domain.GameDraft](raw)
	case domain.MediaDice:
		d, err = decodeAs[domain.DiceDraft](raw)
	case domain.MediaForward:
		d, err = decodeAs[domain.ForwardDraft](raw)
	case domain.MediaInlineResult:
		d, err = decodeAs[domain.InlineResultDraft](raw)
	default:
		return nil, fmt.Errorf("unknown draft kind %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s draft: %w", kind, err)
	}
	return d, nil
}

func decodeAs[T domain.MediaDraft](raw string) (domain.MediaDraft, error) {
	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, err
	}
	return v, nil
}

func encodeJSON(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}
