package telegram

import (
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/gotd/td/tg"

	"github.com/skobkin/courier/internal/domain"
)

var errMissingFile = errors.New("media has neither an uploaded nor a remote file")

func inputFile(f *domain.UploadedFile) tg.InputFileClass {
	if f.Big {
		return &tg.InputFileBig{ID: f.ID, Parts: f.Parts, Name: f.Name}
	}
	return &tg.InputFile{ID: f.ID, Parts: f.Parts, Name: f.Name, MD5Checksum: f.MD5}
}

func inputMedia(m *domain.InputMedia) (tg.InputMediaClass, error) {
	if m == nil {
		return nil, errors.New("request item has no media")
	}
	switch d := m.Draft.(type) {
	case domain.PhotoDraft:
		if m.File != nil {
			return &tg.InputMediaUploadedPhoto{File: inputFile(m.File), Spoiler: d.Spoiler, TTLSeconds: d.TTLSeconds}, nil
		}
		if d.Remote != nil {
			return &tg.InputMediaPhoto{ID: inputPhoto(*d.Remote), Spoiler: d.Spoiler, TTLSeconds: d.TTLSeconds}, nil
		}
		return nil, errMissingFile
	case domain.VideoDraft:
		if m.File != nil {
			attrs := []tg.DocumentAttributeClass{
				&tg.DocumentAttributeVideo{
					RoundMessage:      d.RoundMessage,
					SupportsStreaming: d.SupportsStreaming,
					Duration:          d.Duration.Seconds(),
					W:                 d.Width,
					H:                 d.Height,
				},
				&tg.DocumentAttributeFilename{FileName: fileName(d.Path, m.File)},
			}
			out := &tg.InputMediaUploadedDocument{
				File:       inputFile(m.File),
				MimeType:   mimeType(d.MimeType, d.Path, "video/mp4"),
				Attributes: attrs,
				Spoiler:    d.Spoiler,
				TTLSeconds: d.TTLSeconds,
			}
			if m.Thumb != nil {
				out.Thumb = inputFile(m.Thumb)
			}
			return out, nil
		}
		if d.Remote != nil {
			return &tg.InputMediaDocument{ID: inputDocument(*d.Remote), Spoiler: d.Spoiler, TTLSeconds: d.TTLSeconds}, nil
		}
		return nil, errMissingFile
	case domain.DocumentDraft:
		if m.File != nil {
			name := d.FileName
			if name == "" {
				name = fileName(d.Path, m.File)
			}
			out := &tg.InputMediaUploadedDocument{
				File:       inputFile(m.File),
				MimeType:   mimeType(d.MimeType, name, "application/octet-stream"),
				Attributes: append(documentAttributes(d), &tg.DocumentAttributeFilename{FileName: name}),
				ForceFile:  d.Type == domain.DocumentGeneric,
			}
			if m.Thumb != nil {
				out.Thumb = inputFile(m.Thumb)
			}
			return out, nil
		}
		if d.Remote != nil {
			return &tg.InputMediaDocument{ID: inputDocument(*d.Remote)}, nil
		}
		return nil, errMissingFile
	case domain.ContactDraft:
		return &tg.InputMediaContact{
			PhoneNumber: d.Phone,
			FirstName:   d.FirstName,
			LastName:    d.LastName,
			Vcard:       d.VCard,
		}, nil
	case domain.LocationDraft:
		point := &tg.InputGeoPoint{Lat: d.Lat, Long: d.Long, AccuracyRadius: d.AccuracyRadius}
		switch {
		case d.Venue != nil:
			return &tg.InputMediaVenue{
				GeoPoint:  point,
				Title:     d.Venue.Title,
				Address:   d.Venue.Address,
				Provider:  d.Venue.Provider,
				VenueID:   d.Venue.VenueID,
				VenueType: d.Venue.VenueType,
			}, nil
		case d.LivePeriod > 0:
			return &tg.InputMediaGeoLive{GeoPoint: point, Period: int(d.LivePeriod.Seconds())}, nil
		default:
			return &tg.InputMediaGeoPoint{GeoPoint: point}, nil
		}
	case domain.PollDraft:
		return inputPoll(d), nil
	case domain.GameDraft:
		return &tg.InputMediaGame{ID: &tg.InputGameShortName{
			BotID:     &tg.InputUser{UserID: d.BotID, AccessHash: d.BotAccessHash},
			ShortName: d.ShortName,
		}}, nil
	case domain.DiceDraft:
		return &tg.InputMediaDice{Emoticon: d.Emoticon}, nil
	default:
		return nil, fmt.Errorf("media %s cannot be sent as input media", domain.KindOf(m.Draft))
	}
}

func inputPhoto(r domain.RemoteFile) *tg.InputPhoto {
	return &tg.InputPhoto{ID: r.ID, AccessHash: r.AccessHash, FileReference: r.FileReference}
}

func inputDocument(r domain.RemoteFile) *tg.InputDocument {
	return &tg.InputDocument{ID: r.ID, AccessHash: r.AccessHash, FileReference: r.FileReference}
}

func documentAttributes(d domain.DocumentDraft) []tg.DocumentAttributeClass {
	switch d.Type {
	case domain.DocumentAudio:
		return []tg.DocumentAttributeClass{&tg.DocumentAttributeAudio{
			Duration:  int(d.Duration.Seconds()),
			Title:     d.Title,
			Performer: d.Performer,
		}}
	case domain.DocumentVoice:
		return []tg.DocumentAttributeClass{&tg.DocumentAttributeAudio{Voice: true, Duration: int(d.Duration.Seconds())}}
	case domain.DocumentSticker:
		return []tg.DocumentAttributeClass{&tg.DocumentAttributeSticker{Stickerset: &tg.InputStickerSetEmpty{}}}
	case domain.DocumentAnimation:
		return []tg.DocumentAttributeClass{&tg.DocumentAttributeAnimated{}}
	default:
		return nil
	}
}

func inputPoll(d domain.PollDraft) *tg.InputMediaPoll {
	answers := make([]tg.PollAnswer, 0, len(d.Answers))
	for i, a := range d.Answers {
		answers = append(answers, tg.PollAnswer{Text: a, Option: []byte{byte('0' + i)}})
	}
	out := &tg.InputMediaPoll{Poll: tg.Poll{
		Question:       d.Question,
		Answers:        answers,
		Quiz:           d.Quiz,
		MultipleChoice: d.MultipleChoice,
		PublicVoters:   d.PublicVoters,
	}}
	if d.Quiz {
		out.CorrectAnswers = [][]byte{{byte('0' + d.CorrectAnswer)}}
		out.Solution = d.Solution
	}
	return out
}

func fileName(path string, f *domain.UploadedFile) string {
	if path != "" {
		return filepath.Base(path)
	}
	if f != nil && f.Name != "" {
		return f.Name
	}
	return "file"
}

func mimeType(explicit, name, fallback string) string {
	if explicit != "" {
		return explicit
	}
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); t != "" {
		if i := strings.IndexByte(t, ';'); i >= 0 {
			t = t[:i]
		}
		return t
	}
	return fallback
}

func entities(in []domain.Entity) []tg.MessageEntityClass {
	if len(in) == 0 {
		return nil
	}
	out := make([]tg.MessageEntityClass, 0, len(in))
	for _, e := range in {
		if ent := entity(e); ent != nil {
			out = append(out, ent)
		}
	}
	return out
}

func entity(e domain.Entity) tg.MessageEntityClass {
	switch e.Type {
	case "bold":
		return &tg.MessageEntityBold{Offset: e.Offset, Length: e.Length}
	case "italic":
		return &tg.MessageEntityItalic{Offset: e.Offset, Length: e.Length}
	case "underline":
		return &tg.MessageEntityUnderline{Offset: e.Offset, Length: e.Length}
	case "strike":
		return &tg.MessageEntityStrike{Offset: e.Offset, Length: e.Length}
	case "spoiler":
		return &tg.MessageEntitySpoiler{Offset: e.Offset, Length: e.Length}
	case "code":
		return &tg.MessageEntityCode{Offset: e.Offset, Length: e.Length}
	case "pre":
		return &tg.MessageEntityPre{Offset: e.Offset, Length: e.Length, Language: e.URL}
	case "url":
		if e.URL != "" {
			return &tg.MessageEntityTextURL{Offset: e.Offset, Length: e.Length, URL: e.URL}
		}
		return &tg.MessageEntityURL{Offset: e.Offset, Length: e.Length}
	case "mention":
		return &tg.MessageEntityMention{Offset: e.Offset, Length: e.Length}
	case "hashtag":
		return &tg.MessageEntityHashtag{Offset: e.Offset, Length: e.Length}
	case "blockquote":
		return &tg.MessageEntityBlockquote{Offset: e.Offset, Length: e.Length}
	default:
		return nil
	}
}
