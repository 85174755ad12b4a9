package telegram

import (
	"time"

	"github.com/gotd/td/tg"

	"github.com/skobkin/courier/internal/domain"
)

// sendResponse pairs the random ids in updateMessageID with the messages the
// server created. Messages without a random id, such as edits, are reported
// with RandomID zero.
func sendResponse(peer domain.Peer, updates tg.UpdatesClass) domain.SendResponse {
	var list []tg.UpdateClass
	switch u := updates.(type) {
	case *tg.Updates:
		list = u.Updates
	case *tg.UpdatesCombined:
		list = u.Updates
	case *tg.UpdateShort:
		list = []tg.UpdateClass{u.Update}
	case *tg.UpdateShortSentMessage:
		return domain.SendResponse{Messages: []domain.ServerMessage{{
			ID:     int64(u.ID),
			Date:   time.Unix(int64(u.Date), 0),
			Remote: remoteOf(peer, u.ID, u.Media),
		}}}
	}

	randomIDs := make(map[int]int64)
	var created []*tg.Message
	for _, upd := range list {
		switch v := upd.(type) {
		case *tg.UpdateMessageID:
			randomIDs[v.ID] = v.RandomID
		case *tg.UpdateNewMessage:
			created = appendMessage(created, v.Message)
		case *tg.UpdateNewChannelMessage:
			created = appendMessage(created, v.Message)
		case *tg.UpdateNewScheduledMessage:
			created = appendMessage(created, v.Message)
		case *tg.UpdateEditMessage:
			created = appendMessage(created, v.Message)
		case *tg.UpdateEditChannelMessage:
			created = appendMessage(created, v.Message)
		}
	}

	var resp domain.SendResponse
	seen := make(map[int]bool, len(created))
	for _, m := range created {
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		resp.Messages = append(resp.Messages, domain.ServerMessage{
			ID:       int64(m.ID),
			RandomID: randomIDs[m.ID],
			Date:     time.Unix(int64(m.Date), 0),
			Remote:   remoteOf(peer, m.ID, m.Media),
		})
	}
	// updateMessageID can arrive alone when the message itself is delivered
	// through a later difference.
	for id, randomID := range randomIDs {
		if !seen[id] {
			resp.Messages = append(resp.Messages, domain.ServerMessage{ID: int64(id), RandomID: randomID})
		}
	}
	return resp
}

func appendMessage(out []*tg.Message, m tg.MessageClass) []*tg.Message {
	if msg, ok := m.(*tg.Message); ok {
		return append(out, msg)
	}
	return out
}

// remoteOf extracts the stored file of a sent photo or document.
func remoteOf(peer domain.Peer, msgID int, media tg.MessageMediaClass) *domain.RemoteFile {
	origin := domain.MessageOrigin{Peer: peer, ID: int64(msgID)}
	switch m := media.(type) {
	case *tg.MessageMediaPhoto:
		if p, ok := m.Photo.(*tg.Photo); ok {
			return &domain.RemoteFile{
				ID:            p.ID,
				AccessHash:    p.AccessHash,
				FileReference: p.FileReference,
				DCID:          p.DCID,
				Photo:         true,
				Origin:        origin,
			}
		}
	case *tg.MessageMediaDocument:
		if d, ok := m.Document.(*tg.Document); ok {
			return &domain.RemoteFile{
				ID:            d.ID,
				AccessHash:    d.AccessHash,
				FileReference: d.FileReference,
				DCID:          d.DCID,
				Origin:        origin,
			}
		}
	}
	return nil
}

// uploadedInput turns the media returned by messages.uploadMedia into a
// reference usable inside an album.
func uploadedInput(media tg.MessageMediaClass, spoiler bool) (tg.InputMediaClass, bool) {
	r := remoteOf(domain.Peer{}, 0, media)
	if r == nil {
		return nil, false
	}
	if r.Photo {
		return &tg.InputMediaPhoto{ID: inputPhoto(*r), Spoiler: spoiler}, true
	}
	return &tg.InputMediaDocument{ID: inputDocument(*r), Spoiler: spoiler}, true
}
