package main

import (
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/skobkin/courier/internal/config"
	"github.com/skobkin/courier/internal/domain"
)

type sendOptions struct {
	Text      string
	Photos    []string
	Videos    []string
	Documents []string
	Thumb     string
	Dice      string
	Location  string
	Silent    bool
	NoWebpage bool
	ReplyTo   int64
	After     time.Duration
	Album     bool
	// AlbumSize caps the files of one album. Longer albums are sent as
	// several consecutive albums.
	AlbumSize int
}

func (o sendOptions) files() int {
	return len(o.Photos) + len(o.Videos) + len(o.Documents)
}

// source treats anything with a scheme as a remote URL and everything else
// as a local path.
func source(raw string) domain.FileSource {
	raw = strings.TrimSpace(raw)
	if strings.Contains(raw, "://") {
		return domain.FileSource{URL: raw}
	}
	return domain.FileSource{Path: raw}
}

// buildIntents turns command line options into intents. Several files become
// albums of at most AlbumSize files when album is set and separate messages
// otherwise. The text is used as the caption of the first file.
func buildIntents(peer domain.Peer, o sendOptions, now time.Time) ([]domain.SendIntent, error) {
	base := domain.SendIntent{
		Peer:    peer,
		ReplyTo: o.ReplyTo,
		Silent:  o.Silent,
	}
	if o.After > 0 {
		base.ScheduleDate = now.Add(o.After)
	}

	var drafts []domain.MediaDraft
	for _, p := range o.Photos {
		drafts = append(drafts, domain.PhotoDraft{FileSource: source(p)})
	}
	for _, v := range o.Videos {
		drafts = append(drafts, domain.VideoDraft{FileSource: source(v), ThumbPath: o.Thumb, SupportsStreaming: true})
	}
	for _, d := range o.Documents {
		drafts = append(drafts, domain.DocumentDraft{FileSource: source(d), ThumbPath: o.Thumb})
	}
	if o.Dice != "" {
		drafts = append(drafts, domain.DiceDraft{Emoticon: o.Dice})
	}
	if o.Location != "" {
		loc, err := parseLocation(o.Location)
		if err != nil {
			return nil, err
		}
		drafts = append(drafts, loc)
	}

	if len(drafts) == 0 {
		if strings.TrimSpace(o.Text) == "" {
			return nil, errors.New("nothing to send: pass text or an attachment")
		}
		in := base
		in.Text = o.Text
		in.Media = domain.TextDraft{NoWebpage: o.NoWebpage}
		return []domain.SendIntent{in}, nil
	}

	out := make([]domain.SendIntent, 0, len(drafts))
	for i, d := range drafts {
		in := base
		in.Media = d
		if i == 0 {
			in.Text = o.Text
		}
		out = append(out, in)
	}
	if o.Album && o.files() > 1 {
		groupAlbums(out, o.AlbumSize)
	}
	return out, nil
}

// groupAlbums assigns group ids to the file intents in chunks of size and
// marks the last file of every chunk as final.
func groupAlbums(intents []domain.SendIntent, size int) {
	if size <= 0 || size > config.DefaultGroupBatchSize {
		size = config.DefaultGroupBatchSize
	}
	var (
		groupID int64
		members int
		last    = -1
	)
	for i := range intents {
		if !domain.IsFileDraft(intents[i].Media) {
			continue
		}
		if members == size {
			intents[last].FinalInGroup = true
			groupID, members = 0, 0
		}
		if groupID == 0 {
			groupID = rand.Int63n(1<<62) + 1
		}
		intents[i].GroupID = groupID
		members++
		last = i
	}
	if last >= 0 {
		intents[last].FinalInGroup = true
	}
}

func parseLocation(raw string) (domain.LocationDraft, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 2 {
		return domain.LocationDraft{}, fmt.Errorf("location must be lat,long: %q", raw)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return domain.LocationDraft{}, fmt.Errorf("parse latitude: %w", err)
	}
	long, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return domain.LocationDraft{}, fmt.Errorf("parse longitude: %w", err)
	}
	return domain.LocationDraft{Lat: lat, Long: long}, nil
}
