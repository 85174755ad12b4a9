package domain

import "time"

type SendIntent struct {
	Peer         Peer
	Text         string
	Entities     []Entity
	Media        MediaDraft
	ReplyTo      int64
	Silent       bool
	ScheduleDate time.Time
	GroupID      int64
	FinalInGroup bool
}

type EditIntent struct {
	Media    MediaDraft
	Caption  string
	Entities []Entity
}
