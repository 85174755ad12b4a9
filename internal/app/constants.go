package app

const (
	Name           = "courier"
	SourceURL      = "https://git.skobk.in/skobkin/courier"
	ConfigFilename = "config.json"
	DBFilename     = "app.db"
	LogFilename    = "app.log"
	// SessionFilename holds the MTProto session so logins survive restarts.
	SessionFilename = "session.json"
	MediaDir        = "media"
	WriterQueueSize = 512
	BusCapacity     = 128
)
