package notifications

import (
	"log/slog"

	"github.com/gen2brain/beeep"
)

// DesktopSender shows native desktop notifications through beeep.
type DesktopSender struct {
	logger *slog.Logger
	notify func(title, message string) error
}

func NewDesktopSender(appName string, logger *slog.Logger) *DesktopSender {
	if logger == nil {
		logger = slog.Default()
	}
	if appName != "" {
		beeep.AppName = appName
	}
	return &DesktopSender{
		logger: logger,
		notify: func(title, message string) error {
			return beeep.Notify(title, message, "")
		},
	}
}

// Send never fails the caller; a missing notification daemon is logged.
func (s *DesktopSender) Send(payload Payload) {
	if err := s.notify(payload.Title, payload.Content); err != nil {
		s.logger.Warn("desktop notification failed", "title", payload.Title, "error", err)
	}
}
