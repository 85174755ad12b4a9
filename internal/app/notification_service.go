package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/skobkin/courier/internal/bus"
	"github.com/skobkin/courier/internal/config"
	"github.com/skobkin/courier/internal/domain"
	"github.com/skobkin/courier/internal/events"
	"github.com/skobkin/courier/internal/notifications"
)

const (
	notificationTitleSendFailed   = "Message not sent"
	notificationTitleEditRollback = "Edit reverted"
	notificationSnippetLength     = 80
)

// NotificationService listens to bus events and emits user-facing notifications.
type NotificationService struct {
	bus           bus.MessageBus
	currentConfig func() config.AppConfig
	sender        notifications.Sender
	logger        *slog.Logger
}

func NewNotificationService(
	messageBus bus.MessageBus,
	currentConfig func() config.AppConfig,
	sender notifications.Sender,
	logger *slog.Logger,
) *NotificationService {
	if logger == nil {
		logger = slog.Default().With("component", "app.notifications")
	}

	return &NotificationService{
		bus:           messageBus,
		currentConfig: currentConfig,
		sender:        sender,
		logger:        logger,
	}
}

func (s *NotificationService) Start(ctx context.Context) {
	if s == nil || s.bus == nil || s.sender == nil {
		return
	}

	sub := s.bus.Subscribe(events.TopicMessageFailed, events.TopicEditRolledBack)

	go func() {
		defer s.bus.Unsubscribe(sub, events.TopicMessageFailed, events.TopicEditRolledBack)

		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-sub:
				if !ok {
					return
				}
				switch event := raw.(type) {
				case events.MessageFailed:
					s.handleFailed(event)
				case events.EditRolledBack:
					s.handleRollback(event)
				}
			}
		}
	}()
}

func (s *NotificationService) handleFailed(event events.MessageFailed) {
	prefs := s.notificationPrefs()
	if !prefs.Enabled || !prefs.Events.SendFailed {
		return
	}
	s.send(notifications.Payload{
		Title:   notificationTitleSendFailed,
		Content: describe(event.Message, event.Reason),
	})
}

func (s *NotificationService) handleRollback(event events.EditRolledBack) {
	prefs := s.notificationPrefs()
	if !prefs.Enabled || !prefs.Events.EditRollback {
		return
	}
	s.send(notifications.Payload{
		Title:   notificationTitleEditRollback,
		Content: describe(event.Message, event.Reason),
	})
}

func (s *NotificationService) notificationPrefs() config.NotificationConfig {
	cfg := config.Default()
	if s.currentConfig != nil {
		cfg = s.currentConfig()
		cfg.FillMissingDefaults()
	}

	return cfg.Notifications
}

func (s *NotificationService) send(notification notifications.Payload) {
	title := strings.TrimSpace(notification.Title)
	content := strings.TrimSpace(notification.Content)
	if title == "" && content == "" {
		return
	}
	s.logger.Debug("sending notification", "title", title)
	s.sender.Send(notifications.Payload{
		Title:   title,
		Content: content,
	})
}

// describe names the message by its text, or by its media kind when the text
// is empty, and appends the reason.
func describe(msg domain.OutboundMessage, reason string) string {
	subject := snippet(msg.Text)
	if subject == "" {
		subject = string(domain.KindOf(msg.Media))
		if msg.AttachPath != "" {
			subject = fmt.Sprintf("%s %s", subject, baseName(msg.AttachPath))
		}
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return subject
	}

	return fmt.Sprintf("%s: %s", subject, reason)
}

func snippet(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= notificationSnippetLength {
		return text
	}
	runes := []rune(text)

	return string(runes[:notificationSnippetLength-1]) + "…"
}

func baseName(path string) string {
	path = strings.TrimRight(path, "/\\")
	if i := strings.LastIndexAny(path, "/\\"); i >= 0 {
		return path[i+1:]
	}

	return path
}
