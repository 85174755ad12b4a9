package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/skobkin/courier/internal/bus"
	"github.com/skobkin/courier/internal/config"
	"github.com/skobkin/courier/internal/domain"
	"github.com/skobkin/courier/internal/events"
	"github.com/skobkin/courier/internal/notifications"
)

func TestNotificationServiceSendFailed(t *testing.T) {
	messageBus := newTestMessageBus(t)
	cfg := config.Default()
	sender := newCollectingNotificationSender()
	service := NewNotificationService(messageBus, func() config.AppConfig { return cfg }, sender, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	service.Start(ctx)

	messageBus.Publish(events.TopicMessageFailed, events.MessageFailed{
		Message: domain.OutboundMessage{LocalID: -1, Text: "Hello   there"},
		Reason:  "transport error 400 PEER_ID_INVALID",
	})

	got := sender.waitForCount(t, 1)
	if got[0].Title != notificationTitleSendFailed {
		t.Fatalf("unexpected title %q", got[0].Title)
	}
	if got[0].Content != "Hello there: transport error 400 PEER_ID_INVALID" {
		t.Fatalf("unexpected content %q", got[0].Content)
	}
}

func TestNotificationServiceEditRollbackNamesAttachment(t *testing.T) {
	messageBus := newTestMessageBus(t)
	cfg := config.Default()
	sender := newCollectingNotificationSender()
	service := NewNotificationService(messageBus, func() config.AppConfig { return cfg }, sender, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	service.Start(ctx)

	messageBus.Publish(events.TopicEditRolledBack, events.EditRolledBack{
		Message: domain.OutboundMessage{
			ServerID:   300,
			Media:      domain.PhotoDraft{FileSource: domain.FileSource{Path: "/tmp/shots/cat.jpg"}},
			AttachPath: "/tmp/shots/cat.jpg",
		},
		Reason: domain.ErrCancelled.Error(),
	})

	got := sender.waitForCount(t, 1)
	if got[0].Title != notificationTitleEditRollback {
		t.Fatalf("unexpected title %q", got[0].Title)
	}
	if got[0].Content != "photo cat.jpg: cancelled" {
		t.Fatalf("unexpected content %q", got[0].Content)
	}
}

func TestNotificationServiceRespectsPreferences(t *testing.T) {
	messageBus := newTestMessageBus(t)
	cfg := config.Default()
	cfg.Notifications.Events.SendFailed = false
	sender := newCollectingNotificationSender()
	service := NewNotificationService(messageBus, func() config.AppConfig { return cfg }, sender, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	service.Start(ctx)

	messageBus.Publish(events.TopicMessageFailed, events.MessageFailed{
		Message: domain.OutboundMessage{Text: "muted"},
		Reason:  errors.New("boom").Error(),
	})
	messageBus.Publish(events.TopicEditRolledBack, events.EditRolledBack{
		Message: domain.OutboundMessage{Text: "still shown"},
	})

	got := sender.waitForCount(t, 1)
	time.Sleep(30 * time.Millisecond)
	got = sender.snapshot()
	if len(got) != 1 || got[0].Content != "still shown" {
		t.Fatalf("unexpected notifications: %+v", got)
	}
}

func TestNotificationServiceDisabled(t *testing.T) {
	messageBus := newTestMessageBus(t)
	cfg := config.Default()
	cfg.Notifications.Enabled = false
	sender := newCollectingNotificationSender()
	service := NewNotificationService(messageBus, func() config.AppConfig { return cfg }, sender, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	service.Start(ctx)

	messageBus.Publish(events.TopicMessageFailed, events.MessageFailed{Message: domain.OutboundMessage{Text: "x"}})
	time.Sleep(30 * time.Millisecond)
	if got := sender.snapshot(); len(got) != 0 {
		t.Fatalf("expected no notifications, got %+v", got)
	}
}

func TestSnippetTruncatesLongText(t *testing.T) {
	long := strings.Repeat("ab ", 60)
	got := snippet(long)
	if n := len([]rune(got)); n != notificationSnippetLength {
		t.Fatalf("expected %d runes, got %d", notificationSnippetLength, n)
	}
	if !strings.HasSuffix(got, "…") {
		t.Fatalf("expected ellipsis, got %q", got)
	}
}

func newTestMessageBus(t *testing.T) *bus.PubSubBus {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	messageBus := bus.New(logger, 16)
	t.Cleanup(func() {
		messageBus.Close()
	})

	return messageBus
}

type collectingNotificationSender struct {
	mu            sync.Mutex
	notifications []notifications.Payload
	changes       chan struct{}
}

func newCollectingNotificationSender() *collectingNotificationSender {
	return &collectingNotificationSender{
		changes: make(chan struct{}, 1),
	}
}

func (s *collectingNotificationSender) Send(notification notifications.Payload) {
	s.mu.Lock()
	s.notifications = append(s.notifications, notification)
	s.mu.Unlock()

	select {
	case s.changes <- struct{}{}:
	default:
	}
}

func (s *collectingNotificationSender) snapshot() []notifications.Payload {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]notifications.Payload, len(s.notifications))
	copy(out, s.notifications)

	return out
}

func (s *collectingNotificationSender) waitForCount(t *testing.T, expected int) []notifications.Payload {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		current := s.snapshot()
		if len(current) >= expected {
			return current
		}
		select {
		case <-s.changes:
		case <-time.After(10 * time.Millisecond):
		}
	}
	t.Fatalf("timed out waiting for %d notifications, got %d", expected, len(s.snapshot()))

	return nil
}
