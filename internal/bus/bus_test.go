package bus

import (
	"io"
	"log/slog"
	"testing"
	"time"
)

func TestPubSubBusDeliversToSubscribedTopics(t *testing.T) {
	b := New(slog.New(slog.NewTextHandler(io.Discard, nil)), 4)
	defer b.Close()

	sub := b.Subscribe("message.sent", "message.failed")
	b.Publish("message.sent", 1)
	b.Publish("message.created", 2)
	b.Publish("message.failed", 3)

	for _, want := range []int{1, 3} {
		select {
		case got := <-sub:
			if got != want {
				t.Fatalf("expected %d, got %v", want, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %d", want)
		}
	}
}

func TestPubSubBusUnsubscribeAllClosesChannel(t *testing.T) {
	b := New(nil, 0)
	defer b.Close()

	sub := b.Subscribe("message.sent")
	b.Unsubscribe(sub)

	select {
	case _, ok := <-sub:
		if ok {
			t.Fatalf("expected closed subscription")
		}
	case <-time.After(time.Second):
		t.Fatalf("subscription was not closed")
	}
}
