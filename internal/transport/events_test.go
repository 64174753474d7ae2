package transport

import "testing"

func TestEventBusPublishFiltersBySession(t *testing.T) {
	bus := NewEventBus(4)
	sub := bus.Subscribe("session-1")
	defer bus.Unsubscribe(sub.ID)

	bus.PublishSessionCreated("session-2", "other.txt", 10)
	select {
	case <-sub.Channel:
		t.Fatalf("should not have received event for a different session")
	default:
	}

	bus.PublishSessionCreated("session-1", "file.txt", 10)
	select {
	case ev := <-sub.Channel:
		if ev.SessionID != "session-1" {
			t.Fatalf("unexpected session id %q", ev.SessionID)
		}
	default:
		t.Fatalf("expected event for subscribed session")
	}
}

func TestEventBusSlowConsumerDoesNotBlock(t *testing.T) {
	bus := NewEventBus(1)
	sub := bus.Subscribe("")
	defer bus.Unsubscribe(sub.ID)

	for i := 0; i < 10; i++ {
		bus.PublishTransferProgress("s", float64(i), 1.0)
	}
	// Must not have blocked or panicked; one event should remain queued.
	if len(sub.Channel) != 1 {
		t.Fatalf("expected buffered channel to hold exactly 1 event, got %d", len(sub.Channel))
	}
}
