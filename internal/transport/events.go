// Package transport implements the hybrid transport coordinator: it
// picks shared memory or the network session per peer, and exposes a
// typed event bus that other components (the API server, metrics)
// subscribe to.
package transport

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// EventType classifies a coordinator event.
type EventType int

const (
	EventSessionCreated EventType = iota + 1
	EventTransferProgress
	EventTransferCompleted
	EventSessionFailed
)

func (e EventType) String() string {
	switch e {
	case EventSessionCreated:
		return "SESSION_CREATED"
	case EventTransferProgress:
		return "TRANSFER_PROGRESS"
	case EventTransferCompleted:
		return "TRANSFER_COMPLETED"
	case EventSessionFailed:
		return "SESSION_FAILED"
	default:
		return "UNKNOWN"
	}
}

// Event is one occurrence published on the bus.
type Event struct {
	SessionID       string
	Type            EventType
	Timestamp       time.Time
	ProgressPercent float64
	Message         string
	Metadata        map[string]string
}

// Subscription is an active listener on the bus.
type Subscription struct {
	ID              string
	SessionIDFilter string
	Channel         chan *Event
}

// EventBus fans out coordinator events to subscribers, filtering by
// session id when a subscriber asks for one session specifically.
// Publish never blocks: a subscriber whose channel is full simply
// misses the event rather than stalling the publishing goroutine.
type EventBus struct {
	mu            sync.RWMutex
	subscriptions map[string]*Subscription
	bufferSize    int
}

// NewEventBus creates a bus whose subscriber channels are buffered to
// bufferSize.
func NewEventBus(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &EventBus{subscriptions: make(map[string]*Subscription), bufferSize: bufferSize}
}

// Subscribe registers a new listener; pass "" for sessionIDFilter to
// receive every session's events.
func (b *EventBus) Subscribe(sessionIDFilter string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription{
		ID:              generateSubscriptionID(),
		SessionIDFilter: sessionIDFilter,
		Channel:         make(chan *Event, b.bufferSize),
	}
	b.subscriptions[sub.ID] = sub
	return sub
}

// Unsubscribe removes and closes a subscription.
func (b *EventBus) Unsubscribe(subscriptionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subscriptions[subscriptionID]; ok {
		close(sub.Channel)
		delete(b.subscriptions, subscriptionID)
	}
}

// Publish broadcasts event to every matching subscriber.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subscriptions {
		if sub.SessionIDFilter != "" && sub.SessionIDFilter != event.SessionID {
			continue
		}
		select {
		case sub.Channel <- event:
		default:
		}
	}
}

// PublishSessionCreated announces a new transfer session.
func (b *EventBus) PublishSessionCreated(sessionID, fileName string, totalSize int64) {
	b.Publish(&Event{
		SessionID: sessionID,
		Type:      EventSessionCreated,
		Timestamp: time.Now(),
		Message:   "session created",
		Metadata: map[string]string{
			"file_name":  fileName,
			"total_size": fmt.Sprintf("%d", totalSize),
		},
	})
}

// PublishTransferProgress reports incremental transfer progress.
func (b *EventBus) PublishTransferProgress(sessionID string, progressPercent, rateMbps float64) {
	b.Publish(&Event{
		SessionID:       sessionID,
		Type:            EventTransferProgress,
		Timestamp:       time.Now(),
		ProgressPercent: progressPercent,
		Message:         "transfer in progress",
		Metadata:        map[string]string{"transfer_rate_mbps": fmt.Sprintf("%.2f", rateMbps)},
	})
}

// PublishTransferCompleted announces a finished transfer.
func (b *EventBus) PublishTransferCompleted(sessionID string, totalTime time.Duration, avgSpeedMbps float64) {
	b.Publish(&Event{
		SessionID:       sessionID,
		Type:            EventTransferCompleted,
		Timestamp:       time.Now(),
		ProgressPercent: 100,
		Message:         "transfer completed",
		Metadata: map[string]string{
			"total_time_seconds": fmt.Sprintf("%.0f", totalTime.Seconds()),
			"average_speed_mbps": fmt.Sprintf("%.2f", avgSpeedMbps),
		},
	})
}

// PublishSessionFailed announces a failed session.
func (b *EventBus) PublishSessionFailed(sessionID, reason string) {
	b.Publish(&Event{SessionID: sessionID, Type: EventSessionFailed, Timestamp: time.Now(), Message: reason})
}

// SubscriptionCount returns the number of active subscribers.
func (b *EventBus) SubscriptionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscriptions)
}

func generateSubscriptionID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return time.Now().Format("20060102150405") + "-" + hex.EncodeToString(buf)
}
