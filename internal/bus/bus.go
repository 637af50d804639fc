// Package bus defines the Event Bus Adapter contract (spec §4.2): publish
// fire-and-forget to a named topic, subscribe to request topics, at-least-
// once delivery with idempotent-by-id events. Two adapters are provided:
// an in-memory one (NATS-style wildcard matching, for tests and
// single-process deployment) and a real NATS-backed one.
package bus

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is a bus envelope: an immutable, uniquely-identified fact published
// to a topic. Downstream consumers dedupe on ID.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Source    string                 `json:"source"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// NewEvent builds an Event with a fresh id and the current time.
func NewEvent(eventType, source string, data map[string]interface{}) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// EventHandler processes a single delivered event. A returned error is
// logged by the adapter; it never blocks or retries delivery to other
// subscribers.
type EventHandler func(ctx context.Context, event *Event) error

// Subscription represents an active subscription that can be torn down.
type Subscription interface {
	Unsubscribe() error
	IsValid() bool
}

// EventBus is the narrow contract the orchestration core depends on for
// all bus traffic.
type EventBus interface {
	Publish(ctx context.Context, subject string, event *Event) error
	Subscribe(subject string, handler EventHandler) (Subscription, error)
	QueueSubscribe(subject, queue string, handler EventHandler) (Subscription, error)
	Request(ctx context.Context, subject string, event *Event, timeout time.Duration) (*Event, error)
	Close() error
	IsConnected() bool
}
