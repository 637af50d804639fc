// Package broadcast implements the Broadcaster (spec §4.3): a per-discussion
// set of opaque live subscribers. Delivery to one subscriber never blocks or
// fails delivery to another. Grounded on the channel-per-subscriber,
// ctx-cancel-auto-cleanup pattern used elsewhere in the pack, adapted away
// from the teacher's websocket-coupled Hub since subscribers here are
// transport-agnostic sinks, not live connections.
package broadcast

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/kandev/discussord/internal/logger"
	v1 "github.com/kandev/discussord/pkg/api/v1"
)

const subscriberBufferSize = 64

// Broadcaster fans out Events to subscribers registered per discussion id.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan *v1.Event
	logger      *logger.Logger
}

// New constructs a Broadcaster.
func New(log *logger.Logger) *Broadcaster {
	if log == nil {
		log = logger.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]map[string]chan *v1.Event),
		logger:      log.WithFields(),
	}
}

// Subscribe registers a new subscriber for discussionID. The returned
// channel is closed when the subscription is torn down, either explicitly
// via the returned unsubscribe id or automatically when ctx is cancelled.
func (b *Broadcaster) Subscribe(ctx context.Context, discussionID string) (<-chan *v1.Event, string) {
	subID := uuid.New().String()
	ch := make(chan *v1.Event, subscriberBufferSize)

	b.mu.Lock()
	if _, ok := b.subscribers[discussionID]; !ok {
		b.subscribers[discussionID] = make(map[string]chan *v1.Event)
	}
	b.subscribers[discussionID][subID] = ch
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.Unsubscribe(discussionID, subID)
	}()

	return ch, subID
}

// Broadcast delivers event to every current subscriber of discussionID.
// Delivery is non-blocking: a subscriber whose channel is full has the
// event dropped for it rather than stalling the others.
func (b *Broadcaster) Broadcast(discussionID string, event *v1.Event) {
	b.mu.RLock()
	subs, ok := b.subscribers[discussionID]
	if !ok || len(subs) == 0 {
		b.mu.RUnlock()
		return
	}
	targets := make([]chan *v1.Event, 0, len(subs))
	for _, ch := range subs {
		targets = append(targets, ch)
	}
	b.mu.RUnlock()

	for _, ch := range targets {
		select {
		case ch <- event:
		default:
			b.logger.Debug("dropped event for slow subscriber")
		}
	}
}

// Unsubscribe removes and closes a subscriber's channel. Safe to call more
// than once for the same (discussionID, subID).
func (b *Broadcaster) Unsubscribe(discussionID, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[discussionID]
	if !ok {
		return
	}
	ch, ok := subs[subID]
	if !ok {
		return
	}
	delete(subs, subID)
	close(ch)
	if len(subs) == 0 {
		delete(b.subscribers, discussionID)
	}
}

// SubscriberCount reports how many live subscribers a discussion has.
func (b *Broadcaster) SubscriberCount(discussionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[discussionID])
}

// Close tears down every subscriber across every discussion.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for key, subs := range b.subscribers {
		for id, ch := range subs {
			close(ch)
			delete(subs, id)
		}
		delete(b.subscribers, key)
	}
}
