package bus

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kandev/discussord/internal/logger"
)

var ErrBusClosed = errors.New("event bus closed")

// MemoryEventBus is an in-memory EventBus with NATS-style wildcard subject
// matching (`*` matches one token, `>` matches the remaining tokens) and
// queue-group round-robin load balancing.
type MemoryEventBus struct {
	mu            sync.RWMutex
	subscriptions map[string][]*memorySubscription
	queues        map[string]*queueGroup
	logger        *logger.Logger
	closed        bool
}

type memorySubscription struct {
	bus     *MemoryEventBus
	subject string
	pattern *regexp.Regexp
	handler EventHandler
	queue   string
	active  bool
	mu      sync.Mutex
}

func (s *memorySubscription) Unsubscribe() error {
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()
	s.bus.removeSubscription(s)
	return nil
}

func (s *memorySubscription) IsValid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

type queueGroup struct {
	mu          sync.Mutex
	subscribers []*memorySubscription
	nextIndex   int
}

// NewMemoryEventBus constructs an in-memory bus. Pass nil logger for the
// process default.
func NewMemoryEventBus(log *logger.Logger) *MemoryEventBus {
	if log == nil {
		log = logger.Default()
	}
	return &MemoryEventBus{
		subscriptions: make(map[string][]*memorySubscription),
		queues:        make(map[string]*queueGroup),
		logger:        log.WithFields(),
	}
}

func (b *MemoryEventBus) Publish(ctx context.Context, subject string, event *Event) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrBusClosed
	}
	var matched []*memorySubscription
	queuesSeen := make(map[string]bool)
	for _, subs := range b.subscriptions {
		for _, sub := range subs {
			if !matches(subject, sub.subject, sub.pattern) {
				continue
			}
			if sub.queue != "" {
				if queuesSeen[sub.queue] {
					continue
				}
				queuesSeen[sub.queue] = true
			}
			matched = append(matched, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range matched {
		if sub.queue != "" {
			b.publishToQueue(ctx, sub.queue, event)
			continue
		}
		handler := sub.handler
		go func() {
			if err := handler(ctx, event); err != nil {
				b.logger.Error("event handler failed", zap.Error(err))
			}
		}()
	}
	return nil
}

func (b *MemoryEventBus) publishToQueue(ctx context.Context, queue string, event *Event) {
	b.mu.RLock()
	g, ok := b.queues[queue]
	b.mu.RUnlock()
	if !ok {
		return
	}
	g.mu.Lock()
	var chosen *memorySubscription
	n := len(g.subscribers)
	for i := 0; i < n; i++ {
		idx := (g.nextIndex + i) % n
		if g.subscribers[idx].IsValid() {
			chosen = g.subscribers[idx]
			g.nextIndex = (idx + 1) % n
			break
		}
	}
	g.mu.Unlock()
	if chosen == nil {
		return
	}
	go func() {
		if err := chosen.handler(ctx, event); err != nil {
			b.logger.Error("queue handler failed", zap.Error(err))
		}
	}()
}

func (b *MemoryEventBus) Subscribe(subject string, handler EventHandler) (Subscription, error) {
	return b.subscribe(subject, "", handler)
}

func (b *MemoryEventBus) QueueSubscribe(subject, queue string, handler EventHandler) (Subscription, error) {
	return b.subscribe(subject, queue, handler)
}

func (b *MemoryEventBus) subscribe(subject, queue string, handler EventHandler) (Subscription, error) {
	pattern, err := compilePattern(subject)
	if err != nil {
		return nil, fmt.Errorf("invalid subject pattern %q: %w", subject, err)
	}
	sub := &memorySubscription{bus: b, subject: subject, pattern: pattern, handler: handler, queue: queue, active: true}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBusClosed
	}
	b.subscriptions[subject] = append(b.subscriptions[subject], sub)
	if queue != "" {
		g, ok := b.queues[queue]
		if !ok {
			g = &queueGroup{}
			b.queues[queue] = g
		}
		g.mu.Lock()
		g.subscribers = append(g.subscribers, sub)
		g.mu.Unlock()
	}
	return sub, nil
}

func (b *MemoryEventBus) removeSubscription(target *memorySubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subscriptions[target.subject]
	for i, s := range subs {
		if s == target {
			b.subscriptions[target.subject] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
}

func (b *MemoryEventBus) Request(ctx context.Context, subject string, event *Event, timeout time.Duration) (*Event, error) {
	replySubject := "_INBOX." + event.ID
	responseCh := make(chan *Event, 1)

	sub, err := b.Subscribe(replySubject, func(_ context.Context, e *Event) error {
		select {
		case responseCh <- e:
		default:
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	defer sub.Unsubscribe()

	if err := b.Publish(ctx, subject, event); err != nil {
		return nil, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	select {
	case resp := <-responseCh:
		return resp, nil
	case <-reqCtx.Done():
		return nil, fmt.Errorf("request to %s timed out: %w", subject, reqCtx.Err())
	}
}

func (b *MemoryEventBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, subs := range b.subscriptions {
		for _, s := range subs {
			s.mu.Lock()
			s.active = false
			s.mu.Unlock()
		}
	}
	b.subscriptions = make(map[string][]*memorySubscription)
	b.queues = make(map[string]*queueGroup)
	b.closed = true
	return nil
}

func (b *MemoryEventBus) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return !b.closed
}

func matches(subject, pattern string, regex *regexp.Regexp) bool {
	if !strings.ContainsAny(pattern, "*>") {
		return subject == pattern
	}
	return regex.MatchString(subject)
}

// compilePattern turns a NATS-style subject pattern into a regex: `*`
// matches exactly one `.`-delimited token, `>` matches one-or-more
// trailing tokens.
func compilePattern(pattern string) (*regexp.Regexp, error) {
	tokens := strings.Split(pattern, ".")
	var parts []string
	for i, tok := range tokens {
		switch tok {
		case "*":
			parts = append(parts, `[^.]+`)
		case ">":
			if i != len(tokens)-1 {
				return nil, fmt.Errorf("'>' must be the last token")
			}
			parts = append(parts, `.+`)
		default:
			parts = append(parts, regexp.QuoteMeta(tok))
		}
	}
	return regexp.Compile("^" + strings.Join(parts, `\.`) + "$")
}
