package bus

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/foremanhq/foreman/internal/common/logger"
	"go.uber.org/zap"
)

// MemoryEventBus is an in-memory implementation of EventBus.
// Handlers run asynchronously; delivery order between subscribers is not defined.
type MemoryEventBus struct {
	mu            sync.RWMutex
	subscriptions map[string][]*memorySubscription
	closed        bool
	log           *logger.Logger
}

type memorySubscription struct {
	id      string
	subject string
	pattern *regexp.Regexp
	handler EventHandler
	bus     *MemoryEventBus
	valid   bool
	mu      sync.Mutex
}

// NewMemoryEventBus creates a new in-memory event bus.
func NewMemoryEventBus(log *logger.Logger) *MemoryEventBus {
	if log == nil {
		log = logger.Default()
	}
	return &MemoryEventBus{
		subscriptions: make(map[string][]*memorySubscription),
		log:           log,
	}
}

// Publish sends an event to all subscribers whose pattern matches the subject.
func (b *MemoryEventBus) Publish(ctx context.Context, subject string, event *Event) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return fmt.Errorf("event bus is closed")
	}

	var matched []*memorySubscription
	for _, subs := range b.subscriptions {
		for _, sub := range subs {
			if sub.pattern.MatchString(subject) {
				matched = append(matched, sub)
			}
		}
	}
	b.mu.RUnlock()

	for _, sub := range matched {
		go func(s *memorySubscription) {
			s.mu.Lock()
			valid := s.valid
			s.mu.Unlock()
			if !valid {
				return
			}
			if err := s.handler(ctx, event); err != nil {
				b.log.Warn("event handler error",
					zap.String("subject", subject),
					zap.String("event_type", event.Type),
					zap.Error(err))
			}
		}(sub)
	}

	return nil
}

// Subscribe creates a subscription to a subject pattern.
// Patterns use NATS-style wildcards: "*" matches one token, ">" matches the rest.
func (b *MemoryEventBus) Subscribe(subject string, handler EventHandler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("event bus is closed")
	}

	pattern, err := compilePattern(subject)
	if err != nil {
		return nil, fmt.Errorf("invalid subject pattern %q: %w", subject, err)
	}

	sub := &memorySubscription{
		id:      fmt.Sprintf("%s-%d", subject, len(b.subscriptions[subject])),
		subject: subject,
		pattern: pattern,
		handler: handler,
		bus:     b,
		valid:   true,
	}
	b.subscriptions[subject] = append(b.subscriptions[subject], sub)

	return sub, nil
}

// Close shuts down the bus and invalidates all subscriptions.
func (b *MemoryEventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, subs := range b.subscriptions {
		for _, sub := range subs {
			sub.mu.Lock()
			sub.valid = false
			sub.mu.Unlock()
		}
	}
	b.subscriptions = make(map[string][]*memorySubscription)
}

// IsConnected returns true while the bus accepts publishes.
func (b *MemoryEventBus) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return !b.closed
}

// Unsubscribe removes the subscription from the bus.
func (s *memorySubscription) Unsubscribe() error {
	s.mu.Lock()
	s.valid = false
	s.mu.Unlock()

	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	subs := s.bus.subscriptions[s.subject]
	for i, sub := range subs {
		if sub == s {
			s.bus.subscriptions[s.subject] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	return nil
}

// IsValid reports whether the subscription still receives events.
func (s *memorySubscription) IsValid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.valid
}

// compilePattern converts a NATS-style subject pattern into a regexp.
// "task.*" matches "task.created" but not "task.a.b"; "task.>" matches both.
func compilePattern(subject string) (*regexp.Regexp, error) {
	tokens := strings.Split(subject, ".")
	parts := make([]string, 0, len(tokens))
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
