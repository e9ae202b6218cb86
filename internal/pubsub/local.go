package pubsub

import (
	"sync"
)

// LocalBus is an in-process engine with synchronous fan-out in subscription
// order. It is the engine used by tests and single-process deployments.
type LocalBus struct {
	mu     sync.Mutex
	next   int
	topics map[string]map[int]Handler
	closed bool
}

// NewLocalBus returns an empty in-process bus.
func NewLocalBus() *LocalBus {
	return &LocalBus{topics: map[string]map[int]Handler{}}
}

// Publish invokes every current subscriber of topic with payload.
func (b *LocalBus) Publish(topic string, payload []byte) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	subs := b.topics[topic]
	ids := make([]int, 0, len(subs))
	for sid := range subs {
		ids = append(ids, sid)
	}
	// stable delivery order per topic
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
	handlers := make([]Handler, 0, len(ids))
	for _, sid := range ids {
		handlers = append(handlers, subs[sid])
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(append([]byte(nil), payload...))
	}
	return nil
}

// Subscribe attaches handler to topic.
func (b *LocalBus) Subscribe(topic string, handler Handler) (Cancelable, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	sid := b.next
	b.next++
	if b.topics[topic] == nil {
		b.topics[topic] = map[int]Handler{}
	}
	b.topics[topic][sid] = handler
	return &localSub{bus: b, topic: topic, sid: sid}, nil
}

// Close drops all subscriptions and rejects further use.
func (b *LocalBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.topics = map[string]map[int]Handler{}
}

type localSub struct {
	bus   *LocalBus
	topic string
	sid   int
	once  sync.Once
}

func (s *localSub) Cancel() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()
		if subs, ok := s.bus.topics[s.topic]; ok {
			delete(subs, s.sid)
			if len(subs) == 0 {
				delete(s.bus.topics, s.topic)
			}
		}
	})
}
