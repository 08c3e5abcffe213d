// Package bus provides a small in-process publish/subscribe bus. It carries
// cross-component signals (roster changes, notifications) so consumers can
// react without importing the chat engine directly.
package bus

import "sync"

// Handler receives a published payload. Handlers run synchronously on the
// publisher's goroutine; keep them short.
type Handler func(payload any)

// Bus fans published payloads out to every current subscriber of a topic.
// There is no replay: a subscriber registered after a publish never sees it.
type Bus struct {
	mu     sync.Mutex
	nextID int
	topics map[string]map[int]Handler
}

// New returns an empty bus.
func New() *Bus {
	return &Bus{topics: make(map[string]map[int]Handler)}
}

// Subscribe registers fn for a topic and returns an unsubscribe function.
// Unsubscribing twice is harmless.
func (b *Bus) Subscribe(topic string, fn Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.topics[topic] == nil {
		b.topics[topic] = make(map[int]Handler)
	}
	id := b.nextID
	b.nextID++
	b.topics[topic][id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if subs, ok := b.topics[topic]; ok {
			delete(subs, id)
			if len(subs) == 0 {
				delete(b.topics, topic)
			}
		}
	}
}

// Publish delivers payload to all current subscribers of the topic.
func (b *Bus) Publish(topic string, payload any) {
	b.mu.Lock()
	handlers := make([]Handler, 0, len(b.topics[topic]))
	for _, fn := range b.topics[topic] {
		handlers = append(handlers, fn)
	}
	b.mu.Unlock()

	for _, fn := range handlers {
		fn(payload)
	}
}
