// Package broadcast is the fan-out channel used to tell every connected client that a shared
// document changed, that the online set changed, or that a toast should be shown. Delivery is
// lossy: a subscriber whose buffer is full misses the event and catches up on the next refresh.
package broadcast

import (
	"encoding/json"
	"sync"
)

const (
	TopicDocument = "document"
	TopicPresence = "presence"
	TopicToast    = "toast"
)

type Event struct {
	Topic   string          `json:"topic"`
	Key     string          `json:"key,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	// Origin is the node that first published the event, empty for local events not yet relayed.
	Origin string `json:"origin,omitempty"`
}

type Publisher interface {
	Publish(e Event)
}

type subscription struct {
	ch     chan Event
	topics map[string]struct{}
}

func (s *subscription) wants(topic string) bool {
	if len(s.topics) == 0 {
		return true
	}
	_, ok := s.topics[topic]
	return ok
}

func NewHub() *Hub {
	return &Hub{subs: map[uint64]*subscription{}}
}

var _ Publisher = (*Hub)(nil)

type Hub struct {
	mtx    sync.RWMutex
	seq    uint64
	subs   map[uint64]*subscription
	closed bool
}

// Subscribe registers a buffered listener for the given topics, all topics when none are given.
// The returned func unsubscribes and closes the channel.
func (h *Hub) Subscribe(buf int, topics ...string) (<-chan Event, func()) {
	sub := &subscription{ch: make(chan Event, buf), topics: map[string]struct{}{}}
	for _, topic := range topics {
		sub.topics[topic] = struct{}{}
	}

	h.mtx.Lock()
	if h.closed {
		h.mtx.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	h.seq++
	id := h.seq
	h.subs[id] = sub
	h.mtx.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mtx.Lock()
			defer h.mtx.Unlock()
			if _, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(sub.ch)
			}
		})
	}
}

func (h *Hub) Publish(e Event) {
	h.mtx.RLock()
	defer h.mtx.RUnlock()

	for _, sub := range h.subs {
		if !sub.wants(e.Topic) {
			continue
		}

		select {
		case sub.ch <- e:
		default:
		}
	}
}

func (h *Hub) Len() int {
	h.mtx.RLock()
	defer h.mtx.RUnlock()
	return len(h.subs)
}

// Close drops every subscriber; later Subscribe calls get a closed channel.
func (h *Hub) Close() {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	h.closed = true
	for id, sub := range h.subs {
		close(sub.ch)
		delete(h.subs, id)
	}
}
