// Package realtime fans out state snapshots to in-process subscribers. Each
// published payload is the entire current state of the watched query, not a
// delta; consumers simply replace what they had.
package realtime

import (
	"fmt"
	"sync"
)

// DefaultBuffer is the per-subscriber channel depth. When a subscriber falls
// behind, the oldest snapshot is dropped; only the latest state matters.
const DefaultBuffer = 8

type subscriber struct {
	ch chan interface{}
}

// Hub maps topic names to independent subscribers. Subscriptions for the same
// topic are isolated from one another and must each be cancelled explicitly.
type Hub struct {
	mu     sync.Mutex
	nextID uint64
	topics map[string]map[uint64]*subscriber
}

func NewHub() *Hub {
	return &Hub{topics: make(map[string]map[uint64]*subscriber)}
}

// Subscribe registers a listener on a topic and returns its receive channel
// together with an unsubscribe handle. The handle is idempotent and closes the
// channel.
func (h *Hub) Subscribe(topic string, buffer int) (<-chan interface{}, func()) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	sub := &subscriber{ch: make(chan interface{}, buffer)}

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	if h.topics[topic] == nil {
		h.topics[topic] = make(map[uint64]*subscriber)
	}
	h.topics[topic][id] = sub
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if subs, ok := h.topics[topic]; ok {
				delete(subs, id)
				if len(subs) == 0 {
					delete(h.topics, topic)
				}
			}
			h.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// Publish delivers a snapshot to every subscriber of the topic without ever
// blocking the caller. A full subscriber buffer loses its oldest entry.
func (h *Hub) Publish(topic string, payload interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.topics[topic] {
		select {
		case sub.ch <- payload:
		default:
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- payload:
			default:
			}
		}
	}
}

// Subscribers reports how many listeners a topic currently has.
func (h *Hub) Subscribers(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.topics[topic])
}

// ConversationTopic is the feed of a conversation's full message list.
func ConversationTopic(conversationID string) string {
	return fmt.Sprintf("conversation:%s", conversationID)
}

// UserConversationsTopic is the feed of a user's conversation summaries,
// ordered by recency.
func UserConversationsTopic(userID string) string {
	return fmt.Sprintf("user:%s:conversations", userID)
}
