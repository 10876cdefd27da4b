// Package pubsub is a small in-process message hub. It stands in for an
// external broker: publishers never block, and a subscriber that stops
// draining its channel loses messages instead of stalling the publisher.
package pubsub

import "sync"

// Channel names used across the process.
const (
	ConfigChannel = "config:gameplay"
	StatsChannel  = "stats:updates"
)

const subscriptionBuffer = 16

// Subscription receives messages published on one channel.
type Subscription struct {
	C chan any

	once   sync.Once
	cancel func()
}

// Close detaches the subscription and closes C.
func (s *Subscription) Close() {
	s.once.Do(s.cancel)
}

// Hub routes published messages to channel subscribers. Safe for concurrent
// use.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[*Subscription]chan any
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*Subscription]chan any)}
}

// Subscribe registers a consumer on the channel.
func (h *Hub) Subscribe(channel string) *Subscription {
	ch := make(chan any, subscriptionBuffer)
	sub := &Subscription{C: ch}
	sub.cancel = func() {
		h.mu.Lock()
		if set, ok := h.subs[channel]; ok {
			if _, ok := set[sub]; ok {
				delete(set, sub)
				close(ch)
			}
			if len(set) == 0 {
				delete(h.subs, channel)
			}
		}
		h.mu.Unlock()
	}

	h.mu.Lock()
	set, ok := h.subs[channel]
	if !ok {
		set = make(map[*Subscription]chan any)
		h.subs[channel] = set
	}
	set[sub] = ch
	h.mu.Unlock()
	return sub
}

// Publish delivers the message to every current subscriber of the channel.
// Full subscriber buffers drop the message.
func (h *Hub) Publish(channel string, message any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs[channel] {
		select {
		case ch <- message:
		default:
		}
	}
}
