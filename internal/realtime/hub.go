// Package realtime fans thread entries out to websocket subscribers, one
// channel per request. Joining requires a short-lived signed ticket; on join
// the subscriber receives the recent window, then live messages.
package realtime

import (
	"log/slog"
	"sync"

	"github.com/reliefmesh/reliefmesh-go/internal/platform/logutil"
	"github.com/reliefmesh/reliefmesh-go/internal/store"
)

// sendBuffer is the per-subscriber queue depth. A subscriber that falls this
// far behind is dropped rather than blocking the broadcast.
const sendBuffer = 32

// Subscriber is one live listener on a request channel.
type Subscriber struct {
	requestID string
	ch        chan *store.ThreadEntry
	once      sync.Once
}

// Entries is the live message stream. It is closed when the subscriber is
// dropped or unsubscribed.
func (s *Subscriber) Entries() <-chan *store.ThreadEntry { return s.ch }

func (s *Subscriber) close() {
	s.once.Do(func() { close(s.ch) })
}

// Hub routes entries to the subscribers of each request channel.
type Hub struct {
	mu       sync.Mutex
	channels map[string]map[*Subscriber]struct{}
	log      *slog.Logger
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		channels: make(map[string]map[*Subscriber]struct{}),
		log:      logutil.Component(log, "realtime"),
	}
}

// Subscribe registers a listener on a request channel. An identity may hold
// subscriptions on many channels at once.
func (h *Hub) Subscribe(requestID string) *Subscriber {
	sub := &Subscriber{
		requestID: requestID,
		ch:        make(chan *store.ThreadEntry, sendBuffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.channels[requestID] == nil {
		h.channels[requestID] = make(map[*Subscriber]struct{})
	}
	h.channels[requestID][sub] = struct{}{}
	return sub
}

// Unsubscribe removes the listener and closes its stream. Safe to call more
// than once.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	if subs := h.channels[sub.requestID]; subs != nil {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.channels, sub.requestID)
		}
	}
	h.mu.Unlock()
	sub.close()
}

// Publish delivers an entry to every subscriber of the request channel. It
// never blocks: a subscriber with a full queue is dropped.
func (h *Hub) Publish(requestID string, entry *store.ThreadEntry) {
	h.mu.Lock()
	var dropped []*Subscriber
	for sub := range h.channels[requestID] {
		select {
		case sub.ch <- entry:
		default:
			dropped = append(dropped, sub)
		}
	}
	for _, sub := range dropped {
		delete(h.channels[requestID], sub)
	}
	if len(h.channels[requestID]) == 0 {
		delete(h.channels, requestID)
	}
	h.mu.Unlock()

	for _, sub := range dropped {
		sub.close()
		h.log.Warn("slow subscriber dropped", "request_id", requestID)
	}
}

// SubscriberCount reports the current listeners on a channel.
func (h *Hub) SubscriberCount(requestID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.channels[requestID])
}
