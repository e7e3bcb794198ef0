// Package notify triggers index refreshes when evidence sources change and
// fans refresh-completion events out to interested subscribers (the
// websocket layer).
package notify

import (
	"sync"
	"time"
)

// Event types published on the hub.
const (
	EventRefreshComplete = "refresh_complete"
	EventIndexComplete   = "index_complete"
)

// Event is one refresh-lifecycle notification.
type Event struct {
	Type           string  `json:"type"`
	Time           int64   `json:"time"`
	ChangedFiles   int     `json:"changed_file_count"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
}

// Hub is a small in-process pub-sub for refresh events. Publishing never
// blocks: a subscriber that stops draining its channel misses events rather
// than stalling the publisher.
type Hub struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: map[chan Event]struct{}{}}
}

// Subscribe registers a listener. The returned cancel func must be called to
// release the subscription.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 8)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers evt to every subscriber, stamping the time if unset.
func (h *Hub) Publish(evt Event) {
	if evt.Time == 0 {
		evt.Time = time.Now().Unix()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}
