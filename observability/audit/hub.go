package audit

import "sync"

// Hub fans appended records out to live subscribers. Slow subscribers lose
// records rather than stalling appends; they can catch up with Store.Since.
type Hub struct {
	mu      sync.Mutex
	subs    map[uint64]chan Record
	next    uint64
	dropped uint64
	closed  bool
}

func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]chan Record)}
}

// Subscribe registers a subscriber with the given channel capacity. The
// returned cancel function unregisters it and closes the channel.
func (h *Hub) Subscribe(capacity int) (<-chan Record, func()) {
	if capacity <= 0 {
		capacity = 64
	}
	ch := make(chan Record, capacity)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	id := h.next
	h.next++
	h.subs[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if sub, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(sub)
			}
		})
	}
}

// Publish delivers rec to every subscriber without blocking.
func (h *Hub) Publish(rec Record) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- rec:
		default:
			h.dropped++
		}
	}
}

// Dropped reports how many deliveries were skipped for full subscribers.
func (h *Hub) Dropped() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
