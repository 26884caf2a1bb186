package history

import "sync"

const subscriberBuffer = 16

// hub fans appended chat messages out to per-user subscribers. Delivery is
// best effort: a subscriber that stops draining loses messages rather than
// blocking writers.
type hub struct {
	mu     sync.Mutex
	nextID int
	closed bool
	subs   map[string]map[int]chan Message
}

func newHub() *hub {
	return &hub{subs: make(map[string]map[int]chan Message)}
}

func (h *hub) subscribe(userID string) (<-chan Message, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Message, subscriberBuffer)
	if h.closed {
		close(ch)
		return ch, func() {}
	}

	id := h.nextID
	h.nextID++
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[int]chan Message)
	}
	h.subs[userID][id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if subs, ok := h.subs[userID]; ok {
			if ch, ok := subs[id]; ok {
				delete(subs, id)
				close(ch)
			}
			if len(subs) == 0 {
				delete(h.subs, userID)
			}
		}
	}
	return ch, cancel
}

func (h *hub) publish(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for _, ch := range h.subs[msg.UserID] {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for _, subs := range h.subs {
		for id, ch := range subs {
			delete(subs, id)
			close(ch)
		}
	}
	h.subs = make(map[string]map[int]chan Message)
}
