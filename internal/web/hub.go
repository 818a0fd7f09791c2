package web

import "sync"

// resourceHub fans out "something changed" signals to SSE subscribers.
type resourceHub struct {
	mu   sync.Mutex
	subs map[chan struct{}]struct{}
}

func newResourceHub() *resourceHub {
	return &resourceHub{subs: map[chan struct{}]struct{}{}}
}

func (h *resourceHub) subscribe() (ch chan struct{}, cancel func()) {
	ch = make(chan struct{}, 8)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
		close(ch)
	}
}

func (h *resourceHub) broadcast() {
	h.mu.Lock()
	for ch := range h.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	h.mu.Unlock()
}

func (h *resourceHub) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// userHubs keys one hub per user id so a mutation only wakes that user's tabs.
type userHubs struct {
	mu   sync.Mutex
	hubs map[string]*resourceHub
}

func newUserHubs() *userHubs {
	return &userHubs{hubs: map[string]*resourceHub{}}
}

func (u *userHubs) hubFor(userID string) *resourceHub {
	u.mu.Lock()
	defer u.mu.Unlock()
	h := u.hubs[userID]
	if h == nil {
		h = newResourceHub()
		u.hubs[userID] = h
	}
	return h
}

func (u *userHubs) broadcast(userID string) {
	u.mu.Lock()
	h := u.hubs[userID]
	u.mu.Unlock()
	if h != nil {
		h.broadcast()
	}
}
