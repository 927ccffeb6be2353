// Package observe provides the change-notification list shared by requests,
// upload entries and queues. Subscribers are invoked synchronously, outside of
// the hub's lock, in subscription order.
package observe

import (
	"sort"
	"sync"
)

// Hub is a list of subscribers for events of type E. The zero value is ready
// to use.
type Hub[E any] struct {
	mu   sync.Mutex
	next int
	subs map[int]func(E)
}

// Subscribe registers fn and returns a function that removes it. Calling the
// returned function more than once is harmless.
func (h *Hub[E]) Subscribe(fn func(E)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}

	h.mu.Lock()
	if h.subs == nil {
		h.subs = make(map[int]func(E))
	}
	id := h.next
	h.next++
	h.subs[id] = fn
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

// Publish delivers e to every current subscriber.
func (h *Hub[E]) Publish(e E) {
	for _, fn := range h.snapshot() {
		fn(e)
	}
}

// Len reports the number of active subscribers.
func (h *Hub[E]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub[E]) snapshot() []func(E) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.subs) == 0 {
		return nil
	}

	ids := make([]int, 0, len(h.subs))
	for id := range h.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	out := make([]func(E), 0, len(ids))
	for _, id := range ids {
		out = append(out, h.subs[id])
	}
	return out
}
