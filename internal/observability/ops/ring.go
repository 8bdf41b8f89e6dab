package ops

import (
	"sync"

	"pagewatch/internal/eventbus"
)

// ring keeps the newest n events.
type ring struct {
	mu   sync.Mutex
	buf  []eventbus.Event
	next int
	full bool
}

func newRing(n int) *ring {
	return &ring{buf: make([]eventbus.Event, max(n, 1))}
}

func (r *ring) add(e eventbus.Event) {
	r.mu.Lock()
	r.buf[r.next] = e
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
	r.mu.Unlock()
}

// list returns events newest first.
func (r *ring) list() []eventbus.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.next
	if r.full {
		n = len(r.buf)
	}
	out := make([]eventbus.Event, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, r.buf[(r.next-i+len(r.buf))%len(r.buf)])
	}
	return out
}
