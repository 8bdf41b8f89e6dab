// Package eventbus is an in-process fanout of small domain events.
//
// Publish never blocks; subscribers own buffered channels and lose events
// when they fall behind.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	TypeCheckDone       = "check.done"
	TypeTargetTracked   = "target.tracked"
	TypeTargetUntracked = "target.untracked"
)

type Event struct {
	Type string    `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data,omitempty"`
}

// CheckDone is the payload of TypeCheckDone.
type CheckDone struct {
	RunID     string        `json:"run_id"`
	OwnerID   int64         `json:"owner_id"`
	URL       string        `json:"url"`
	Changed   bool          `json:"changed"`
	Delivered int           `json:"delivered"`
	Skipped   int           `json:"skipped"`
	Err       string        `json:"error,omitempty"`
	Took      time.Duration `json:"took"`
}

// TargetEvent is the payload of TypeTargetTracked and TypeTargetUntracked.
type TargetEvent struct {
	OwnerID int64  `json:"owner_id"`
	URL     string `json:"url"`
	Key     string `json:"key"`
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			// Holding the write lock excludes in-flight Publish sends.
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
}
