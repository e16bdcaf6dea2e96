// File: queue/bounded.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package queue

import (
	"sync"

	"github.com/eapache/queue"

	"github.com/momentics/hioload-tcp/api"
)

// DefaultCapacity is used when a non-positive capacity is requested.
const DefaultCapacity = 1024

// Bounded is a FIFO message queue with a hard capacity.
type Bounded struct {
	mu     sync.Mutex
	items  *queue.Queue
	cap    int
	notify func()
}

var _ api.Queue = (*Bounded)(nil)

// NewBounded creates a FIFO queue holding at most capacity messages.
func NewBounded(capacity int) *Bounded {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bounded{items: queue.New(), cap: capacity}
}

// Offer appends m unless the queue is full.
func (b *Bounded) Offer(m *api.Message) bool {
	if m == nil {
		return false
	}
	b.mu.Lock()
	if b.items.Length() >= b.cap {
		b.mu.Unlock()
		return false
	}
	b.items.Add(m)
	fn := b.notify
	b.mu.Unlock()
	if fn != nil {
		fn()
	}
	return true
}

// OfferAll appends every message in ms, or none when they do not all fit.
func (b *Bounded) OfferAll(ms []*api.Message) bool {
	for _, m := range ms {
		if m == nil {
			return false
		}
	}
	b.mu.Lock()
	if b.items.Length()+len(ms) > b.cap {
		b.mu.Unlock()
		return false
	}
	for _, m := range ms {
		b.items.Add(m)
	}
	fn := b.notify
	b.mu.Unlock()
	if fn != nil && len(ms) > 0 {
		fn()
	}
	return true
}

// Poll removes the oldest message.
func (b *Bounded) Poll() (*api.Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.items.Length() == 0 {
		return nil, false
	}
	return b.items.Remove().(*api.Message), true
}

// Pressure returns Len/Cap.
func (b *Bounded) Pressure() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return float64(b.items.Length()) / float64(b.cap)
}

// Len returns the number of queued messages.
func (b *Bounded) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.items.Length()
}

// Cap returns the capacity.
func (b *Bounded) Cap() int { return b.cap }

// Notify installs the hook called after every accepted offer.
func (b *Bounded) Notify(fn func()) {
	b.mu.Lock()
	b.notify = fn
	b.mu.Unlock()
}

// Clear drops every queued message and returns how many were dropped.
func (b *Bounded) Clear() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := b.items.Length()
	for b.items.Length() > 0 {
		b.items.Remove()
	}
	return n
}
