// File: queue/priority.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package queue

import (
	"container/heap"
	"sync"

	"github.com/momentics/hioload-tcp/api"
)

// Priority is a bounded queue ordered by Message.Priority, highest first.
// Messages of equal priority leave in arrival order.
type Priority struct {
	mu     sync.Mutex
	h      entries
	seq    uint64
	cap    int
	notify func()
}

var _ api.Queue = (*Priority)(nil)

type entry struct {
	m   *api.Message
	seq uint64
}

type entries []entry

func (e entries) Len() int { return len(e) }
func (e entries) Less(i, j int) bool {
	if e[i].m.Priority != e[j].m.Priority {
		return e[i].m.Priority > e[j].m.Priority
	}
	return e[i].seq < e[j].seq
}
func (e entries) Swap(i, j int) { e[i], e[j] = e[j], e[i] }
func (e *entries) Push(x any)   { *e = append(*e, x.(entry)) }
func (e *entries) Pop() any {
	old := *e
	n := len(old)
	it := old[n-1]
	old[n-1] = entry{}
	*e = old[:n-1]
	return it
}

// NewPriority creates a priority queue holding at most capacity messages.
func NewPriority(capacity int) *Priority {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Priority{cap: capacity}
}

// Offer inserts m unless the queue is full.
func (p *Priority) Offer(m *api.Message) bool {
	if m == nil {
		return false
	}
	p.mu.Lock()
	if len(p.h) >= p.cap {
		p.mu.Unlock()
		return false
	}
	p.push(m)
	fn := p.notify
	p.mu.Unlock()
	if fn != nil {
		fn()
	}
	return true
}

// OfferAll inserts all of ms or none.
func (p *Priority) OfferAll(ms []*api.Message) bool {
	for _, m := range ms {
		if m == nil {
			return false
		}
	}
	p.mu.Lock()
	if len(p.h)+len(ms) > p.cap {
		p.mu.Unlock()
		return false
	}
	for _, m := range ms {
		p.push(m)
	}
	fn := p.notify
	p.mu.Unlock()
	if fn != nil && len(ms) > 0 {
		fn()
	}
	return true
}

func (p *Priority) push(m *api.Message) {
	p.seq++
	heap.Push(&p.h, entry{m: m, seq: p.seq})
}

// Poll removes the highest-priority message.
func (p *Priority) Poll() (*api.Message, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.h) == 0 {
		return nil, false
	}
	return heap.Pop(&p.h).(entry).m, true
}

// Pressure returns Len/Cap.
func (p *Priority) Pressure() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return float64(len(p.h)) / float64(p.cap)
}

// Len returns the number of queued messages.
func (p *Priority) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.h)
}

// Cap returns the capacity.
func (p *Priority) Cap() int { return p.cap }

// Notify installs the hook called after every accepted offer.
func (p *Priority) Notify(fn func()) {
	p.mu.Lock()
	p.notify = fn
	p.mu.Unlock()
}

// Clear drops every queued message and returns how many were dropped.
func (p *Priority) Clear() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.h)
	p.h = nil
	return n
}
