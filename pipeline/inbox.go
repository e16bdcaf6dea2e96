// File: pipeline/inbox.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pipeline

import (
	"github.com/momentics/hioload-tcp/api"
	"github.com/momentics/hioload-tcp/queue"
)

// Inbox is a terminal sink backed by two bounded queues. Applications
// attach it at the end of a pipeline and drain it from their own
// goroutine, or register its queues with a demux.
type Inbox struct {
	Data   *queue.Bounded
	Events *queue.Bounded
}

var _ api.PressureSink = (*Inbox)(nil)

// NewInbox creates an inbox whose queues hold capacity messages each.
func NewInbox(capacity int) *Inbox {
	return &Inbox{Data: queue.NewBounded(capacity), Events: queue.NewBounded(capacity)}
}

// Offer implements api.Sink.
func (in *Inbox) Offer(m *api.Message) bool { return in.Data.Offer(m) }

// OfferEvent implements api.Sink.
func (in *Inbox) OfferEvent(m *api.Message) bool { return in.Events.Offer(m) }

// Pressure implements api.PressureSink.
func (in *Inbox) Pressure() float64 { return in.Data.Pressure() }

// EventPressure implements api.PressureSink.
func (in *Inbox) EventPressure() float64 { return in.Events.Pressure() }

// DrainData removes and returns every queued data message.
func (in *Inbox) DrainData() []*api.Message { return drain(in.Data) }

// DrainEvents removes and returns every queued event message.
func (in *Inbox) DrainEvents() []*api.Message { return drain(in.Events) }

func drain(q api.Queue) []*api.Message {
	var out []*api.Message
	for m, ok := q.Poll(); ok; m, ok = q.Poll() {
		out = append(out, m)
	}
	return out
}
