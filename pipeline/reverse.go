// File: pipeline/reverse.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pipeline

import (
	"go.uber.org/zap"

	"github.com/momentics/hioload-tcp/api"
	"github.com/momentics/hioload-tcp/control"
	"github.com/momentics/hioload-tcp/queue"
)

// DefaultSideQueueCapacity bounds each side-queue unless configured otherwise.
const DefaultSideQueueCapacity = 1024

// Reverse routes reverse-direction messages to an attached sink, or
// buffers them while none is attached.
type Reverse struct {
	sink   api.Sink
	data   *queue.Bounded
	events *queue.Bounded

	component string
	log       *zap.Logger
	metrics   *control.Metrics
}

// NewReverse creates the reverse path for component. A capacity of zero
// disables buffering: with no sink attached, messages are dropped.
func NewReverse(component string, capacity int, log *zap.Logger, metrics *control.Metrics) *Reverse {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Reverse{component: component, log: log, metrics: metrics}
	if capacity > 0 {
		r.data = queue.NewBounded(capacity)
		r.events = queue.NewBounded(capacity)
	}
	return r
}

// Sink returns the attached sink, or nil.
func (r *Reverse) Sink() api.Sink { return r.sink }

// Attached reports whether a sink is attached.
func (r *Reverse) Attached() bool { return r.sink != nil }

// Buffering reports whether side-queues are configured.
func (r *Reverse) Buffering() bool { return r.data != nil }

// Pending returns the number of buffered data and event messages.
func (r *Reverse) Pending() (data, events int) {
	if r.data == nil {
		return 0, 0
	}
	return r.data.Len(), r.events.Len()
}

// Data delivers a data-path message.
func (r *Reverse) Data(m *api.Message) bool {
	if r.sink != nil {
		if r.sink.Offer(m) {
			return true
		}
		r.drop(m, "sink_full")
		return false
	}
	return r.buffer(r.data, m)
}

// Event delivers an out-of-band message.
func (r *Reverse) Event(m *api.Message) bool {
	if r.sink != nil {
		if r.sink.OfferEvent(m) {
			return true
		}
		r.drop(m, "sink_full")
		return false
	}
	return r.buffer(r.events, m)
}

// Respond delivers resp, the response to req. req.NotifyRef takes the
// response when set and accepting; otherwise it follows the event path.
func (r *Reverse) Respond(req, resp *api.Message) bool {
	if req != nil && req.NotifyRef != nil {
		if req.NotifyRef.OfferEvent(resp) {
			return true
		}
		r.log.Debug("notify target rejected response, using reverse path",
			zap.Stringer("response", resp))
	}
	return r.Event(resp)
}

// Attach installs sink, flushes the side-queues into it (data first, then
// events) and confirms with KindAttached.
func (r *Reverse) Attach(sink api.Sink, req *api.Message) bool {
	if sink == nil {
		r.Respond(req, api.NewError(api.OpAttach, api.ReasonInvalidTarget, api.ErrInvalidArgument))
		return false
	}
	r.sink = sink
	flushed := 0
	if r.data != nil {
		for m, ok := r.data.Poll(); ok; m, ok = r.data.Poll() {
			if !sink.Offer(m) {
				r.drop(m, "flush_rejected")
				continue
			}
			flushed++
		}
		for m, ok := r.events.Poll(); ok; m, ok = r.events.Poll() {
			if !sink.OfferEvent(m) {
				r.drop(m, "flush_rejected")
				continue
			}
			flushed++
		}
	}
	r.log.Debug("sink attached", zap.Int("flushed", flushed))
	r.Respond(req, &api.Message{Kind: api.KindAttached, Sink: sink, Priority: api.PriorityControl})
	return true
}

// Detach clears the sink and confirms with KindDetached carrying the
// previous sink. The confirmation goes to req.NotifyRef, else to the
// previous sink, else to the side-queues.
func (r *Reverse) Detach(req *api.Message) api.Sink {
	prev := r.sink
	r.sink = nil
	resp := &api.Message{Kind: api.KindDetached, Sink: prev, Priority: api.PriorityControl}
	switch {
	case req != nil && req.NotifyRef != nil && req.NotifyRef.OfferEvent(resp):
	case prev != nil && prev.OfferEvent(resp):
	default:
		r.Event(resp)
	}
	r.log.Debug("sink detached", zap.Bool("had_sink", prev != nil))
	return prev
}

// Discard drops everything still buffered and returns the count.
func (r *Reverse) Discard() int {
	if r.data == nil {
		return 0
	}
	return r.data.Clear() + r.events.Clear()
}

func (r *Reverse) buffer(q *queue.Bounded, m *api.Message) bool {
	if q == nil {
		// No collaborator configured: nothing will ever drain a buffer.
		r.drop(m, "unattached")
		return false
	}
	if q.Offer(m) {
		return true
	}
	r.drop(m, "side_queue_full")
	return false
}

func (r *Reverse) drop(m *api.Message, cause string) {
	r.metrics.IncDropped(r.component, cause)
	r.log.Warn("reverse message dropped", zap.Stringer("message", m), zap.String("cause", cause))
}
