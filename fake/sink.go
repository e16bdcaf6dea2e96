// Package fake
// Author: momentics <momentics@gmail.com>
//
// Recording sink.

package fake

import (
	"sync"

	"github.com/momentics/hioload-tcp/api"
)

// Sink records every message offered to it.
type Sink struct {
	mu     sync.Mutex
	data   []*api.Message
	events []*api.Message

	// Reject makes both paths refuse offers.
	Reject bool
}

var _ api.Sink = (*Sink)(nil)

// Offer implements api.Sink.
func (s *Sink) Offer(m *api.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Reject {
		return false
	}
	s.data = append(s.data, m)
	return true
}

// OfferEvent implements api.Sink.
func (s *Sink) OfferEvent(m *api.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Reject {
		return false
	}
	s.events = append(s.events, m)
	return true
}

// Data returns the recorded data messages.
func (s *Sink) Data() []*api.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*api.Message(nil), s.data...)
}

// Events returns the recorded event messages.
func (s *Sink) Events() []*api.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*api.Message(nil), s.events...)
}

// Kinds returns the kinds of the recorded events in order.
func (s *Sink) Kinds() []api.Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]api.Kind, len(s.events))
	for i, m := range s.events {
		out[i] = m.Kind
	}
	return out
}

// Last returns the most recent event, or nil.
func (s *Sink) Last() *api.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return nil
	}
	return s.events[len(s.events)-1]
}

// Reset forgets everything recorded.
func (s *Sink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data, s.events = nil, nil
}
