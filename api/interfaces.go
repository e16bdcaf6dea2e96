// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package api

// Sink accepts messages on two independent paths: the data path and the
// out-of-band event path. Offers never block; false means the message
// was not accepted.
type Sink interface {
	Offer(m *Message) bool
	OfferEvent(m *Message) bool
}

// PressureSink is a Sink that reports the fill ratio of both paths.
type PressureSink interface {
	Sink
	Pressure() float64
	EventPressure() float64
}

// Queue is a bounded message queue safe for concurrent Offer against a
// single consumer calling Poll.
type Queue interface {
	// Offer appends m; false when the queue is at capacity.
	Offer(m *Message) bool
	// OfferAll appends all of ms or none of them.
	OfferAll(ms []*Message) bool
	// Poll removes the next message; ok is false when empty.
	Poll() (m *Message, ok bool)
	// Pressure is Len/Cap in [0, 1].
	Pressure() float64
	Len() int
	Cap() int
	// Notify installs fn to be called after each accepted offer.
	Notify(fn func())
}
