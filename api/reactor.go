// File: api/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Defines the abstract interface of the event demultiplexer the engines are
// driven by. A demultiplexer delivers ready events to one Handler per
// registration, serially, on its own goroutine.

package api

import "strings"

// Handle identifies a registration with a Demux. Zero is never issued.
type Handle uint64

// Interest is a bit mask of readiness conditions.
type Interest uint32

const (
	InterestNone  Interest = 0
	InterestQueue Interest = 1 << iota
	InterestRead
	InterestWrite
	InterestAccept
	InterestConnect
	InterestError
)

func (i Interest) String() string {
	if i == InterestNone {
		return "none"
	}
	var parts []string
	for _, b := range []struct {
		bit  Interest
		name string
	}{
		{InterestQueue, "queue"},
		{InterestRead, "read"},
		{InterestWrite, "write"},
		{InterestAccept, "accept"},
		{InterestConnect, "connect"},
		{InterestError, "error"},
	} {
		if i&b.bit != 0 {
			parts = append(parts, b.name)
		}
	}
	return strings.Join(parts, "|")
}

// Handler receives ready events. aux carries an error for InterestError
// deliveries and is nil otherwise.
type Handler interface {
	OnReady(h Handle, ready Interest, aux any)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(h Handle, ready Interest, aux any)

// OnReady calls f.
func (f HandlerFunc) OnReady(h Handle, ready Interest, aux any) { f(h, ready, aux) }

// Demux is the event demultiplexer consumed by the engines.
type Demux interface {
	// RegisterSocket registers a socket descriptor with no initial interest.
	RegisterSocket(fd int, h Handler) (Handle, error)
	// RegisterQueue registers a queue; the demux installs its readiness hook.
	RegisterQueue(q Queue, h Handler) (Handle, error)
	// RegisterErrorSource registers a channel for asynchronous demux failures.
	RegisterErrorSource(h Handler) (Handle, error)
	// SetInterest replaces the interest mask of h. Failures are also
	// delivered to errh when it is non-zero.
	SetInterest(h Handle, mask Interest, errh Handle) error
	// Deregister removes h. Failures are also delivered to errh when it is non-zero.
	Deregister(h Handle, errh Handle) error
}
