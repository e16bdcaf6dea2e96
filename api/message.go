// File: api/message.go
// Package api defines the message envelope exchanged along a pipeline.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

import (
	"fmt"
	"net"
)

// Kind tags a Message. Requests travel toward an engine; notifications
// travel back along the reverse direction.
type Kind uint8

const (
	kindInvalid Kind = iota

	// Requests.
	KindSend
	KindConnect
	KindAttach
	KindDetach
	KindClose
	KindShutdown
	KindShutdownInput
	KindShutdownOutput
	KindListen

	// Notifications.
	KindReceive
	KindConnected
	KindAttached
	KindDetached
	KindInputClosed
	KindOutputClosed
	KindClosed
	KindShutdownComplete
	KindListening
	KindAccepted
	KindError

	kindCount
)

var kindNames = [...]string{
	kindInvalid:          "invalid",
	KindSend:             "send",
	KindConnect:          "connect",
	KindAttach:           "attach",
	KindDetach:           "detach",
	KindClose:            "close",
	KindShutdown:         "shutdown",
	KindShutdownInput:    "shutdown_input",
	KindShutdownOutput:   "shutdown_output",
	KindListen:           "listen",
	KindReceive:          "receive",
	KindConnected:        "connected",
	KindAttached:         "attached",
	KindDetached:         "detached",
	KindInputClosed:      "input_closed",
	KindOutputClosed:     "output_closed",
	KindClosed:           "closed",
	KindShutdownComplete: "shutdown_complete",
	KindListening:        "listening",
	KindAccepted:         "accepted",
	KindError:            "error",
}

func (k Kind) String() string {
	if k < kindCount {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// IsRequest reports whether k is addressed to an engine rather than emitted by one.
func (k Kind) IsRequest() bool {
	return k >= KindSend && k <= KindListen
}

// Message is the envelope passed by reference between pipeline stages.
// A stage that rewrites Data does so in place and forwards the same
// instance; holders of a Message must not assume it stays unchanged.
type Message struct {
	Kind Kind

	// Data carries raw bytes for KindSend and KindReceive.
	Data []byte
	// Sink is the attach target for KindAttach and the previous sink for KindDetached.
	Sink Sink
	// Peer carries the accepted connection engine for KindAccepted.
	Peer Sink
	// Addr is the remote address for KindConnect or the bind address for KindListen.
	Addr net.Addr

	// Force requests an abortive close.
	Force bool
	// Failed marks a KindClosed notification caused by an error.
	Failed bool

	Op     Op
	Reason Reason
	Err    error

	// Priority orders messages inside a priority queue; higher first.
	Priority int
	// NotifyRef, when set, receives the response to this request instead
	// of the normal reverse path.
	NotifyRef Sink
}

// NewSend wraps payload into a KindSend request.
func NewSend(payload []byte) *Message {
	return &Message{Kind: KindSend, Data: payload}
}

// NewError builds a KindError notification for op.
func NewError(op Op, reason Reason, err error) *Message {
	return &Message{
		Kind:     KindError,
		Op:       op,
		Reason:   reason,
		Err:      &Error{Op: op, Reason: reason, Err: err},
		Priority: PriorityControl,
	}
}

// Priorities used by the engines for their own control traffic.
const (
	PriorityNormal   = 0
	PriorityControl  = 10
	PriorityShutdown = 100
)

func (m *Message) String() string {
	switch m.Kind {
	case KindSend, KindReceive:
		return fmt.Sprintf("%s[%d bytes]", m.Kind, len(m.Data))
	case KindError:
		return fmt.Sprintf("%s[%s:%s]", m.Kind, m.Op, m.Reason)
	case KindClosed:
		return fmt.Sprintf("%s[failed=%t reason=%s]", m.Kind, m.Failed, m.Reason)
	default:
		return m.Kind.String()
	}
}
