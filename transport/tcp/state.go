// File: transport/tcp/state.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package tcp

import "fmt"

// State is the lifecycle state of a Conn.
type State int32

const (
	StateReady State = iota
	StateConnecting
	StateConnected
	StateClosed
	StateShutdown
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "READY"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateClosed:
		return "CLOSED"
	case StateShutdown:
		return "SHUTDOWN"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// ListenerState is the lifecycle state of a Listener.
type ListenerState int32

const (
	ListenerReady ListenerState = iota
	ListenerListening
	ListenerShutdown
)

func (s ListenerState) String() string {
	switch s {
	case ListenerReady:
		return "READY"
	case ListenerListening:
		return "LISTENING"
	case ListenerShutdown:
		return "SHUTDOWN"
	}
	return fmt.Sprintf("ListenerState(%d)", int32(s))
}

// Mode tells whether a Conn dials out or wraps an accepted socket.
type Mode uint8

const (
	ModeClient Mode = iota
	ModeServer
)

func (m Mode) String() string {
	if m == ModeServer {
		return "server"
	}
	return "client"
}
