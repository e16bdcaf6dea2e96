// Package api
// Author: momentics <momentics@gmail.com>
//
// Error taxonomy shared by the engines: operation codes, reason codes and
// the structured error carried by KindError notifications.

package api

import (
	"errors"
	"fmt"
)

// Common errors used across the library.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotRegistered   = errors.New("handle not registered")
	ErrQueueFull       = errors.New("queue is full")
)

// Op names the operation an error notification refers to.
type Op uint8

const (
	OpNone Op = iota
	OpConnect
	OpRead
	OpWrite
	OpClose
	OpShutdownInput
	OpShutdownOutput
	OpListen
	OpAccept
	OpAttach
)

var opNames = [...]string{"none", "connect", "read", "write", "close",
	"shutdown_input", "shutdown_output", "listen", "accept", "attach"}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("op(%d)", uint8(o))
}

// Reason is the machine-readable cause carried by error and closed notifications.
type Reason string

const (
	ReasonNone Reason = ""

	// State conflicts.
	ReasonState Reason = "state"
	ReasonMode  Reason = "mode"

	// Connect failures.
	ReasonAlreadyConnected       Reason = "already_connected"
	ReasonConnectionPending      Reason = "connection_pending"
	ReasonClosedChannel          Reason = "closed_channel"
	ReasonUnresolvedAddress      Reason = "unresolved_address"
	ReasonUnsupportedAddressType Reason = "unsupported_address_type"
	ReasonSecurity               Reason = "security"
	ReasonIO                     Reason = "io"

	// Listener failures.
	ReasonOpen   Reason = "open"
	ReasonBind   Reason = "bind"
	ReasonSocket Reason = "socket"

	// Attach failures.
	ReasonInvalidTarget Reason = "invalid_target"

	// Close causes.
	ReasonEOF       Reason = "eof"
	ReasonRequested Reason = "requested"
	ReasonShutdown  Reason = "shutdown"
)

// Error is a structured engine error.
type Error struct {
	Op     Op
	Reason Reason
	Err    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Reason, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// ReasonOf extracts the Reason from err, or ReasonIO when err carries none.
func ReasonOf(err error) Reason {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ReasonIO
}
