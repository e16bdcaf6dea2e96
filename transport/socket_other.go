//go:build !linux
// +build !linux

// File: transport/socket_other.go
// Author: momentics <momentics@gmail.com>
//
// Stub implementation for unsupported platforms.

package transport

import (
	"errors"
	"net"

	"github.com/momentics/hioload-tcp/api"
)

// Dial is not available on this platform.
func Dial(addr *net.TCPAddr) (Socket, bool, error) {
	return nil, false, ErrUnsupported
}

// Listen is not available on this platform.
func Listen(addr *net.TCPAddr, backlog int) (ListenSocket, error) {
	return nil, &api.Error{Op: api.OpListen, Reason: api.ReasonOpen, Err: ErrUnsupported}
}

// Classify maps a socket error onto a connect failure reason.
func Classify(err error) api.Reason {
	var e *api.Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return api.ReasonIO
}
