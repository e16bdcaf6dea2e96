// File: transport/socket.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import (
	"errors"
	"net"
)

var (
	// ErrWouldBlock is returned when a non-blocking operation cannot make progress.
	ErrWouldBlock = errors.New("transport: operation would block")
	// ErrUnsupported is returned on platforms without a native implementation.
	ErrUnsupported = errors.New("transport: platform not supported")
)

// DefaultBacklog is the listen backlog used when none is configured.
const DefaultBacklog = 128

// Socket is a connected, non-blocking stream socket.
//
// Read returns io.EOF for an orderly remote shutdown and ErrWouldBlock when
// no data is available. Write may accept fewer bytes than offered; when it
// accepts none it returns ErrWouldBlock.
type Socket interface {
	Fd() int
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	// FinishConnect completes a pending connect after connect-readiness.
	FinishConnect() error
	ShutdownInput() error
	ShutdownOutput() error
	// Close releases the socket after an orderly FIN.
	Close() error
	// Abort releases the socket with a reset.
	Abort() error
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
}

// ListenSocket is a bound, listening, non-blocking socket.
type ListenSocket interface {
	Fd() int
	// Accept returns one pending connection or ErrWouldBlock.
	Accept() (Socket, error)
	Close() error
	Addr() net.Addr
}

// DialFunc opens a socket and starts connecting. pending is true when the
// connect completes asynchronously.
type DialFunc func(addr *net.TCPAddr) (s Socket, pending bool, err error)

// ListenFunc opens, binds and listens. Failures are *api.Error values
// carrying the failed step as Reason.
type ListenFunc func(addr *net.TCPAddr, backlog int) (ListenSocket, error)

var (
	_ DialFunc   = Dial
	_ ListenFunc = Listen
)
