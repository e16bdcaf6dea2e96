// Package fake
// Author: momentics <momentics@gmail.com>
//
// Scripted sockets for engine tests.

package fake

import (
	"bytes"
	"net"
	"sync"

	"github.com/momentics/hioload-tcp/transport"
)

var (
	fdMu   sync.Mutex
	nextFd = 1000
)

func allocFd() int {
	fdMu.Lock()
	defer fdMu.Unlock()
	nextFd++
	return nextFd
}

// Socket is a scripted transport.Socket.
type Socket struct {
	mu sync.Mutex

	FD     int
	Local  net.Addr
	Remote net.Addr

	in      [][]byte
	readErr error
	out     bytes.Buffer

	// WriteLimit caps the bytes accepted per Write; zero means unlimited.
	WriteLimit int
	// WriteBlocked makes Write return ErrWouldBlock.
	WriteBlocked bool
	// WriteErr makes Write fail.
	WriteErr error
	// ConnectErr is returned by FinishConnect.
	ConnectErr error
	// ShutdownErr is returned by ShutdownInput and ShutdownOutput.
	ShutdownErr error

	Closed     bool
	Aborted    bool
	InputShut  bool
	OutputShut bool
	Writes     int
}

var _ transport.Socket = (*Socket)(nil)

// NewSocket creates a socket with a fresh descriptor number.
func NewSocket() *Socket {
	return &Socket{
		FD:     allocFd(),
		Local:  &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40000},
		Remote: &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9400},
	}
}

// Feed queues chunk to be returned by a later Read.
func (s *Socket) Feed(chunk []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.in = append(s.in, append([]byte(nil), chunk...))
}

// FailRead makes Read return err once the fed chunks are consumed.
func (s *Socket) FailRead(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readErr = err
}

// Written returns everything written so far.
func (s *Socket) Written() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.out.Bytes()...)
}

// SetWriteBlocked toggles would-block writes.
func (s *Socket) SetWriteBlocked(b bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.WriteBlocked = b
}

func (s *Socket) Fd() int { return s.FD }

// Read returns one fed chunk per call, truncated to len(p).
func (s *Socket) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.in) == 0 {
		if s.readErr != nil {
			return 0, s.readErr
		}
		return 0, transport.ErrWouldBlock
	}
	n := copy(p, s.in[0])
	if n < len(s.in[0]) {
		s.in[0] = s.in[0][n:]
	} else {
		s.in = s.in[1:]
	}
	return n, nil
}

func (s *Socket) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Writes++
	switch {
	case s.WriteErr != nil:
		return 0, s.WriteErr
	case s.WriteBlocked:
		return 0, transport.ErrWouldBlock
	}
	n := len(p)
	if s.WriteLimit > 0 && n > s.WriteLimit {
		n = s.WriteLimit
	}
	s.out.Write(p[:n])
	return n, nil
}

func (s *Socket) FinishConnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ConnectErr
}

func (s *Socket) ShutdownInput() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ShutdownErr != nil {
		return s.ShutdownErr
	}
	s.InputShut = true
	return nil
}

func (s *Socket) ShutdownOutput() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ShutdownErr != nil {
		return s.ShutdownErr
	}
	s.OutputShut = true
	return nil
}

func (s *Socket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}

func (s *Socket) Abort() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	s.Aborted = true
	return nil
}

func (s *Socket) LocalAddr() net.Addr  { return s.Local }
func (s *Socket) RemoteAddr() net.Addr { return s.Remote }

// Dialer scripts the outcome of transport.DialFunc calls.
type Dialer struct {
	mu sync.Mutex
	// Sockets are handed out one per Dial; a fresh socket is made when empty.
	Sockets []*Socket
	Pending bool
	Err     error
	Addrs   []*net.TCPAddr
}

// Dial matches transport.DialFunc.
func (d *Dialer) Dial(addr *net.TCPAddr) (transport.Socket, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Addrs = append(d.Addrs, addr)
	if d.Err != nil {
		return nil, false, d.Err
	}
	var s *Socket
	if len(d.Sockets) > 0 {
		s = d.Sockets[0]
		d.Sockets = d.Sockets[1:]
	} else {
		s = NewSocket()
	}
	s.Remote = addr
	return s, d.Pending, nil
}

// AcceptResult is one scripted outcome of ListenSocket.Accept.
type AcceptResult struct {
	Sock *Socket
	Err  error
}

// ListenSocket is a scripted transport.ListenSocket.
type ListenSocket struct {
	mu      sync.Mutex
	FD      int
	Bound   net.Addr
	results []AcceptResult
	Closed  bool
}

var _ transport.ListenSocket = (*ListenSocket)(nil)

// NewListenSocket creates a listening socket with a fresh descriptor.
func NewListenSocket(addr net.Addr) *ListenSocket {
	return &ListenSocket{FD: allocFd(), Bound: addr}
}

// Push scripts the next Accept outcomes.
func (l *ListenSocket) Push(results ...AcceptResult) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.results = append(l.results, results...)
}

func (l *ListenSocket) Fd() int { return l.FD }

func (l *ListenSocket) Accept() (transport.Socket, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.results) == 0 {
		return nil, transport.ErrWouldBlock
	}
	r := l.results[0]
	l.results = l.results[1:]
	if r.Err != nil {
		return nil, r.Err
	}
	return r.Sock, nil
}

func (l *ListenSocket) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Closed = true
	return nil
}

func (l *ListenSocket) Addr() net.Addr { return l.Bound }

// Binder scripts the outcome of transport.ListenFunc calls.
type Binder struct {
	mu      sync.Mutex
	Err     error
	Sockets []*ListenSocket
	Calls   int
}

// Listen matches transport.ListenFunc.
func (b *Binder) Listen(addr *net.TCPAddr, backlog int) (transport.ListenSocket, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Calls++
	if b.Err != nil {
		return nil, b.Err
	}
	if len(b.Sockets) > 0 {
		ls := b.Sockets[0]
		b.Sockets = b.Sockets[1:]
		return ls, nil
	}
	return NewListenSocket(addr), nil
}
