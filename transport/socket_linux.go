//go:build linux
// +build linux

// File: transport/socket_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux sockets created with SOCK_NONBLOCK and driven by epoll readiness.

package transport

import (
	"io"
	"net"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-tcp/api"
)

type linuxSocket struct {
	fd     int
	local  net.Addr
	remote net.Addr
}

type linuxListenSocket struct {
	fd   int
	addr net.Addr
}

func sockaddr(addr *net.TCPAddr) (int, unix.Sockaddr, error) {
	if ip4 := addr.IP.To4(); ip4 != nil {
		sa := &unix.SockaddrInet4{Port: addr.Port}
		copy(sa.Addr[:], ip4)
		return unix.AF_INET, sa, nil
	}
	if ip6 := addr.IP.To16(); ip6 != nil {
		sa := &unix.SockaddrInet6{Port: addr.Port}
		copy(sa.Addr[:], ip6)
		if addr.Zone != "" {
			if ifi, err := net.InterfaceByName(addr.Zone); err == nil {
				sa.ZoneId = uint32(ifi.Index)
			}
		}
		return unix.AF_INET6, sa, nil
	}
	return 0, nil, unix.EAFNOSUPPORT
}

func tcpAddr(sa unix.Sockaddr) net.Addr {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: net.IP(append([]byte(nil), a.Addr[:]...)), Port: a.Port}
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: net.IP(append([]byte(nil), a.Addr[:]...)), Port: a.Port}
	}
	return nil
}

func openSocket(family int) (int, error) {
	return unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
}

// Dial creates a non-blocking socket and issues connect.
func Dial(addr *net.TCPAddr) (Socket, bool, error) {
	family, sa, err := sockaddr(addr)
	if err != nil {
		return nil, false, errors.Wrap(err, "dial")
	}
	fd, err := openSocket(family)
	if err != nil {
		return nil, false, errors.Wrap(err, "socket")
	}
	_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)

	s := &linuxSocket{fd: fd, remote: addr}
	for {
		err = unix.Connect(fd, sa)
		if err != unix.EINTR {
			break
		}
	}
	switch err {
	case nil:
		s.fillLocal()
		return s, false, nil
	case unix.EINPROGRESS:
		return s, true, nil
	default:
		_ = unix.Close(fd)
		return nil, false, errors.Wrapf(err, "connect %s", addr)
	}
}

// Listen opens a non-blocking listening socket on addr.
func Listen(addr *net.TCPAddr, backlog int) (ListenSocket, error) {
	if backlog <= 0 {
		backlog = DefaultBacklog
	}
	if addr == nil {
		addr = &net.TCPAddr{}
	}
	ip := addr.IP
	if ip == nil {
		ip = net.IPv4zero
	}
	family, sa, err := sockaddr(&net.TCPAddr{IP: ip, Port: addr.Port, Zone: addr.Zone})
	if err != nil {
		return nil, &api.Error{Op: api.OpListen, Reason: api.ReasonOpen, Err: err}
	}
	fd, err := openSocket(family)
	if err != nil {
		return nil, &api.Error{Op: api.OpListen, Reason: api.ReasonOpen, Err: errors.Wrap(err, "socket")}
	}
	if err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return nil, &api.Error{Op: api.OpListen, Reason: api.ReasonSocket, Err: errors.Wrap(err, "setsockopt")}
	}
	if err = unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		reason := api.ReasonBind
		if err == unix.EACCES || err == unix.EPERM {
			reason = api.ReasonSecurity
		}
		return nil, &api.Error{Op: api.OpListen, Reason: reason, Err: errors.Wrapf(err, "bind %s", addr)}
	}
	if err = unix.Listen(fd, backlog); err != nil {
		_ = unix.Close(fd)
		return nil, &api.Error{Op: api.OpListen, Reason: api.ReasonSocket, Err: errors.Wrap(err, "listen")}
	}
	ls := &linuxListenSocket{fd: fd}
	if bound, err := unix.Getsockname(fd); err == nil {
		ls.addr = tcpAddr(bound)
	}
	return ls, nil
}

func (s *linuxSocket) fillLocal() {
	if sa, err := unix.Getsockname(s.fd); err == nil {
		s.local = tcpAddr(sa)
	}
}

func (s *linuxSocket) Fd() int { return s.fd }

func (s *linuxSocket) Read(p []byte) (int, error) {
	for {
		n, err := unix.Read(s.fd, p)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			return 0, ErrWouldBlock
		case err != nil:
			return 0, errors.Wrap(err, "read")
		case n == 0 && len(p) > 0:
			return 0, io.EOF
		}
		return n, nil
	}
}

func (s *linuxSocket) Write(p []byte) (int, error) {
	for {
		n, err := unix.Write(s.fd, p)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			return 0, ErrWouldBlock
		case err != nil:
			return 0, errors.Wrap(err, "write")
		}
		return n, nil
	}
}

func (s *linuxSocket) FinishConnect() error {
	code, err := unix.GetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return errors.Wrap(err, "getsockopt")
	}
	if code != 0 {
		return errors.Wrap(unix.Errno(code), "connect")
	}
	s.fillLocal()
	return nil
}

func (s *linuxSocket) ShutdownInput() error {
	return errors.Wrap(unix.Shutdown(s.fd, unix.SHUT_RD), "shutdown input")
}

func (s *linuxSocket) ShutdownOutput() error {
	return errors.Wrap(unix.Shutdown(s.fd, unix.SHUT_WR), "shutdown output")
}

func (s *linuxSocket) Close() error {
	return errors.Wrap(unix.Close(s.fd), "close")
}

func (s *linuxSocket) Abort() error {
	_ = unix.SetsockoptLinger(s.fd, unix.SOL_SOCKET, unix.SO_LINGER, &unix.Linger{Onoff: 1, Linger: 0})
	return errors.Wrap(unix.Close(s.fd), "abort")
}

func (s *linuxSocket) LocalAddr() net.Addr  { return s.local }
func (s *linuxSocket) RemoteAddr() net.Addr { return s.remote }

func (l *linuxListenSocket) Fd() int { return l.fd }

func (l *linuxListenSocket) Accept() (Socket, error) {
	for {
		nfd, sa, err := unix.Accept4(l.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		switch {
		case err == unix.EINTR || err == unix.ECONNABORTED:
			continue
		case err == unix.EAGAIN:
			return nil, ErrWouldBlock
		case err != nil:
			return nil, errors.Wrap(err, "accept")
		}
		_ = unix.SetsockoptInt(nfd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
		s := &linuxSocket{fd: nfd, remote: tcpAddr(sa)}
		s.fillLocal()
		return s, nil
	}
}

func (l *linuxListenSocket) Close() error {
	return errors.Wrap(unix.Close(l.fd), "close listener")
}

func (l *linuxListenSocket) Addr() net.Addr { return l.addr }

// Classify maps a socket error onto a connect failure reason.
func Classify(err error) api.Reason {
	if e := new(api.Error); errors.As(err, &e) {
		return e.Reason
	}
	var errno unix.Errno
	if !errors.As(err, &errno) {
		return api.ReasonIO
	}
	switch errno {
	case unix.EISCONN:
		return api.ReasonAlreadyConnected
	case unix.EALREADY, unix.EINPROGRESS:
		return api.ReasonConnectionPending
	case unix.EBADF, unix.ENOTSOCK:
		return api.ReasonClosedChannel
	case unix.EADDRNOTAVAIL, unix.ENETUNREACH, unix.EHOSTUNREACH:
		return api.ReasonUnresolvedAddress
	case unix.EAFNOSUPPORT, unix.EPROTONOSUPPORT:
		return api.ReasonUnsupportedAddressType
	case unix.EACCES, unix.EPERM:
		return api.ReasonSecurity
	}
	return api.ReasonIO
}
