//go:build linux
// +build linux

// File: reactor/reactor_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux epoll(7)-based poller. Level-triggered so that a handler which
// leaves data unread is called again on the next pass; wakeups go through
// an eventfd registered alongside the sockets.

package reactor

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-tcp/api"
)

const maxEvents = 256

type epollPoller struct {
	epfd   int
	efd    int
	events [maxEvents]unix.EpollEvent
	woken  atomic.Bool
}

func newPoller() (poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, errors.Wrap(err, "epoll create")
	}
	efd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, errors.Wrap(err, "eventfd")
	}
	ev := &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(efd)}
	if err = unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, efd, ev); err != nil {
		_ = unix.Close(efd)
		_ = unix.Close(epfd)
		return nil, errors.Wrap(err, "epoll ctl add eventfd")
	}
	return &epollPoller{epfd: epfd, efd: efd}, nil
}

func toEpoll(mask api.Interest) uint32 {
	var events uint32
	if mask&(api.InterestRead|api.InterestAccept) != 0 {
		events |= unix.EPOLLIN
	}
	if mask&(api.InterestWrite|api.InterestConnect) != 0 {
		events |= unix.EPOLLOUT
	}
	return events
}

func (p *epollPoller) add(fd int) error {
	ev := &unix.EpollEvent{Fd: int32(fd)}
	return errors.Wrap(unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, ev), "epoll ctl add")
}

func (p *epollPoller) modify(fd int, mask api.Interest) error {
	ev := &unix.EpollEvent{Events: toEpoll(mask), Fd: int32(fd)}
	return errors.Wrap(unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, ev), "epoll ctl mod")
}

func (p *epollPoller) remove(fd int) error {
	return errors.Wrap(unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil), "epoll ctl del")
}

func (p *epollPoller) wait(timeoutMs int, fn func(fd int, ev pollEvents)) error {
	n, err := unix.EpollWait(p.epfd, p.events[:], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return nil
		}
		return errors.Wrap(err, "epoll wait")
	}
	for i := 0; i < n; i++ {
		raw := p.events[i]
		fd := int(raw.Fd)
		if fd == p.efd {
			p.drainWakeup()
			continue
		}
		var ev pollEvents
		if raw.Events&unix.EPOLLIN != 0 {
			ev |= pollIn
		}
		if raw.Events&unix.EPOLLOUT != 0 {
			ev |= pollOut
		}
		if raw.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			ev |= pollErr
		}
		fn(fd, ev)
	}
	return nil
}

func (p *epollPoller) drainWakeup() {
	p.woken.Store(false)
	var buf [8]byte
	_, _ = unix.Read(p.efd, buf[:])
}

func (p *epollPoller) wake() error {
	if !p.woken.CompareAndSwap(false, true) {
		return nil
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	_, err := unix.Write(p.efd, buf[:])
	if err == unix.EAGAIN {
		return nil
	}
	return errors.Wrap(err, "eventfd write")
}

func (p *epollPoller) close() error {
	return errors.Wrap(multierr.Combine(unix.Close(p.efd), unix.Close(p.epfd)), "close poller")
}
