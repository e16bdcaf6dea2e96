// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package fake

import (
	"sort"
	"sync"

	"github.com/momentics/hioload-tcp/api"
)

// RegKind tells what a fake registration stands for.
type RegKind string

const (
	RegSocket RegKind = "socket"
	RegQueue  RegKind = "queue"
	RegError  RegKind = "error"
)

// Registration is one entry of the fake demux.
type Registration struct {
	Handle   api.Handle
	Kind     RegKind
	Fd       int
	Queue    api.Queue
	Handler  api.Handler
	Interest api.Interest
}

// Demux is a manually driven api.Demux. Nothing is dispatched until the
// test calls Fire, FireFd or Pump.
type Demux struct {
	mu      sync.Mutex
	next    api.Handle
	regs    map[api.Handle]*Registration
	errs    []pendingError
	history []api.Handle

	// FailSetInterest, when set, makes SetInterest fail with this error.
	FailSetInterest error
	// FailDeregister, when set, makes Deregister fail with this error.
	FailDeregister error
}

type pendingError struct {
	h   api.Handle
	err error
}

var _ api.Demux = (*Demux)(nil)

// NewDemux creates an empty fake demux.
func NewDemux() *Demux {
	return &Demux{regs: make(map[api.Handle]*Registration)}
}

func (d *Demux) add(r *Registration) api.Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.next++
	r.Handle = d.next
	d.regs[r.Handle] = r
	return r.Handle
}

// RegisterSocket implements api.Demux.
func (d *Demux) RegisterSocket(fd int, h api.Handler) (api.Handle, error) {
	return d.add(&Registration{Kind: RegSocket, Fd: fd, Handler: h}), nil
}

// RegisterQueue implements api.Demux.
func (d *Demux) RegisterQueue(q api.Queue, h api.Handler) (api.Handle, error) {
	return d.add(&Registration{Kind: RegQueue, Queue: q, Handler: h}), nil
}

// RegisterErrorSource implements api.Demux.
func (d *Demux) RegisterErrorSource(h api.Handler) (api.Handle, error) {
	return d.add(&Registration{Kind: RegError, Handler: h, Interest: api.InterestError}), nil
}

// SetInterest implements api.Demux.
func (d *Demux) SetInterest(h api.Handle, mask api.Interest, errh api.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.regs[h]
	var err error
	switch {
	case !ok:
		err = api.ErrNotRegistered
	case d.FailSetInterest != nil:
		err = d.FailSetInterest
	default:
		r.Interest = mask
		return nil
	}
	if errh != 0 {
		d.errs = append(d.errs, pendingError{h: errh, err: err})
	}
	return err
}

// Deregister implements api.Demux.
func (d *Demux) Deregister(h api.Handle, errh api.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.regs[h]
	var err error
	switch {
	case !ok:
		err = api.ErrNotRegistered
	case d.FailDeregister != nil:
		err = d.FailDeregister
	default:
		delete(d.regs, h)
		d.history = append(d.history, h)
		return nil
	}
	if errh != 0 {
		d.errs = append(d.errs, pendingError{h: errh, err: err})
	}
	return err
}

// Lookup returns a copy of the registration for h.
func (d *Demux) Lookup(h api.Handle) (Registration, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.regs[h]
	if !ok {
		return Registration{}, false
	}
	return *r, true
}

// Socket returns the registration of fd.
func (d *Demux) Socket(fd int) (Registration, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range d.regs {
		if r.Kind == RegSocket && r.Fd == fd {
			return *r, true
		}
	}
	return Registration{}, false
}

// Len returns the number of live registrations.
func (d *Demux) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.regs)
}

// Deregistered returns every handle removed so far, in order.
func (d *Demux) Deregistered() []api.Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]api.Handle(nil), d.history...)
}

// Fire delivers one ready event to h's handler. It reports false when h
// is not registered.
func (d *Demux) Fire(h api.Handle, ready api.Interest, aux any) bool {
	d.mu.Lock()
	r, ok := d.regs[h]
	var handler api.Handler
	if ok {
		handler = r.Handler
	}
	d.mu.Unlock()
	if !ok {
		return false
	}
	handler.OnReady(h, ready, aux)
	return true
}

// FireFd delivers ready to the socket registered for fd, masked by its
// current interest plus InterestError.
func (d *Demux) FireFd(fd int, ready api.Interest) bool {
	r, ok := d.Socket(fd)
	if !ok {
		return false
	}
	ready &= r.Interest | api.InterestError
	if ready == 0 {
		return false
	}
	return d.Fire(r.Handle, ready, nil)
}

// Pump dispatches queued errors and queue readiness until nothing is
// ready, and returns the number of handler calls.
func (d *Demux) Pump() int {
	calls := 0
	for guard := 0; guard < 100000; guard++ {
		d.mu.Lock()
		if len(d.errs) > 0 {
			e := d.errs[0]
			d.errs = d.errs[1:]
			d.mu.Unlock()
			if d.Fire(e.h, api.InterestError, e.err) {
				calls++
			}
			continue
		}
		handles := make([]api.Handle, 0, len(d.regs))
		for h, r := range d.regs {
			if r.Kind == RegQueue && r.Interest&api.InterestQueue != 0 && r.Queue.Len() > 0 {
				handles = append(handles, h)
			}
		}
		d.mu.Unlock()
		if len(handles) == 0 {
			return calls
		}
		sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })
		d.Fire(handles[0], api.InterestQueue, nil)
		calls++
	}
	panic("fake: Pump did not settle")
}
