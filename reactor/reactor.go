// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral registration table, ready list and dispatch loop. The
// platform poller (epoll on Linux) only reports socket readiness and wakeups.

package reactor

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/momentics/hioload-tcp/affinity"
	"github.com/momentics/hioload-tcp/api"
)

var (
	// ErrRunning is returned when Run is called on a reactor that is already running.
	ErrRunning = errors.New("reactor: already running")
	// ErrClosed is returned by operations on a closed reactor.
	ErrClosed = errors.New("reactor: closed")
)

// pollEvents is the platform-neutral readiness reported for one descriptor.
type pollEvents uint8

const (
	pollIn pollEvents = 1 << iota
	pollOut
	pollErr
)

// poller is implemented per platform.
type poller interface {
	add(fd int) error
	modify(fd int, mask api.Interest) error
	remove(fd int) error
	// wait blocks up to timeoutMs (-1 forever) and calls fn per ready descriptor.
	wait(timeoutMs int, fn func(fd int, ev pollEvents)) error
	wake() error
	close() error
}

type regKind uint8

const (
	regSocket regKind = iota
	regQueue
	regError
)

type registration struct {
	kind     regKind
	fd       int
	q        api.Queue
	h        api.Handler
	interest api.Interest
	queued   bool
}

type readyEvent struct {
	h    api.Handle
	mask api.Interest
	aux  any
}

// Reactor is a single-goroutine api.Demux.
type Reactor struct {
	id  string
	log *zap.Logger
	cpu int

	p poller

	mu      sync.Mutex
	regs    map[api.Handle]*registration
	fds     map[int]api.Handle
	next    api.Handle
	ready   []readyEvent
	running bool
	closed  bool

	dispatched atomic.Uint64
}

var _ api.Demux = (*Reactor)(nil)

// Option configures a Reactor.
type Option func(*Reactor)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Reactor) {
		if l != nil {
			r.log = l
		}
	}
}

// WithCPU pins the loop goroutine's OS thread to cpu while Run executes.
func WithCPU(cpu int) Option {
	return func(r *Reactor) { r.cpu = cpu }
}

// New creates a reactor backed by the platform poller.
func New(opts ...Option) (*Reactor, error) {
	p, err := newPoller()
	if err != nil {
		return nil, err
	}
	r := &Reactor{
		id:   uuid.NewString(),
		log:  zap.NewNop(),
		cpu:  -1,
		p:    p,
		regs: make(map[api.Handle]*registration),
		fds:  make(map[int]api.Handle),
	}
	for _, o := range opts {
		o(r)
	}
	r.log = r.log.Named("reactor").With(zap.String("reactor", r.id))
	return r, nil
}

// ID returns the reactor identifier used in logs.
func (r *Reactor) ID() string { return r.id }

// Dispatched returns the number of handler invocations so far.
func (r *Reactor) Dispatched() uint64 { return r.dispatched.Load() }

func (r *Reactor) add(reg *registration) (api.Handle, error) {
	if r.closed {
		return 0, ErrClosed
	}
	r.next++
	r.regs[r.next] = reg
	return r.next, nil
}

// RegisterSocket registers fd with no interest.
func (r *Reactor) RegisterSocket(fd int, h api.Handler) (api.Handle, error) {
	if h == nil || fd < 0 {
		return 0, api.ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.fds[fd]; dup {
		return 0, api.ErrInvalidArgument
	}
	handle, err := r.add(&registration{kind: regSocket, fd: fd, h: h})
	if err != nil {
		return 0, err
	}
	if err = r.p.add(fd); err != nil {
		delete(r.regs, handle)
		return 0, err
	}
	r.fds[fd] = handle
	r.log.Debug("socket registered", zap.Int("fd", fd), zap.Uint64("handle", uint64(handle)))
	return handle, nil
}

// RegisterQueue registers q and installs its readiness hook.
func (r *Reactor) RegisterQueue(q api.Queue, h api.Handler) (api.Handle, error) {
	if h == nil || q == nil {
		return 0, api.ErrInvalidArgument
	}
	r.mu.Lock()
	handle, err := r.add(&registration{kind: regQueue, q: q, h: h})
	r.mu.Unlock()
	if err != nil {
		return 0, err
	}
	q.Notify(func() { r.signal(handle) })
	return handle, nil
}

// RegisterErrorSource registers a handler for asynchronous demux failures.
func (r *Reactor) RegisterErrorSource(h api.Handler) (api.Handle, error) {
	if h == nil {
		return 0, api.ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.add(&registration{kind: regError, h: h, interest: api.InterestError})
}

// SetInterest replaces the interest mask of handle.
func (r *Reactor) SetInterest(handle api.Handle, mask api.Interest, errh api.Handle) error {
	r.mu.Lock()
	reg, ok := r.regs[handle]
	if !ok {
		r.mu.Unlock()
		return r.fail(errh, api.ErrNotRegistered)
	}
	var err error
	switch reg.kind {
	case regSocket:
		if err = r.p.modify(reg.fd, mask); err == nil {
			reg.interest = mask
		}
	case regQueue:
		reg.interest = mask
		if r.markLocked(handle, reg) {
			r.mu.Unlock()
			return r.p.wake()
		}
	case regError:
		reg.interest = mask | api.InterestError
	}
	r.mu.Unlock()
	if err != nil {
		return r.fail(errh, err)
	}
	return nil
}

// Deregister removes handle.
func (r *Reactor) Deregister(handle api.Handle, errh api.Handle) error {
	r.mu.Lock()
	reg, ok := r.regs[handle]
	if !ok {
		r.mu.Unlock()
		return r.fail(errh, api.ErrNotRegistered)
	}
	delete(r.regs, handle)
	var err error
	switch reg.kind {
	case regSocket:
		delete(r.fds, reg.fd)
		err = r.p.remove(reg.fd)
	case regQueue:
		reg.q.Notify(nil)
	}
	r.mu.Unlock()
	r.log.Debug("deregistered", zap.Uint64("handle", uint64(handle)))
	if err != nil {
		return r.fail(errh, err)
	}
	return nil
}

// fail queues err for the error source errh and returns it.
func (r *Reactor) fail(errh api.Handle, err error) error {
	if errh == 0 {
		return err
	}
	r.mu.Lock()
	_, ok := r.regs[errh]
	if ok {
		r.ready = append(r.ready, readyEvent{h: errh, mask: api.InterestError, aux: err})
	}
	r.mu.Unlock()
	if ok {
		_ = r.p.wake()
	}
	return err
}

// signal is the readiness hook installed on registered queues.
func (r *Reactor) signal(handle api.Handle) {
	r.mu.Lock()
	reg, ok := r.regs[handle]
	wake := ok && r.markLocked(handle, reg)
	r.mu.Unlock()
	if wake {
		_ = r.p.wake()
	}
}

// markLocked appends a queue readiness event unless one is already pending.
func (r *Reactor) markLocked(handle api.Handle, reg *registration) bool {
	if reg.queued || reg.interest&api.InterestQueue == 0 || reg.q.Len() == 0 {
		return false
	}
	reg.queued = true
	r.ready = append(r.ready, readyEvent{h: handle, mask: api.InterestQueue})
	return true
}

// Run dispatches events until ctx is done or Close is called.
func (r *Reactor) Run(ctx context.Context) error {
	r.mu.Lock()
	switch {
	case r.closed:
		r.mu.Unlock()
		return ErrClosed
	case r.running:
		r.mu.Unlock()
		return ErrRunning
	}
	r.running = true
	r.mu.Unlock()

	if r.cpu >= 0 {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		if err := affinity.SetAffinity(r.cpu); err != nil {
			r.log.Warn("cpu pinning failed", zap.Int("cpu", r.cpu), zap.Error(err))
		}
	}

	stop := context.AfterFunc(ctx, func() { _ = r.p.wake() })
	defer stop()

	r.log.Info("reactor started")
	defer func() {
		r.mu.Lock()
		r.running = false
		closed := r.closed
		r.mu.Unlock()
		if closed {
			_ = r.p.close()
		}
		r.log.Info("reactor stopped")
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}
		r.mu.Lock()
		closed, pending := r.closed, len(r.ready) > 0
		r.mu.Unlock()
		if closed {
			return nil
		}
		timeout := -1
		if pending {
			timeout = 0
		}
		if err := r.p.wait(timeout, r.dispatchSocket); err != nil {
			r.log.Error("poll failed", zap.Error(err))
			return err
		}
		r.drainReady()
	}
}

// RunOnce performs a single non-blocking poll and dispatch pass.
func (r *Reactor) RunOnce() error {
	if err := r.p.wait(0, r.dispatchSocket); err != nil {
		return err
	}
	r.drainReady()
	return nil
}

func (r *Reactor) dispatchSocket(fd int, ev pollEvents) {
	r.mu.Lock()
	handle, ok := r.fds[fd]
	var reg registration
	if ok {
		reg = *r.regs[handle]
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	var ready api.Interest
	if ev&pollIn != 0 {
		ready |= reg.interest & (api.InterestRead | api.InterestAccept)
	}
	if ev&pollOut != 0 {
		ready |= reg.interest & (api.InterestWrite | api.InterestConnect)
	}
	if ev&pollErr != 0 {
		ready |= api.InterestError | reg.interest&(api.InterestRead|api.InterestConnect)
	}
	if ready == 0 {
		return
	}
	r.invoke(reg.h, handle, ready, nil)
}

func (r *Reactor) drainReady() {
	r.mu.Lock()
	batch := r.ready
	r.ready = nil
	r.mu.Unlock()

	for _, ev := range batch {
		r.mu.Lock()
		reg, ok := r.regs[ev.h]
		if ok && reg.kind == regQueue {
			reg.queued = false
			ok = reg.interest&api.InterestQueue != 0 && reg.q.Len() > 0
		}
		var h api.Handler
		if ok {
			h = reg.h
		}
		r.mu.Unlock()
		if !ok {
			continue
		}

		r.invoke(h, ev.h, ev.mask, ev.aux)

		if ev.mask == api.InterestQueue {
			r.mu.Lock()
			if reg, ok := r.regs[ev.h]; ok {
				r.markLocked(ev.h, reg)
			}
			r.mu.Unlock()
		}
	}
}

func (r *Reactor) invoke(h api.Handler, handle api.Handle, ready api.Interest, aux any) {
	r.dispatched.Add(1)
	defer func() {
		if v := recover(); v != nil {
			r.log.Error("handler panic",
				zap.Uint64("handle", uint64(handle)),
				zap.Stringer("ready", ready),
				zap.Any("panic", v),
				zap.Stack("stack"))
		}
	}()
	h.OnReady(handle, ready, aux)
}

// Running reports whether Run is executing.
func (r *Reactor) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Registrations returns the number of live registrations.
func (r *Reactor) Registrations() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.regs)
}

// Close stops the loop and releases the poller. Registrations are dropped.
func (r *Reactor) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	running := r.running
	for h, reg := range r.regs {
		if reg.kind == regQueue {
			reg.q.Notify(nil)
		}
		delete(r.regs, h)
	}
	r.fds = make(map[int]api.Handle)
	r.mu.Unlock()
	if running {
		return r.p.wake()
	}
	return r.p.close()
}
