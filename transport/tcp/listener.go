// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Listener accept loop. Every accept-ready notification accepts at most
// one pending connection and wraps it into a server-mode Conn that is
// announced with KindAccepted.

package tcp

import (
	"net"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/momentics/hioload-tcp/api"
	"github.com/momentics/hioload-tcp/pipeline"
	"github.com/momentics/hioload-tcp/queue"
	"github.com/momentics/hioload-tcp/transport"
)

// Listener is the TCP listener engine. Both Offer and OfferEvent feed its
// single control queue.
type Listener struct {
	id    string
	cfg   config
	log   *zap.Logger
	demux api.Demux
	state atomic.Int32
	bound atomic.Pointer[net.TCPAddr]

	addr   *net.TCPAddr
	events *queue.Priority

	eventH api.Handle
	errH   api.Handle
	sockH  api.Handle

	ls      transport.ListenSocket
	reverse *pipeline.Reverse
}

var _ api.PressureSink = (*Listener)(nil)

// NewListener creates a listener in READY for addr. A KindListen request
// starts listening; its Addr, when set, replaces addr.
func NewListener(d api.Demux, addr *net.TCPAddr, opts ...Option) (*Listener, error) {
	if d == nil {
		return nil, errors.Wrap(api.ErrInvalidArgument, "nil demux")
	}
	cfg := newConfig(opts)
	l := &Listener{
		id:     uuid.NewString(),
		cfg:    cfg,
		demux:  d,
		addr:   addr,
		events: queue.NewPriority(cfg.queueCap),
	}
	l.log = cfg.log.Named("tcp.listener").With(zap.String("listener", l.id))
	l.reverse = pipeline.NewReverse("tcp.listener", cfg.sideCap, l.log, cfg.metrics)

	var err error
	if l.errH, err = d.RegisterErrorSource(api.HandlerFunc(l.onDemuxError)); err != nil {
		return nil, errors.Wrap(err, "register error source")
	}
	if l.eventH, err = d.RegisterQueue(l.events, api.HandlerFunc(l.onEvents)); err != nil {
		_ = l.release()
		return nil, errors.Wrap(err, "register event queue")
	}
	if err = d.SetInterest(l.eventH, api.InterestQueue, 0); err != nil {
		_ = l.release()
		return nil, errors.Wrap(err, "enable event queue")
	}
	cfg.probes.RegisterProbe(l.probeName(), func() any { return l.State().String() })
	return l, nil
}

func (l *Listener) probeName() string { return "tcp.listener." + l.id }

// ID returns the listener identifier.
func (l *Listener) ID() string { return l.id }

// State returns the current lifecycle state.
func (l *Listener) State() ListenerState { return ListenerState(l.state.Load()) }

// Addr returns the bound address while listening, or nil.
func (l *Listener) Addr() net.Addr {
	if a := l.bound.Load(); a != nil {
		return a
	}
	return nil
}

func (l *Listener) setState(s ListenerState) {
	prev := ListenerState(l.state.Swap(int32(s)))
	if prev != s {
		l.log.Debug("state changed", zap.Stringer("from", prev), zap.Stringer("to", s))
	}
}

// Offer posts a request.
func (l *Listener) Offer(m *api.Message) bool { return l.OfferEvent(m) }

// OfferEvent posts a request. Notifications are refused.
func (l *Listener) OfferEvent(m *api.Message) bool {
	if l.State() == ListenerShutdown || !m.Kind.IsRequest() {
		return false
	}
	return l.events.Offer(m)
}

// Pressure reports the request queue fill ratio.
func (l *Listener) Pressure() float64 { return l.events.Pressure() }

// EventPressure reports the request queue fill ratio.
func (l *Listener) EventPressure() float64 { return l.events.Pressure() }

// Listen requests listening on the configured address.
func (l *Listener) Listen() bool {
	return l.OfferEvent(&api.Message{Kind: api.KindListen, Priority: api.PriorityControl})
}

// Attach requests that sink receive accepted connections and errors.
func (l *Listener) Attach(sink api.Sink) bool {
	return l.OfferEvent(&api.Message{Kind: api.KindAttach, Sink: sink, Priority: api.PriorityControl})
}

// Detach requests that the current sink be released.
func (l *Listener) Detach() bool {
	return l.OfferEvent(&api.Message{Kind: api.KindDetach, Priority: api.PriorityControl})
}

// Close requests that listening stop; the listener returns to READY.
func (l *Listener) Close() bool {
	return l.OfferEvent(&api.Message{Kind: api.KindClose, Priority: api.PriorityControl})
}

// Shutdown requests permanent termination.
func (l *Listener) Shutdown() bool {
	return l.OfferEvent(&api.Message{Kind: api.KindShutdown, Priority: api.PriorityShutdown})
}

func (l *Listener) onEvents(_ api.Handle, _ api.Interest, _ any) {
	for l.State() != ListenerShutdown {
		m, ok := l.events.Poll()
		if !ok {
			return
		}
		l.handle(m)
	}
}

func (l *Listener) handle(m *api.Message) {
	switch m.Kind {
	case api.KindListen:
		l.listen(m)
	case api.KindClose:
		if !l.close(m, api.ReasonRequested) {
			l.fail(m, api.OpClose, api.ReasonState, nil)
		}
	case api.KindShutdown:
		l.shutdown(m)
	case api.KindAttach:
		l.reverse.Attach(m.Sink, m)
	case api.KindDetach:
		l.reverse.Detach(m)
	case api.KindConnect:
		l.fail(m, api.OpConnect, api.ReasonMode, nil)
	case api.KindSend:
		l.fail(m, api.OpWrite, api.ReasonMode, nil)
	case api.KindShutdownInput:
		l.fail(m, api.OpShutdownInput, api.ReasonMode, nil)
	case api.KindShutdownOutput:
		l.fail(m, api.OpShutdownOutput, api.ReasonMode, nil)
	default:
		l.log.Warn("ignoring non-request message", zap.Stringer("message", m))
	}
}

func (l *Listener) fail(req *api.Message, op api.Op, reason api.Reason, err error) {
	l.cfg.metrics.IncError(op.String(), string(reason))
	l.log.Debug("operation failed", zap.Stringer("op", op), zap.String("reason", string(reason)), zap.Error(err))
	l.reverse.Respond(req, api.NewError(op, reason, err))
}

func (l *Listener) listen(m *api.Message) {
	if st := l.State(); st != ListenerReady {
		l.fail(m, api.OpListen, api.ReasonState, errors.Errorf("listen in state %s", st))
		return
	}
	addr := l.addr
	if m.Addr != nil {
		a, ok := m.Addr.(*net.TCPAddr)
		if !ok {
			l.fail(m, api.OpListen, api.ReasonUnsupportedAddressType, errors.Errorf("address %v", m.Addr))
			return
		}
		addr = a
	}
	if addr == nil {
		l.fail(m, api.OpListen, api.ReasonUnsupportedAddressType, errors.New("no listen address"))
		return
	}

	ls, err := l.cfg.listen(addr, l.cfg.backlog)
	if err != nil {
		l.fail(m, api.OpListen, transport.Classify(err), err)
		return
	}
	h, err := l.demux.RegisterSocket(ls.Fd(), api.HandlerFunc(l.onSocket))
	if err != nil {
		_ = ls.Close()
		l.fail(m, api.OpListen, api.ReasonSocket, errors.Wrap(err, "register socket"))
		return
	}
	l.ls, l.sockH = ls, h
	if err := l.demux.SetInterest(h, api.InterestAccept, l.errH); err != nil {
		l.log.Warn("enable accept", zap.Error(err))
	}
	if a, ok := ls.Addr().(*net.TCPAddr); ok {
		l.bound.Store(a)
	}
	l.setState(ListenerListening)
	l.log.Info("listening", zap.Stringer("addr", addrStringer{ls.Addr()}))
	l.reverse.Respond(m, &api.Message{Kind: api.KindListening, Addr: ls.Addr(), Priority: api.PriorityControl})
}

func (l *Listener) onSocket(_ api.Handle, ready api.Interest, _ any) {
	if l.State() != ListenerListening {
		return
	}
	if ready&api.InterestAccept != 0 {
		l.accept()
		return
	}
	if ready&api.InterestError != 0 {
		l.log.Warn("error readiness on listening socket")
	}
}

// accept takes one pending connection.
func (l *Listener) accept() {
	s, err := l.ls.Accept()
	switch {
	case err == nil:
	case errors.Is(err, transport.ErrWouldBlock):
		return
	default:
		l.fail(nil, api.OpAccept, transport.Classify(err), err)
		return
	}

	opts := append([]Option{
		WithLogger(l.cfg.log),
		WithMetrics(l.cfg.metrics),
		WithProbes(l.cfg.probes),
		WithBufferPool(l.cfg.buffers),
	}, l.cfg.connOpts...)
	demux := l.demux
	if l.cfg.acceptDemux != nil {
		if d := l.cfg.acceptDemux(); d != nil {
			demux = d
		}
	}
	conn, err := NewServer(demux, s, opts...)
	if err != nil {
		_ = s.Abort()
		l.fail(nil, api.OpAccept, api.ReasonIO, err)
		return
	}
	l.cfg.metrics.IncAccepted()
	l.log.Debug("accepted", zap.String("conn", conn.ID()), zap.Stringer("remote", addrStringer{s.RemoteAddr()}))
	l.reverse.Event(&api.Message{
		Kind:     api.KindAccepted,
		Peer:     conn,
		Addr:     s.RemoteAddr(),
		Priority: api.PriorityControl,
	})
}

func (l *Listener) close(req *api.Message, reason api.Reason) bool {
	if l.State() != ListenerListening {
		return false
	}
	var errs error
	if l.sockH != 0 {
		errs = multierr.Append(errs, l.demux.Deregister(l.sockH, l.errH))
		l.sockH = 0
	}
	errs = multierr.Append(errs, l.ls.Close())
	if errs != nil {
		l.log.Warn("release listening socket", zap.Error(errs))
	}
	l.ls = nil
	l.bound.Store(nil)
	l.setState(ListenerReady)
	l.log.Info("listener closed", zap.String("reason", string(reason)))
	l.reverse.Respond(req, &api.Message{Kind: api.KindClosed, Reason: reason, Priority: api.PriorityControl})
	return true
}

func (l *Listener) shutdown(m *api.Message) {
	if l.State() == ListenerShutdown {
		return
	}
	l.close(nil, api.ReasonShutdown)
	if err := l.release(); err != nil {
		l.log.Warn("release registrations", zap.Error(err))
	}
	l.setState(ListenerShutdown)
	l.events.Clear()
	l.cfg.probes.UnregisterProbe(l.probeName())
	l.log.Info("listener shut down")
	l.reverse.Respond(m, &api.Message{Kind: api.KindShutdownComplete, Priority: api.PriorityShutdown})
}

func (l *Listener) release() error {
	var err error
	for _, h := range []*api.Handle{&l.sockH, &l.eventH, &l.errH} {
		if *h != 0 {
			err = multierr.Append(err, l.demux.Deregister(*h, 0))
			*h = 0
		}
	}
	return err
}

func (l *Listener) onDemuxError(_ api.Handle, _ api.Interest, aux any) {
	err, _ := aux.(error)
	l.cfg.metrics.IncError("demux", string(api.ReasonOf(err)))
	l.log.Warn("demultiplexer error", zap.Error(err))
}
