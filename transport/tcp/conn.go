// File: transport/tcp/conn.go
// Package tcp implements the non-blocking TCP connection engine.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A Conn owns one socket at a time. Outbound payloads arrive on its data
// queue and are written through a fixed write buffer; whatever the kernel
// does not take is retained and flushed on write readiness while the data
// queue is suspended. Inbound bytes are emitted as KindReceive messages on
// the reverse path. Control requests arrive on a separate priority queue.

package tcp

import (
	"io"
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

// Conn is the TCP connection engine. Its exported methods are safe for
// concurrent use; everything else runs on the owning reactor.
type Conn struct {
	id    string
	mode  Mode
	cfg   config
	log   *zap.Logger
	demux api.Demux
	state atomic.Int32

	data   *queue.Bounded
	events *queue.Priority

	dataH  api.Handle
	eventH api.Handle
	errH   api.Handle
	sockH  api.Handle

	sock    transport.Socket
	reverse *pipeline.Reverse

	rbuf    []byte
	wbuf    []byte
	wlen    int
	staging []byte

	suspended    bool
	inputClosed  bool
	outputClosed bool
	connectReq   *api.Message
}

var _ api.PressureSink = (*Conn)(nil)

// NewClient creates a client-mode connection in READY. It dials when a
// KindConnect request arrives and returns to READY after every close.
func NewClient(d api.Demux, opts ...Option) (*Conn, error) {
	return newConn(d, ModeClient, nil, opts)
}

// NewServer wraps an accepted socket. The connection starts CONNECTED, or
// CONNECTING with WithPendingAccept, and ends in CLOSED.
func NewServer(d api.Demux, s transport.Socket, opts ...Option) (*Conn, error) {
	if s == nil {
		return nil, errors.Wrap(api.ErrInvalidArgument, "nil socket")
	}
	return newConn(d, ModeServer, s, opts)
}

func newConn(d api.Demux, mode Mode, s transport.Socket, opts []Option) (*Conn, error) {
	if d == nil {
		return nil, errors.Wrap(api.ErrInvalidArgument, "nil demux")
	}
	cfg := newConfig(opts)
	c := &Conn{
		id:     uuid.NewString(),
		mode:   mode,
		cfg:    cfg,
		demux:  d,
		data:   queue.NewBounded(cfg.queueCap),
		events: queue.NewPriority(cfg.queueCap),
		rbuf:   cfg.buffers.Get(cfg.readBufSize),
		wbuf:   cfg.buffers.Get(cfg.writeBufSize),
	}
	c.log = cfg.log.Named("tcp.conn").With(zap.String("conn", c.id), zap.Stringer("mode", mode))
	c.reverse = pipeline.NewReverse("tcp.conn", cfg.sideCap, c.log, cfg.metrics)

	if err := c.register(); err != nil {
		return nil, err
	}
	if s != nil {
		c.sock = s
		h, err := d.RegisterSocket(s.Fd(), api.HandlerFunc(c.onSocket))
		if err != nil {
			c.release()
			return nil, errors.Wrap(err, "register socket")
		}
		c.sockH = h
		if cfg.pendingAccept {
			c.setState(StateConnecting)
			c.setInterest(c.sockH, api.InterestConnect)
		} else {
			c.established(nil)
		}
	}
	cfg.probes.RegisterProbe(c.probeName(), func() any { return c.State().String() })
	c.log.Debug("connection created")
	return c, nil
}

func (c *Conn) register() error {
	var err error
	if c.errH, err = c.demux.RegisterErrorSource(api.HandlerFunc(c.onDemuxError)); err != nil {
		return errors.Wrap(err, "register error source")
	}
	if c.eventH, err = c.demux.RegisterQueue(c.events, api.HandlerFunc(c.onEvents)); err != nil {
		c.release()
		return errors.Wrap(err, "register event queue")
	}
	if c.dataH, err = c.demux.RegisterQueue(c.data, api.HandlerFunc(c.onData)); err != nil {
		c.release()
		return errors.Wrap(err, "register data queue")
	}
	if err = c.demux.SetInterest(c.eventH, api.InterestQueue, 0); err != nil {
		c.release()
		return errors.Wrap(err, "enable event queue")
	}
	return nil
}

// release drops every registration still held.
func (c *Conn) release() error {
	var err error
	for _, h := range []*api.Handle{&c.sockH, &c.dataH, &c.eventH, &c.errH} {
		if *h != 0 {
			err = multierr.Append(err, c.demux.Deregister(*h, 0))
			*h = 0
		}
	}
	return err
}

func (c *Conn) probeName() string { return "tcp.conn." + c.id }

// ID returns the connection identifier used in logs and probes.
func (c *Conn) ID() string { return c.id }

// Demux returns the demultiplexer the connection is registered with.
func (c *Conn) Demux() api.Demux { return c.demux }

// Mode returns the connection mode.
func (c *Conn) Mode() Mode { return c.mode }

// State returns the current lifecycle state.
func (c *Conn) State() State { return State(c.state.Load()) }

func (c *Conn) setState(s State) {
	prev := State(c.state.Swap(int32(s)))
	if prev != s {
		c.log.Debug("state changed", zap.Stringer("from", prev), zap.Stringer("to", s))
	}
}

// Offer posts a data-path request, normally KindSend. Non-send requests
// on this path run after the payloads queued before them. Notifications
// are refused.
func (c *Conn) Offer(m *api.Message) bool {
	if c.State() == StateShutdown || !m.Kind.IsRequest() {
		return false
	}
	return c.data.Offer(m)
}

// OfferEvent posts a control request. Notifications are refused.
func (c *Conn) OfferEvent(m *api.Message) bool {
	if c.State() == StateShutdown || !m.Kind.IsRequest() {
		return false
	}
	return c.events.Offer(m)
}

// Pressure reports the data queue fill ratio.
func (c *Conn) Pressure() float64 { return c.data.Pressure() }

// EventPressure reports the control queue fill ratio.
func (c *Conn) EventPressure() float64 { return c.events.Pressure() }

// Send queues payload for writing.
func (c *Conn) Send(payload []byte) bool { return c.Offer(api.NewSend(payload)) }

// Connect requests a connection to addr.
func (c *Conn) Connect(addr net.Addr) bool {
	return c.OfferEvent(&api.Message{Kind: api.KindConnect, Addr: addr, Priority: api.PriorityControl})
}

// Attach requests that sink receive the reverse path.
func (c *Conn) Attach(sink api.Sink) bool {
	return c.OfferEvent(&api.Message{Kind: api.KindAttach, Sink: sink, Priority: api.PriorityControl})
}

// Detach requests that the current sink be released.
func (c *Conn) Detach() bool {
	return c.OfferEvent(&api.Message{Kind: api.KindDetach, Priority: api.PriorityControl})
}

// Close requests a graceful close.
func (c *Conn) Close() bool {
	return c.OfferEvent(&api.Message{Kind: api.KindClose, Priority: api.PriorityControl})
}

// Abort requests a forced close.
func (c *Conn) Abort() bool {
	return c.OfferEvent(&api.Message{Kind: api.KindClose, Force: true, Priority: api.PriorityControl})
}

// Shutdown requests permanent termination of the engine.
func (c *Conn) Shutdown() bool {
	return c.OfferEvent(&api.Message{Kind: api.KindShutdown, Priority: api.PriorityShutdown})
}

// ShutdownInput requests a half-close of the read side.
func (c *Conn) ShutdownInput() bool {
	return c.OfferEvent(&api.Message{Kind: api.KindShutdownInput, Priority: api.PriorityControl})
}

// ShutdownOutput requests a half-close of the write side.
func (c *Conn) ShutdownOutput() bool {
	return c.OfferEvent(&api.Message{Kind: api.KindShutdownOutput, Priority: api.PriorityControl})
}

func (c *Conn) onEvents(_ api.Handle, _ api.Interest, _ any) {
	for c.State() != StateShutdown {
		m, ok := c.events.Poll()
		if !ok {
			return
		}
		c.handle(m)
	}
}

func (c *Conn) onData(_ api.Handle, _ api.Interest, _ any) {
	for c.State() == StateConnected && !c.suspended {
		m, ok := c.data.Poll()
		if !ok {
			return
		}
		if m.Kind == api.KindSend {
			c.send(m)
			continue
		}
		c.handle(m)
	}
}

func (c *Conn) handle(m *api.Message) {
	switch m.Kind {
	case api.KindSend:
		if !c.data.Offer(m) {
			c.fail(m, api.OpWrite, api.ReasonIO, api.ErrQueueFull)
		}
	case api.KindConnect:
		c.connect(m)
	case api.KindAttach:
		c.reverse.Attach(m.Sink, m)
	case api.KindDetach:
		c.reverse.Detach(m)
	case api.KindClose:
		if !c.close(m, m.Force, false, api.ReasonRequested, nil) {
			c.fail(m, api.OpClose, api.ReasonState, nil)
		}
	case api.KindShutdown:
		c.shutdown(m)
	case api.KindShutdownInput:
		c.shutdownInput(m)
	case api.KindShutdownOutput:
		c.shutdownOutput(m)
	case api.KindListen:
		c.fail(m, api.OpListen, api.ReasonMode, nil)
	default:
		c.log.Warn("ignoring non-request message", zap.Stringer("message", m))
	}
}

// fail reports an operation failure as a KindError response to req.
func (c *Conn) fail(req *api.Message, op api.Op, reason api.Reason, err error) {
	c.cfg.metrics.IncError(op.String(), string(reason))
	c.log.Debug("operation failed", zap.Stringer("op", op), zap.String("reason", string(reason)), zap.Error(err))
	c.reverse.Respond(req, api.NewError(op, reason, err))
}

func (c *Conn) connect(m *api.Message) {
	if c.mode == ModeServer {
		c.fail(m, api.OpConnect, api.ReasonMode, nil)
		return
	}
	if st := c.State(); st != StateReady {
		c.fail(m, api.OpConnect, api.ReasonState, errors.Errorf("connect in state %s", st))
		return
	}
	addr, ok := m.Addr.(*net.TCPAddr)
	if !ok || addr == nil {
		c.fail(m, api.OpConnect, api.ReasonUnsupportedAddressType, errors.Errorf("address %v", m.Addr))
		return
	}
	if addr.IP == nil || addr.IP.IsUnspecified() {
		c.fail(m, api.OpConnect, api.ReasonUnresolvedAddress, errors.Errorf("address %s", addr))
		return
	}

	s, pending, err := c.cfg.dial(addr)
	if err != nil {
		c.fail(m, api.OpConnect, transport.Classify(err), err)
		return
	}
	h, err := c.demux.RegisterSocket(s.Fd(), api.HandlerFunc(c.onSocket))
	if err != nil {
		_ = s.Close()
		c.fail(m, api.OpConnect, api.ReasonIO, errors.Wrap(err, "register socket"))
		return
	}
	c.sock, c.sockH = s, h
	if pending {
		c.connectReq = m
		c.setState(StateConnecting)
		c.setInterest(c.sockH, api.InterestConnect)
		return
	}
	c.established(m)
}

func (c *Conn) finishConnect() {
	req := c.connectReq
	c.connectReq = nil
	err := c.sock.FinishConnect()
	if err == nil {
		c.established(req)
		return
	}
	if derr := c.demux.Deregister(c.sockH, c.errH); derr != nil {
		c.log.Warn("deregister failed socket", zap.Error(derr))
	}
	_ = c.sock.Close()
	c.sock, c.sockH = nil, 0
	if c.mode == ModeClient {
		c.setState(StateReady)
	} else {
		c.setState(StateClosed)
	}
	c.fail(req, api.OpConnect, transport.Classify(err), err)
}

func (c *Conn) established(req *api.Message) {
	c.setState(StateConnected)
	c.cfg.metrics.ConnOpened()
	c.resume()
	remote := c.sock.RemoteAddr()
	c.log.Info("connected", zap.Stringer("remote", addrStringer{remote}))
	c.reverse.Respond(req, &api.Message{Kind: api.KindConnected, Addr: remote, Priority: api.PriorityControl})
}

func (c *Conn) socketInterest() api.Interest {
	var i api.Interest
	if !c.inputClosed {
		i |= api.InterestRead
	}
	if c.suspended {
		i |= api.InterestWrite
	}
	return i
}

func (c *Conn) setInterest(h api.Handle, mask api.Interest) {
	if h == 0 {
		return
	}
	if err := c.demux.SetInterest(h, mask, c.errH); err != nil {
		c.log.Warn("set interest", zap.Stringer("interest", mask), zap.Error(err))
	}
}

// suspend stops draining the data queue until buffered bytes are flushed.
func (c *Conn) suspend() {
	if c.suspended {
		return
	}
	c.suspended = true
	c.setInterest(c.dataH, api.InterestNone)
	c.setInterest(c.sockH, c.socketInterest())
}

func (c *Conn) resume() {
	c.suspended = false
	c.setInterest(c.sockH, c.socketInterest())
	c.setInterest(c.dataH, api.InterestQueue)
}

func (c *Conn) onSocket(_ api.Handle, ready api.Interest, _ any) {
	switch c.State() {
	case StateConnecting:
		if ready&(api.InterestConnect|api.InterestError) != 0 {
			c.finishConnect()
		}
	case StateConnected:
		if ready&api.InterestWrite != 0 && c.suspended {
			c.pump(nil)
		}
		if c.State() == StateConnected && ready&api.InterestRead != 0 {
			c.receive()
		}
		if c.State() == StateConnected && ready&api.InterestError != 0 && ready&api.InterestRead == 0 {
			c.close(nil, true, true, api.ReasonIO, errors.New("socket error"))
		}
	}
}

func (c *Conn) receive() {
	n, err := c.sock.Read(c.rbuf)
	if n > 0 {
		c.cfg.metrics.AddRead(n)
		m := &api.Message{Kind: api.KindReceive, Data: append([]byte(nil), c.rbuf[:n]...)}
		// A lost chunk breaks the byte stream for every later reader.
		if !c.reverse.Data(m) && (c.reverse.Attached() || c.reverse.Buffering()) {
			c.cfg.metrics.IncError(api.OpRead.String(), string(api.ReasonIO))
			c.close(nil, true, true, api.ReasonIO, api.ErrQueueFull)
			return
		}
	}
	switch {
	case err == nil, errors.Is(err, transport.ErrWouldBlock):
	case errors.Is(err, io.EOF):
		c.close(nil, false, false, api.ReasonEOF, nil)
	default:
		c.cfg.metrics.IncError(api.OpRead.String(), string(api.ReasonIO))
		c.close(nil, true, true, api.ReasonIO, err)
	}
}

func (c *Conn) send(m *api.Message) {
	if c.outputClosed {
		c.fail(m, api.OpWrite, api.ReasonClosedChannel, nil)
		return
	}
	c.staging = append(c.staging, m.Data...)
	c.pump(m)
}

// pump flushes buffered bytes and adjusts interest to the outcome.
func (c *Conn) pump(req *api.Message) {
	done, err := c.flush()
	switch {
	case err != nil:
		c.fail(req, api.OpWrite, transport.Classify(err), err)
		c.close(nil, true, true, api.ReasonIO, err)
	case !done:
		c.suspend()
	case c.suspended:
		c.resume()
	}
}

// flush moves staged bytes into the write buffer and writes until either
// both are empty or the socket stops accepting.
func (c *Conn) flush() (bool, error) {
	for {
		if len(c.staging) > 0 && c.wlen < len(c.wbuf) {
			n := copy(c.wbuf[c.wlen:], c.staging)
			c.wlen += n
			c.staging = c.staging[n:]
			if len(c.staging) == 0 {
				c.staging = nil
			}
		}
		if c.wlen == 0 {
			return true, nil
		}
		n, err := c.sock.Write(c.wbuf[:c.wlen])
		if n > 0 {
			c.cfg.metrics.AddWritten(n)
			copy(c.wbuf, c.wbuf[n:c.wlen])
			c.wlen -= n
		}
		if err != nil {
			if errors.Is(err, transport.ErrWouldBlock) {
				return false, nil
			}
			return false, err
		}
		if c.wlen > 0 {
			return false, nil
		}
	}
}

// close ends the current socket. It reports false when no socket is open.
func (c *Conn) close(req *api.Message, force, failed bool, reason api.Reason, cause error) bool {
	st := c.State()
	if st != StateConnected && st != StateConnecting {
		return false
	}
	var errs error
	if c.sockH != 0 {
		errs = multierr.Append(errs, c.demux.Deregister(c.sockH, c.errH))
		c.sockH = 0
	}
	if st == StateConnected && !force && !c.outputClosed {
		if done, err := c.flush(); !done || err != nil {
			c.log.Debug("discarding unflushed bytes",
				zap.Int("buffered", c.wlen+len(c.staging)), zap.Error(err))
		}
	}
	if force {
		errs = multierr.Append(errs, c.sock.Abort())
	} else {
		errs = multierr.Append(errs, c.sock.Close())
	}
	if errs != nil {
		c.log.Warn("socket release", zap.Error(errs))
	}
	if st == StateConnected {
		c.cfg.metrics.ConnClosed()
	}

	inputClosed := c.inputClosed
	c.sock = nil
	c.wlen = 0
	c.staging = nil
	c.suspended = false
	c.inputClosed = false
	c.outputClosed = false
	c.connectReq = nil
	c.setInterest(c.dataH, api.InterestNone)

	if c.mode == ModeClient {
		if n := c.data.Clear(); n > 0 {
			c.log.Debug("discarded queued payloads", zap.Int("count", n))
		}
		c.setState(StateReady)
	} else {
		c.setState(StateClosed)
	}

	c.log.Info("connection closed", zap.Bool("failed", failed),
		zap.String("reason", string(reason)), zap.Bool("forced", force), zap.Error(cause))
	if !inputClosed {
		c.reverse.Event(&api.Message{Kind: api.KindInputClosed, Priority: api.PriorityControl})
	}
	c.reverse.Respond(req, &api.Message{
		Kind:     api.KindClosed,
		Failed:   failed,
		Reason:   reason,
		Err:      cause,
		Priority: api.PriorityControl,
	})
	return true
}

func (c *Conn) shutdownInput(m *api.Message) {
	if c.State() != StateConnected || c.inputClosed {
		c.fail(m, api.OpShutdownInput, api.ReasonState, nil)
		return
	}
	if err := c.sock.ShutdownInput(); err != nil {
		c.fail(m, api.OpShutdownInput, transport.Classify(err), err)
		return
	}
	c.inputClosed = true
	c.setInterest(c.sockH, c.socketInterest())
	c.reverse.Respond(m, &api.Message{Kind: api.KindInputClosed, Priority: api.PriorityControl})
}

func (c *Conn) shutdownOutput(m *api.Message) {
	if c.State() != StateConnected || c.outputClosed {
		c.fail(m, api.OpShutdownOutput, api.ReasonState, nil)
		return
	}
	if err := c.sock.ShutdownOutput(); err != nil {
		c.fail(m, api.OpShutdownOutput, transport.Classify(err), err)
		return
	}
	c.outputClosed = true
	if c.wlen+len(c.staging) > 0 {
		c.log.Debug("discarding unflushed bytes", zap.Int("buffered", c.wlen+len(c.staging)))
		c.wlen, c.staging = 0, nil
	}
	if c.suspended {
		c.resume()
	}
	c.reverse.Respond(m, &api.Message{Kind: api.KindOutputClosed, Priority: api.PriorityControl})
}

func (c *Conn) shutdown(m *api.Message) {
	if c.State() == StateShutdown {
		return
	}
	c.close(nil, m.Force, false, api.ReasonShutdown, nil)

	if err := c.release(); err != nil {
		c.log.Warn("release registrations", zap.Error(err))
	}
	c.setState(StateShutdown)
	c.cfg.buffers.Put(c.rbuf)
	c.cfg.buffers.Put(c.wbuf)
	c.rbuf, c.wbuf = nil, nil
	c.data.Clear()
	c.events.Clear()
	c.cfg.probes.UnregisterProbe(c.probeName())
	c.log.Info("connection shut down")
	c.reverse.Respond(m, &api.Message{Kind: api.KindShutdownComplete, Priority: api.PriorityShutdown})
}

func (c *Conn) onDemuxError(_ api.Handle, _ api.Interest, aux any) {
	err, _ := aux.(error)
	c.cfg.metrics.IncError("demux", string(api.ReasonOf(err)))
	c.log.Warn("demultiplexer error", zap.Error(err))
}

// addrStringer renders a possibly nil address.
type addrStringer struct{ a net.Addr }

func (s addrStringer) String() string {
	if s.a == nil {
		return "<nil>"
	}
	return s.a.String()
}
