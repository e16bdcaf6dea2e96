package tcp_test

import (
	"io"
	"net"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/momentics/hioload-tcp/api"
	"github.com/momentics/hioload-tcp/fake"
	"github.com/momentics/hioload-tcp/pool"
	"github.com/momentics/hioload-tcp/transport/tcp"
)

var peer = &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9400}

type clientRig struct {
	d    *fake.Demux
	dial *fake.Dialer
	sock *fake.Socket
	conn *tcp.Conn
	sink *fake.Sink
}

// newClient builds a client conn with a recording sink attached.
func newClient(t *testing.T, opts ...tcp.Option) *clientRig {
	t.Helper()
	r := &clientRig{d: fake.NewDemux(), sock: fake.NewSocket(), sink: &fake.Sink{}}
	r.dial = &fake.Dialer{Sockets: []*fake.Socket{r.sock}}
	c, err := tcp.NewClient(r.d, append([]tcp.Option{tcp.WithDialer(r.dial.Dial)}, opts...)...)
	require.NoError(t, err)
	r.conn = c
	require.True(t, c.Attach(r.sink))
	r.d.Pump()
	require.Equal(t, []api.Kind{api.KindAttached}, r.sink.Kinds())
	r.sink.Reset()
	return r
}

// connected builds a client conn that has completed an immediate connect.
func connected(t *testing.T, opts ...tcp.Option) *clientRig {
	t.Helper()
	r := newClient(t, opts...)
	require.True(t, r.conn.Connect(peer))
	r.d.Pump()
	require.Equal(t, tcp.StateConnected, r.conn.State())
	require.Equal(t, []api.Kind{api.KindConnected}, r.sink.Kinds())
	r.sink.Reset()
	return r
}

func (r *clientRig) interest(t *testing.T) api.Interest {
	t.Helper()
	reg, ok := r.d.Socket(r.sock.FD)
	require.True(t, ok, "socket not registered")
	return reg.Interest
}

func requireError(t *testing.T, m *api.Message, op api.Op, reason api.Reason) {
	t.Helper()
	require.NotNil(t, m)
	require.Equal(t, api.KindError, m.Kind, m.String())
	assert.Equal(t, op, m.Op)
	assert.Equal(t, reason, m.Reason)
	assert.Equal(t, reason, api.ReasonOf(m.Err))
}

func TestConnectImmediate(t *testing.T) {
	r := newClient(t)
	assert.Equal(t, tcp.StateReady, r.conn.State())
	assert.Equal(t, tcp.ModeClient, r.conn.Mode())

	require.True(t, r.conn.Connect(peer))
	r.d.Pump()

	assert.Equal(t, tcp.StateConnected, r.conn.State())
	require.Len(t, r.dial.Addrs, 1)
	assert.Equal(t, peer, r.dial.Addrs[0])
	last := r.sink.Last()
	require.NotNil(t, last)
	assert.Equal(t, api.KindConnected, last.Kind)
	assert.Equal(t, peer, last.Addr)
	assert.Equal(t, api.InterestRead, r.interest(t))
}

func TestConnectWhileConnected(t *testing.T) {
	r := connected(t)

	r.conn.Connect(peer)
	r.d.Pump()

	requireError(t, r.sink.Last(), api.OpConnect, api.ReasonState)
	assert.Equal(t, tcp.StateConnected, r.conn.State())
	assert.Len(t, r.dial.Addrs, 1)
}

func TestConnectPending(t *testing.T) {
	r := newClient(t)
	r.dial.Pending = true

	r.conn.Connect(peer)
	r.d.Pump()
	assert.Equal(t, tcp.StateConnecting, r.conn.State())
	assert.Equal(t, api.InterestConnect, r.interest(t))
	assert.Empty(t, r.sink.Kinds())

	r.conn.Connect(peer)
	r.d.Pump()
	requireError(t, r.sink.Last(), api.OpConnect, api.ReasonState)
	assert.Equal(t, tcp.StateConnecting, r.conn.State())

	require.True(t, r.d.FireFd(r.sock.FD, api.InterestConnect))
	assert.Equal(t, tcp.StateConnected, r.conn.State())
	assert.Equal(t, api.KindConnected, r.sink.Last().Kind)
	assert.Equal(t, api.InterestRead, r.interest(t))
}

func TestConnectPendingFailure(t *testing.T) {
	r := newClient(t)
	r.dial.Pending = true
	r.sock.ConnectErr = errors.New("connection refused")

	r.conn.Connect(peer)
	r.d.Pump()
	require.True(t, r.d.FireFd(r.sock.FD, api.InterestConnect))

	requireError(t, r.sink.Last(), api.OpConnect, api.ReasonIO)
	assert.Equal(t, tcp.StateReady, r.conn.State())
	assert.True(t, r.sock.Closed)
	_, registered := r.d.Socket(r.sock.FD)
	assert.False(t, registered)
}

func TestConnectAddressValidation(t *testing.T) {
	cases := []struct {
		name   string
		addr   net.Addr
		reason api.Reason
	}{
		{"udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 1}, api.ReasonUnsupportedAddressType},
		{"nil", nil, api.ReasonUnsupportedAddressType},
		{"typed nil", (*net.TCPAddr)(nil), api.ReasonUnsupportedAddressType},
		{"no ip", &net.TCPAddr{Port: 1}, api.ReasonUnresolvedAddress},
		{"unspecified", &net.TCPAddr{IP: net.IPv4zero, Port: 1}, api.ReasonUnresolvedAddress},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newClient(t)
			r.conn.Connect(tc.addr)
			r.d.Pump()
			requireError(t, r.sink.Last(), api.OpConnect, tc.reason)
			assert.Equal(t, tcp.StateReady, r.conn.State())
			assert.Empty(t, r.dial.Addrs)
		})
	}
}

func TestConnectDialFailure(t *testing.T) {
	r := newClient(t)
	r.dial.Err = &api.Error{Op: api.OpConnect, Reason: api.ReasonSecurity}

	r.conn.Connect(peer)
	r.d.Pump()

	requireError(t, r.sink.Last(), api.OpConnect, api.ReasonSecurity)
	assert.Equal(t, tcp.StateReady, r.conn.State())
}

func TestConnectNotifyRef(t *testing.T) {
	r := newClient(t)
	ref := &fake.Sink{}

	r.conn.OfferEvent(&api.Message{Kind: api.KindConnect, Addr: peer, NotifyRef: ref})
	r.d.Pump()

	assert.Equal(t, []api.Kind{api.KindConnected}, ref.Kinds())
	assert.Empty(t, r.sink.Kinds())
}

func TestSendWritesInOrder(t *testing.T) {
	r := connected(t)

	r.conn.Send([]byte("hello "))
	r.conn.Send([]byte("world"))
	r.d.Pump()

	assert.Equal(t, "hello world", string(r.sock.Written()))
	assert.Empty(t, r.sink.Kinds())
}

func TestSendPartialWrites(t *testing.T) {
	r := connected(t, tcp.WithWriteBufferSize(4))
	r.sock.WriteLimit = 3

	r.conn.Send([]byte("abcdefghij"))
	r.d.Pump()
	assert.Equal(t, "abc", string(r.sock.Written()))
	assert.Equal(t, api.InterestRead|api.InterestWrite, r.interest(t))

	// Suspended: the next payload waits for the buffered bytes.
	r.conn.Send([]byte("XYZ"))
	r.d.Pump()
	assert.Equal(t, "abc", string(r.sock.Written()))

	for i := 0; i < 20 && r.interest(t)&api.InterestWrite != 0; i++ {
		r.d.FireFd(r.sock.FD, api.InterestWrite)
	}
	assert.Equal(t, api.InterestRead, r.interest(t))
	r.d.Pump()

	assert.Equal(t, "abcdefghijXYZ", string(r.sock.Written()))
	assert.Zero(t, r.conn.Pressure())
}

func TestSendWouldBlock(t *testing.T) {
	r := connected(t)
	r.sock.SetWriteBlocked(true)

	r.conn.Send([]byte("hi"))
	r.d.Pump()
	assert.Empty(t, r.sock.Written())
	assert.Equal(t, api.InterestRead|api.InterestWrite, r.interest(t))

	r.sock.SetWriteBlocked(false)
	require.True(t, r.d.FireFd(r.sock.FD, api.InterestWrite))
	assert.Equal(t, "hi", string(r.sock.Written()))
	assert.Equal(t, api.InterestRead, r.interest(t))
}

func TestSendBeforeConnectIsQueued(t *testing.T) {
	r := newClient(t, tcp.WithQueueCapacity(4))

	r.conn.Send([]byte("early"))
	r.d.Pump()
	assert.Equal(t, 0.25, r.conn.Pressure())

	r.conn.Connect(peer)
	r.d.Pump()
	assert.Equal(t, "early", string(r.sock.Written()))
}

func TestWriteFailureCloses(t *testing.T) {
	r := connected(t)
	r.sock.WriteErr = errors.New("broken pipe")

	r.conn.Send([]byte("x"))
	r.d.Pump()

	events := r.sink.Events()
	require.Len(t, events, 3)
	requireError(t, events[0], api.OpWrite, api.ReasonIO)
	assert.Equal(t, api.KindInputClosed, events[1].Kind)
	assert.Equal(t, api.KindClosed, events[2].Kind)
	assert.True(t, events[2].Failed)
	assert.True(t, r.sock.Aborted)
	assert.Equal(t, tcp.StateReady, r.conn.State())
}

func TestReceive(t *testing.T) {
	r := connected(t)
	r.sock.Feed([]byte("ping"))
	r.sock.Feed([]byte("pong"))

	require.True(t, r.d.FireFd(r.sock.FD, api.InterestRead))
	require.True(t, r.d.FireFd(r.sock.FD, api.InterestRead))

	data := r.sink.Data()
	require.Len(t, data, 2)
	assert.Equal(t, api.KindReceive, data[0].Kind)
	assert.Equal(t, "ping", string(data[0].Data))
	assert.Equal(t, "pong", string(data[1].Data))

	// Nothing pending: would-block is silent.
	require.True(t, r.d.FireFd(r.sock.FD, api.InterestRead))
	assert.Len(t, r.sink.Data(), 2)
	assert.Empty(t, r.sink.Kinds())
}

func TestReceiveBoundedByReadBuffer(t *testing.T) {
	r := connected(t, tcp.WithReadBufferSize(3))
	r.sock.Feed([]byte("abcdefg"))

	for i := 0; i < 3; i++ {
		r.d.FireFd(r.sock.FD, api.InterestRead)
	}
	data := r.sink.Data()
	require.Len(t, data, 3)
	assert.Equal(t, "abc", string(data[0].Data))
	assert.Equal(t, "def", string(data[1].Data))
	assert.Equal(t, "g", string(data[2].Data))
}

func TestRemoteEOF(t *testing.T) {
	r := connected(t)
	r.sock.FailRead(io.EOF)

	r.d.FireFd(r.sock.FD, api.InterestRead)

	assert.Equal(t, []api.Kind{api.KindInputClosed, api.KindClosed}, r.sink.Kinds())
	closed := r.sink.Last()
	assert.False(t, closed.Failed)
	assert.Equal(t, api.ReasonEOF, closed.Reason)
	assert.True(t, r.sock.Closed)
	assert.False(t, r.sock.Aborted)
	assert.Equal(t, tcp.StateReady, r.conn.State())
}

func TestReadErrorCloses(t *testing.T) {
	r := connected(t)
	r.sock.FailRead(errors.New("connection reset"))

	r.d.FireFd(r.sock.FD, api.InterestRead)

	closed := r.sink.Last()
	require.Equal(t, api.KindClosed, closed.Kind)
	assert.True(t, closed.Failed)
	assert.Equal(t, api.ReasonIO, closed.Reason)
	assert.True(t, r.sock.Aborted)
}

func TestGracefulCloseDiscardsQueued(t *testing.T) {
	r := connected(t)
	r.sock.SetWriteBlocked(true)
	r.conn.Send([]byte("a"))
	r.d.Pump()
	r.conn.Send([]byte("b"))

	r.conn.Close()
	r.d.Pump()

	assert.Equal(t, []api.Kind{api.KindInputClosed, api.KindClosed}, r.sink.Kinds())
	closed := r.sink.Last()
	assert.False(t, closed.Failed)
	assert.Equal(t, api.ReasonRequested, closed.Reason)
	assert.True(t, r.sock.Closed)
	assert.False(t, r.sock.Aborted)
	assert.Equal(t, tcp.StateReady, r.conn.State())
	assert.Zero(t, r.conn.Pressure())
	_, registered := r.d.Socket(r.sock.FD)
	assert.False(t, registered)
}

func TestGracefulCloseFlushes(t *testing.T) {
	r := connected(t, tcp.WithWriteBufferSize(2))
	r.sock.WriteLimit = 1
	r.conn.Send([]byte("ab"))
	r.d.Pump()
	require.Equal(t, "a", string(r.sock.Written()))

	r.sock.WriteLimit = 0
	r.conn.Close()
	r.d.Pump()

	assert.Equal(t, "ab", string(r.sock.Written()))
}

func TestAbort(t *testing.T) {
	r := connected(t)

	r.conn.Abort()
	r.d.Pump()

	assert.True(t, r.sock.Aborted)
	assert.Equal(t, api.KindClosed, r.sink.Last().Kind)
}

func TestCloseWhenReady(t *testing.T) {
	r := newClient(t)

	r.conn.Close()
	r.d.Pump()

	requireError(t, r.sink.Last(), api.OpClose, api.ReasonState)
	assert.Equal(t, tcp.StateReady, r.conn.State())
}

func TestClientReconnects(t *testing.T) {
	r := connected(t)
	r.conn.Close()
	r.d.Pump()
	r.sink.Reset()

	second := fake.NewSocket()
	r.dial.Sockets = []*fake.Socket{second}
	r.conn.Connect(peer)
	r.d.Pump()

	assert.Equal(t, tcp.StateConnected, r.conn.State())
	r.conn.Send([]byte("again"))
	r.d.Pump()
	assert.Equal(t, "again", string(second.Written()))
	assert.Empty(t, r.sock.Written())
}

func TestHalfClose(t *testing.T) {
	r := connected(t)

	r.conn.ShutdownInput()
	r.d.Pump()
	assert.Equal(t, []api.Kind{api.KindInputClosed}, r.sink.Kinds())
	assert.True(t, r.sock.InputShut)
	assert.Zero(t, r.interest(t)&api.InterestRead)

	r.conn.ShutdownOutput()
	r.d.Pump()
	assert.Equal(t, api.KindOutputClosed, r.sink.Last().Kind)
	assert.True(t, r.sock.OutputShut)
	assert.Equal(t, tcp.StateConnected, r.conn.State())

	r.conn.Send([]byte("late"))
	r.d.Pump()
	requireError(t, r.sink.Last(), api.OpWrite, api.ReasonClosedChannel)
	assert.Empty(t, r.sock.Written())

	r.sink.Reset()
	r.conn.Close()
	r.d.Pump()
	assert.Equal(t, []api.Kind{api.KindClosed}, r.sink.Kinds())
}

func TestHalfCloseErrors(t *testing.T) {
	r := newClient(t)
	r.conn.ShutdownInput()
	r.d.Pump()
	requireError(t, r.sink.Last(), api.OpShutdownInput, api.ReasonState)

	r = connected(t)
	r.sock.ShutdownErr = errors.New("not connected")
	r.conn.ShutdownOutput()
	r.d.Pump()
	requireError(t, r.sink.Last(), api.OpShutdownOutput, api.ReasonIO)
	assert.Equal(t, tcp.StateConnected, r.conn.State())
}

func TestShutdown(t *testing.T) {
	r := connected(t)

	r.conn.Shutdown()
	r.d.Pump()

	assert.Equal(t, []api.Kind{api.KindInputClosed, api.KindClosed, api.KindShutdownComplete}, r.sink.Kinds())
	assert.Equal(t, api.ReasonShutdown, r.sink.Events()[1].Reason)
	assert.Equal(t, tcp.StateShutdown, r.conn.State())
	assert.Zero(t, r.d.Len())
	assert.False(t, r.conn.Send([]byte("x")))
	assert.False(t, r.conn.Connect(peer))
}

func TestShutdownReturnsBuffers(t *testing.T) {
	buffers := pool.NewBytePool()
	r := connected(t, tcp.WithBufferPool(buffers))
	require.Equal(t, uint64(2), buffers.Stats().Allocated)

	r.conn.Shutdown()
	r.d.Pump()

	assert.Equal(t, uint64(2), buffers.Stats().Returned)
}

func TestShutdownOvertakesClose(t *testing.T) {
	r := connected(t)

	r.conn.Close()
	r.conn.Shutdown()
	r.d.Pump()

	kinds := r.sink.Kinds()
	assert.Equal(t, api.KindShutdownComplete, kinds[len(kinds)-1])
	assert.NotContains(t, kinds, api.KindError)
}

func TestUnattachedBuffering(t *testing.T) {
	d := fake.NewDemux()
	sock := fake.NewSocket()
	dial := &fake.Dialer{Sockets: []*fake.Socket{sock}}
	c, err := tcp.NewClient(d, tcp.WithDialer(dial.Dial))
	require.NoError(t, err)

	c.Connect(peer)
	d.Pump()
	sock.Feed([]byte("a"))
	sock.Feed([]byte("b"))
	d.FireFd(sock.FD, api.InterestRead)
	d.FireFd(sock.FD, api.InterestRead)

	sink := &fake.Sink{}
	c.Attach(sink)
	d.Pump()

	data := sink.Data()
	require.Len(t, data, 2)
	assert.Equal(t, "a", string(data[0].Data))
	assert.Equal(t, "b", string(data[1].Data))
	assert.Equal(t, []api.Kind{api.KindConnected, api.KindAttached}, sink.Kinds())
}

func TestUnattachedDropWithoutSideQueues(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	d := fake.NewDemux()
	sock := fake.NewSocket()
	dial := &fake.Dialer{Sockets: []*fake.Socket{sock}}
	c, err := tcp.NewClient(d,
		tcp.WithDialer(dial.Dial),
		tcp.WithSideQueueCapacity(0),
		tcp.WithLogger(zap.New(core)))
	require.NoError(t, err)

	c.Connect(peer)
	d.Pump()
	sock.Feed([]byte("lost"))
	d.FireFd(sock.FD, api.InterestRead)

	sink := &fake.Sink{}
	c.Attach(sink)
	d.Pump()

	assert.Empty(t, sink.Data())
	assert.Equal(t, []api.Kind{api.KindAttached}, sink.Kinds())
	assert.Equal(t, 2, logs.FilterMessage("reverse message dropped").Len())
}

// refuseData records events but rejects every data-path offer.
type refuseData struct{ *fake.Sink }

func (refuseData) Offer(*api.Message) bool { return false }

func TestRejectedReceiveCloses(t *testing.T) {
	r := connected(t)
	r.conn.Attach(refuseData{r.sink})
	r.d.Pump()
	r.sink.Reset()

	r.sock.Feed([]byte("chunk"))
	r.d.FireFd(r.sock.FD, api.InterestRead)

	assert.Equal(t, tcp.StateReady, r.conn.State())
	assert.True(t, r.sock.Aborted)
	require.Equal(t, []api.Kind{api.KindInputClosed, api.KindClosed}, r.sink.Kinds())
	closed := r.sink.Last()
	assert.True(t, closed.Failed)
	assert.Equal(t, api.ReasonIO, closed.Reason)
	assert.ErrorIs(t, closed.Err, api.ErrQueueFull)
}

func TestFullSideQueueCloses(t *testing.T) {
	d := fake.NewDemux()
	sock := fake.NewSocket()
	dial := &fake.Dialer{Sockets: []*fake.Socket{sock}}
	c, err := tcp.NewClient(d, tcp.WithDialer(dial.Dial), tcp.WithSideQueueCapacity(2))
	require.NoError(t, err)

	c.Connect(peer)
	d.Pump()
	sock.Feed([]byte("a"))
	sock.Feed([]byte("b"))
	sock.Feed([]byte("c"))
	for i := 0; i < 3; i++ {
		d.FireFd(sock.FD, api.InterestRead)
	}

	assert.Equal(t, tcp.StateReady, c.State())
	assert.True(t, sock.Aborted)

	sink := &fake.Sink{}
	c.Attach(sink)
	d.Pump()

	data := sink.Data()
	require.Len(t, data, 2)
	assert.Equal(t, "a", string(data[0].Data))
	assert.Equal(t, "b", string(data[1].Data))
}

func TestSendOnEventPathWithFullQueue(t *testing.T) {
	r := newClient(t, tcp.WithQueueCapacity(1))
	require.True(t, r.conn.Send([]byte("queued")))

	require.True(t, r.conn.OfferEvent(api.NewSend([]byte("overflow"))))
	r.d.Pump()

	last := r.sink.Last()
	requireError(t, last, api.OpWrite, api.ReasonIO)
	assert.ErrorIs(t, last.Err, api.ErrQueueFull)
}

func TestConnRefusesNotifications(t *testing.T) {
	r := connected(t)

	assert.False(t, r.conn.Offer(&api.Message{Kind: api.KindReceive, Data: []byte("x")}))
	assert.False(t, r.conn.OfferEvent(&api.Message{Kind: api.KindClosed}))
	assert.Zero(t, r.conn.Pressure())
	assert.Zero(t, r.conn.EventPressure())
}

func TestDetach(t *testing.T) {
	r := connected(t)

	r.conn.Detach()
	r.d.Pump()
	detached := r.sink.Last()
	require.Equal(t, api.KindDetached, detached.Kind)
	assert.Same(t, r.sink, detached.Sink)

	r.sock.Feed([]byte("buffered"))
	r.d.FireFd(r.sock.FD, api.InterestRead)
	assert.Empty(t, r.sink.Data())

	next := &fake.Sink{}
	r.conn.Attach(next)
	r.d.Pump()
	require.Len(t, next.Data(), 1)
	assert.Equal(t, "buffered", string(next.Data()[0].Data))
}

func TestAttachNilSink(t *testing.T) {
	r := newClient(t)

	r.conn.Attach(nil)
	r.d.Pump()

	requireError(t, r.sink.Last(), api.OpAttach, api.ReasonInvalidTarget)
}

func TestServerMode(t *testing.T) {
	d := fake.NewDemux()
	sock := fake.NewSocket()
	c, err := tcp.NewServer(d, sock)
	require.NoError(t, err)
	sink := &fake.Sink{}
	c.Attach(sink)
	d.Pump()

	assert.Equal(t, tcp.ModeServer, c.Mode())
	assert.Equal(t, tcp.StateConnected, c.State())
	assert.Equal(t, []api.Kind{api.KindConnected, api.KindAttached}, sink.Kinds())

	c.Connect(peer)
	d.Pump()
	requireError(t, sink.Last(), api.OpConnect, api.ReasonMode)

	c.Close()
	d.Pump()
	assert.Equal(t, tcp.StateClosed, c.State())

	c.Close()
	d.Pump()
	requireError(t, sink.Last(), api.OpClose, api.ReasonState)
}

func TestServerPendingAccept(t *testing.T) {
	d := fake.NewDemux()
	sock := fake.NewSocket()
	c, err := tcp.NewServer(d, sock, tcp.WithPendingAccept())
	require.NoError(t, err)
	assert.Equal(t, tcp.StateConnecting, c.State())

	require.True(t, d.FireFd(sock.FD, api.InterestConnect))
	assert.Equal(t, tcp.StateConnected, c.State())
}

func TestNewServerRejectsNilSocket(t *testing.T) {
	_, err := tcp.NewServer(fake.NewDemux(), nil)
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
}

func TestDemuxErrorsAreLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	r := connected(t, tcp.WithLogger(zap.New(core)))
	r.d.FailSetInterest = errors.New("epoll_ctl failed")
	r.sock.SetWriteBlocked(true)

	r.conn.Send([]byte("x"))
	r.d.Pump()

	assert.NotZero(t, logs.FilterMessage("demultiplexer error").Len())
}

func TestQueueCapacity(t *testing.T) {
	r := newClient(t, tcp.WithQueueCapacity(2))

	assert.True(t, r.conn.Send([]byte("1")))
	assert.True(t, r.conn.Send([]byte("2")))
	assert.False(t, r.conn.Send([]byte("3")))
	assert.Equal(t, 1.0, r.conn.Pressure())
}
