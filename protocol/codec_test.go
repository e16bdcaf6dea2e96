package protocol_test

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-tcp/api"
	"github.com/momentics/hioload-tcp/fake"
	"github.com/momentics/hioload-tcp/protocol"
	"github.com/momentics/hioload-tcp/transport/tcp"
)

// newCodec builds a codec in front of a recording sink standing in for
// the connection.
func newCodec(t *testing.T, opts ...protocol.Option) (*fake.Demux, *fake.Sink, *protocol.Codec) {
	t.Helper()
	d := fake.NewDemux()
	conn := &fake.Sink{}
	c, err := protocol.NewCodec(d, conn, opts...)
	require.NoError(t, err)
	return d, conn, c
}

func TestCodecAttachesDecoder(t *testing.T) {
	_, conn, c := newCodec(t)

	events := conn.Events()
	require.Len(t, events, 1)
	assert.Equal(t, api.KindAttach, events[0].Kind)
	assert.Same(t, c.Decoder(), events[0].Sink)
}

func TestEncoderFramesInPlace(t *testing.T) {
	_, conn, c := newCodec(t)

	m := api.NewSend([]byte("hi"))
	require.True(t, c.Offer(m))

	data := conn.Data()
	require.Len(t, data, 1)
	assert.Same(t, m, data[0])
	assert.Equal(t, []byte{0x00, 0x01, 'h', 'i'}, m.Data)
}

func TestEncoderRejectsOutOfRange(t *testing.T) {
	_, conn, c := newCodec(t)

	assert.False(t, c.Send(nil))
	assert.False(t, c.Send(make([]byte, protocol.MaxPayload+1)))
	assert.True(t, c.Send(make([]byte, protocol.MaxPayload)))
	assert.Len(t, conn.Data(), 1)
}

func TestEncoderRestoresRejectedPayload(t *testing.T) {
	_, conn, c := newCodec(t)
	conn.Reject = true

	m := api.NewSend([]byte("keep"))
	assert.False(t, c.Offer(m))
	assert.Equal(t, "keep", string(m.Data))
}

func TestEncoderPassesControl(t *testing.T) {
	_, conn, c := newCodec(t)
	conn.Reset()

	require.True(t, c.Close())
	abort := &api.Message{Kind: api.KindClose, Force: true}
	require.True(t, c.Offer(abort))

	assert.Equal(t, []api.Kind{api.KindClose}, conn.Kinds())
	require.Len(t, conn.Data(), 1)
	assert.Same(t, abort, conn.Data()[0])
}

func TestDecoderEmitsFrames(t *testing.T) {
	d, _, c := newCodec(t)
	app := &fake.Sink{}
	c.Attach(app)
	d.Pump()
	require.Equal(t, []api.Kind{api.KindAttached}, app.Kinds())

	stream := framesOf(t, []byte("ab"), []byte("cde"), []byte("f"))
	dec := c.Decoder()
	for _, chunk := range [][]byte{stream[:1], stream[1:3], stream[3:9], stream[9:]} {
		require.True(t, dec.Offer(&api.Message{Kind: api.KindReceive, Data: chunk}))
	}
	d.Pump()

	data := app.Data()
	require.Len(t, data, 3)
	for i, want := range []string{"ab", "cde", "f"} {
		assert.Equal(t, api.KindReceive, data[i].Kind)
		assert.Equal(t, want, string(data[i].Data))
	}
}

func TestDecoderBuffersUntilAttached(t *testing.T) {
	d, _, c := newCodec(t)
	dec := c.Decoder()
	dec.Offer(&api.Message{Kind: api.KindReceive, Data: framesOf(t, []byte("early"))})
	dec.OfferEvent(&api.Message{Kind: api.KindConnected})
	d.Pump()

	app := &fake.Sink{}
	c.Attach(app)
	d.Pump()

	require.Len(t, app.Data(), 1)
	assert.Equal(t, "early", string(app.Data()[0].Data))
	assert.Equal(t, []api.Kind{api.KindConnected, api.KindAttached}, app.Kinds())
}

func TestDecoderSwallowsOwnLinkConfirmation(t *testing.T) {
	d, _, c := newCodec(t)
	app := &fake.Sink{}
	c.Attach(app)
	d.Pump()
	app.Reset()

	c.Decoder().OfferEvent(&api.Message{Kind: api.KindAttached, Sink: c.Decoder()})
	d.Pump()

	assert.Empty(t, app.Kinds())
}

func TestDecoderDropsPartialFrameOnClose(t *testing.T) {
	d, _, c := newCodec(t)
	app := &fake.Sink{}
	c.Attach(app)
	dec := c.Decoder()

	dec.Offer(&api.Message{Kind: api.KindReceive, Data: []byte{0x00, 0x09, 'x'}})
	dec.OfferEvent(&api.Message{Kind: api.KindClosed})
	d.Pump()
	dec.Offer(&api.Message{Kind: api.KindReceive, Data: framesOf(t, []byte("next"))})
	d.Pump()

	require.Len(t, app.Data(), 1)
	assert.Equal(t, "next", string(app.Data()[0].Data))
	assert.Contains(t, app.Kinds(), api.KindClosed)
}

func TestCoordinatedShutdown(t *testing.T) {
	d, conn, c := newCodec(t)
	app := &fake.Sink{}
	c.Attach(app)
	d.Pump()
	conn.Reset()

	c.Decoder().OfferEvent(&api.Message{Kind: api.KindShutdownComplete, Priority: api.PriorityShutdown})
	d.Pump()

	assert.True(t, c.Encoder().Closed())
	assert.True(t, c.Closed())
	assert.Zero(t, d.Len())
	assert.Equal(t, api.KindShutdownComplete, app.Last().Kind)

	assert.False(t, c.Send([]byte("late")))
	assert.False(t, c.Close())
	assert.False(t, c.Decoder().Offer(&api.Message{Kind: api.KindReceive, Data: []byte{0}}))
	assert.Empty(t, conn.Data())
	assert.Empty(t, conn.Events())
}

func TestCodecOverConnection(t *testing.T) {
	d := fake.NewDemux()
	sock := fake.NewSocket()
	dial := &fake.Dialer{Sockets: []*fake.Socket{sock}}
	conn, err := tcp.NewClient(d, tcp.WithDialer(dial.Dial))
	require.NoError(t, err)
	c, err := protocol.NewCodec(d, conn)
	require.NoError(t, err)
	app := &fake.Sink{}
	c.Attach(app)
	c.OfferEvent(&api.Message{Kind: api.KindConnect, Addr: &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 7}})
	d.Pump()

	require.Equal(t, tcp.StateConnected, conn.State())
	assert.Equal(t, []api.Kind{api.KindAttached, api.KindConnected}, app.Kinds())

	c.Send([]byte("hello"))
	d.Pump()
	assert.Equal(t, []byte{0x00, 0x04, 'h', 'e', 'l', 'l', 'o'}, sock.Written())

	stream := framesOf(t, []byte("ab"), []byte("cde"))
	sock.Feed(stream[:1])
	sock.Feed(stream[1:5])
	sock.Feed(stream[5:])
	for i := 0; i < 3; i++ {
		d.FireFd(sock.FD, api.InterestRead)
	}
	d.Pump()
	data := app.Data()
	require.Len(t, data, 2)
	assert.Equal(t, "ab", string(data[0].Data))
	assert.Equal(t, "cde", string(data[1].Data))

	app.Reset()
	c.Shutdown()
	d.Pump()
	assert.Equal(t,
		[]api.Kind{api.KindInputClosed, api.KindClosed, api.KindShutdownComplete},
		app.Kinds())
	assert.Equal(t, tcp.StateShutdown, conn.State())
	assert.True(t, c.Closed())
	assert.Zero(t, d.Len())
}

// connectedCodec puts a codec in front of a client connection that has
// completed an immediate connect on a fake demux.
func connectedCodec(t *testing.T, opts ...protocol.Option) (*fake.Demux, *fake.Socket, *tcp.Conn, *protocol.Codec, *fake.Sink) {
	t.Helper()
	d := fake.NewDemux()
	sock := fake.NewSocket()
	dial := &fake.Dialer{Sockets: []*fake.Socket{sock}}
	conn, err := tcp.NewClient(d, tcp.WithDialer(dial.Dial))
	require.NoError(t, err)
	c, err := protocol.NewCodec(d, conn, opts...)
	require.NoError(t, err)
	app := &fake.Sink{}
	c.Attach(app)
	conn.Connect(&net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 7})
	d.Pump()
	require.Equal(t, tcp.StateConnected, conn.State())
	app.Reset()
	return d, sock, conn, c, app
}

func TestConnectionShutdownReachesApplicationInOrder(t *testing.T) {
	d, sock, conn, c, app := connectedCodec(t)
	sock.Feed(framesOf(t, []byte("last")))
	d.FireFd(sock.FD, api.InterestRead)

	conn.Shutdown()
	d.Pump()

	require.Len(t, app.Data(), 1)
	assert.Equal(t, "last", string(app.Data()[0].Data))
	require.Equal(t,
		[]api.Kind{api.KindInputClosed, api.KindClosed, api.KindShutdownComplete},
		app.Kinds())
	closed := app.Events()[1]
	assert.False(t, closed.Failed)
	assert.Equal(t, api.ReasonShutdown, closed.Reason)
	assert.True(t, c.Closed())
	assert.Zero(t, d.Len())
}

func TestDecoderOverflowClosesConnection(t *testing.T) {
	d, sock, conn, _, app := connectedCodec(t, protocol.WithQueueCapacity(2))
	stream := framesOf(t, []byte("ab"), []byte("cde"))
	sock.Feed(stream[:4])
	sock.Feed(stream[4:6])
	sock.Feed(stream[6:])
	for i := 0; i < 3; i++ {
		d.FireFd(sock.FD, api.InterestRead)
	}
	d.Pump()

	assert.Equal(t, tcp.StateReady, conn.State())
	assert.True(t, sock.Aborted)
	require.Len(t, app.Data(), 1)
	assert.Equal(t, "ab", string(app.Data()[0].Data))
	require.Equal(t, []api.Kind{api.KindInputClosed, api.KindClosed}, app.Kinds())
	closed := app.Events()[1]
	assert.True(t, closed.Failed)
	assert.Equal(t, api.ReasonIO, closed.Reason)
}
