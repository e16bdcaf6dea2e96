// File: protocol/codec.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import (
	"github.com/pkg/errors"

	"github.com/momentics/hioload-tcp/api"
)

// Codec pairs an Encoder and a Decoder in front of one connection engine.
// Requests posted to the codec are framed and forwarded to the connection;
// its reverse path delivers one KindReceive per frame plus the
// connection's notifications.
type Codec struct {
	enc *Encoder
	dec *Decoder
}

var _ api.PressureSink = (*Codec)(nil)

// NewCodec registers the decoder on d and attaches it as the reverse sink
// of conn.
func NewCodec(d api.Demux, conn api.Sink, opts ...Option) (*Codec, error) {
	if d == nil || conn == nil {
		return nil, errors.Wrap(api.ErrInvalidArgument, "codec needs a demux and a connection")
	}
	cfg := newConfig(opts)
	dec, err := newDecoder(d, cfg)
	if err != nil {
		return nil, err
	}
	enc := &Encoder{
		next:    conn,
		decoder: dec,
		log:     cfg.log.Named("protocol.encoder"),
		metrics: cfg.metrics,
	}
	dec.encoder = enc

	if !conn.OfferEvent(&api.Message{Kind: api.KindAttach, Sink: dec, Priority: api.PriorityControl}) {
		_ = dec.release()
		return nil, errors.Wrap(api.ErrQueueFull, "attach decoder")
	}
	return &Codec{enc: enc, dec: dec}, nil
}

// Encoder returns the outbound half.
func (c *Codec) Encoder() *Encoder { return c.enc }

// Decoder returns the inbound half.
func (c *Codec) Decoder() *Decoder { return c.dec }

// Offer frames and forwards a data-path request.
func (c *Codec) Offer(m *api.Message) bool { return c.enc.Offer(m) }

// OfferEvent forwards a control request.
func (c *Codec) OfferEvent(m *api.Message) bool { return c.enc.OfferEvent(m) }

// Pressure reports the connection's data pressure.
func (c *Codec) Pressure() float64 { return c.enc.Pressure() }

// EventPressure reports the connection's control pressure.
func (c *Codec) EventPressure() float64 { return c.enc.EventPressure() }

// Send frames payload and queues it on the connection.
func (c *Codec) Send(payload []byte) bool { return c.enc.Offer(api.NewSend(payload)) }

// Attach requests that sink receive decoded frames and notifications.
func (c *Codec) Attach(sink api.Sink) bool {
	return c.enc.OfferEvent(&api.Message{Kind: api.KindAttach, Sink: sink, Priority: api.PriorityControl})
}

// Detach requests that the current sink be released.
func (c *Codec) Detach() bool {
	return c.enc.OfferEvent(&api.Message{Kind: api.KindDetach, Priority: api.PriorityControl})
}

// Close requests a graceful close of the connection.
func (c *Codec) Close() bool {
	return c.enc.OfferEvent(&api.Message{Kind: api.KindClose, Priority: api.PriorityControl})
}

// Shutdown requests shutdown of the connection; the codec follows once the
// connection confirms.
func (c *Codec) Shutdown() bool {
	return c.enc.OfferEvent(&api.Message{Kind: api.KindShutdown, Priority: api.PriorityShutdown})
}

// Closed reports whether both halves have shut down.
func (c *Codec) Closed() bool { return c.enc.Closed() && c.dec.Closed() }
