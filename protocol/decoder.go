// File: protocol/decoder.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import (
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/momentics/hioload-tcp/api"
	"github.com/momentics/hioload-tcp/control"
	"github.com/momentics/hioload-tcp/pipeline"
	"github.com/momentics/hioload-tcp/queue"
)

// Decoder is the reverse sink of a connection. It turns KindReceive chunks
// into one KindReceive per frame and passes connection notifications on
// in the order the connection emitted them.
type Decoder struct {
	id      string
	log     *zap.Logger
	metrics *control.Metrics
	demux   api.Demux
	closed  atomic.Bool

	data   *queue.Bounded
	events *queue.Bounded
	dataH  api.Handle
	eventH api.Handle
	errH   api.Handle

	reasm   *Reassembler
	reverse *pipeline.Reverse
	encoder *Encoder
}

var _ api.PressureSink = (*Decoder)(nil)

func newDecoder(d api.Demux, cfg config) (*Decoder, error) {
	dec := &Decoder{
		id:      uuid.NewString(),
		metrics: cfg.metrics,
		demux:   d,
		data:    queue.NewBounded(cfg.queueCap),
		events:  queue.NewBounded(cfg.queueCap),
		reasm:   NewReassembler(),
	}
	dec.log = cfg.log.Named("protocol.decoder").With(zap.String("decoder", dec.id))
	dec.reverse = pipeline.NewReverse("protocol.decoder", cfg.sideCap, dec.log, cfg.metrics)

	var err error
	if dec.errH, err = d.RegisterErrorSource(api.HandlerFunc(dec.onDemuxError)); err != nil {
		return nil, errors.Wrap(err, "register error source")
	}
	if dec.eventH, err = d.RegisterQueue(dec.events, api.HandlerFunc(dec.onEvents)); err != nil {
		_ = dec.release()
		return nil, errors.Wrap(err, "register event queue")
	}
	if dec.dataH, err = d.RegisterQueue(dec.data, api.HandlerFunc(dec.onData)); err != nil {
		_ = dec.release()
		return nil, errors.Wrap(err, "register data queue")
	}
	err = multierr.Combine(
		d.SetInterest(dec.eventH, api.InterestQueue, 0),
		d.SetInterest(dec.dataH, api.InterestQueue, 0),
	)
	if err != nil {
		_ = dec.release()
		return nil, errors.Wrap(err, "enable queues")
	}
	return dec, nil
}

// Offer accepts a data-path message from the connection.
func (dec *Decoder) Offer(m *api.Message) bool {
	if dec.closed.Load() {
		return false
	}
	return dec.data.Offer(m)
}

// OfferEvent accepts a notification from the connection or an attach
// request for the codec's reverse path.
func (dec *Decoder) OfferEvent(m *api.Message) bool {
	if dec.closed.Load() {
		return false
	}
	return dec.events.Offer(m)
}

// Pressure reports the inbound chunk queue fill ratio.
func (dec *Decoder) Pressure() float64 { return dec.data.Pressure() }

// EventPressure reports the inbound notification queue fill ratio.
func (dec *Decoder) EventPressure() float64 { return dec.events.Pressure() }

// Closed reports whether the decoder has released its resources.
func (dec *Decoder) Closed() bool { return dec.closed.Load() }

func (dec *Decoder) onData(_ api.Handle, _ api.Interest, _ any) {
	dec.drainData()
}

func (dec *Decoder) drainData() {
	for !dec.closed.Load() {
		m, ok := dec.data.Poll()
		if !ok {
			return
		}
		if m.Kind != api.KindReceive {
			dec.reverse.Data(m)
			continue
		}
		dec.reasm.Feed(m.Data, dec.emit)
	}
}

func (dec *Decoder) emit(payload []byte) {
	dec.metrics.IncDecoded()
	dec.reverse.Data(&api.Message{Kind: api.KindReceive, Data: payload})
}

func (dec *Decoder) onEvents(_ api.Handle, _ api.Interest, _ any) {
	for !dec.closed.Load() {
		m, ok := dec.events.Poll()
		if !ok {
			return
		}
		dec.handle(m)
	}
}

func (dec *Decoder) handle(m *api.Message) {
	switch m.Kind {
	case api.KindAttach:
		dec.reverse.Attach(m.Sink, m)
	case api.KindDetach:
		dec.reverse.Detach(m)
	case api.KindAttached, api.KindDetached:
		// Confirmations of our own attachment to the connection stay here.
		if m.Sink == api.Sink(dec) {
			dec.log.Debug("connection link confirmed", zap.Stringer("message", m))
			return
		}
		dec.reverse.Event(m)
	case api.KindInputClosed, api.KindClosed:
		// Deliver the frames that arrived before the close first.
		dec.drainData()
		if n := dec.reasm.Buffered(); n > 0 {
			dec.log.Debug("discarding partial frame", zap.Int("bytes", n))
		}
		dec.reasm.Reset()
		dec.reverse.Event(m)
	case api.KindShutdownComplete:
		dec.drainData()
		dec.shutdown(m)
	default:
		dec.reverse.Event(m)
	}
}

// shutdown shuts the paired encoder, releases the decoder's handles and
// forwards the notification.
func (dec *Decoder) shutdown(m *api.Message) {
	if dec.encoder != nil {
		dec.encoder.shutdown()
	}
	if err := dec.release(); err != nil {
		dec.log.Warn("release registrations", zap.Error(err))
	}
	dec.closed.Store(true)
	dec.data.Clear()
	dec.events.Clear()
	dec.log.Info("codec shut down")
	dec.reverse.Event(m)
}

func (dec *Decoder) release() error {
	var err error
	for _, h := range []*api.Handle{&dec.dataH, &dec.eventH, &dec.errH} {
		if *h != 0 {
			err = multierr.Append(err, dec.demux.Deregister(*h, 0))
			*h = 0
		}
	}
	return err
}

func (dec *Decoder) onDemuxError(_ api.Handle, _ api.Interest, aux any) {
	err, _ := aux.(error)
	dec.metrics.IncError("demux", string(api.ReasonOf(err)))
	dec.log.Warn("demultiplexer error", zap.Error(err))
}
