// File: protocol/encoder.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/momentics/hioload-tcp/api"
	"github.com/momentics/hioload-tcp/control"
)

// Encoder frames KindSend payloads in place and forwards them to the
// connection. It runs on the caller's goroutine and is safe for
// concurrent use.
type Encoder struct {
	next    api.Sink
	decoder *Decoder
	closed  atomic.Bool

	log     *zap.Logger
	metrics *control.Metrics
}

var _ api.PressureSink = (*Encoder)(nil)

// Offer frames a KindSend payload and forwards the same envelope. It
// returns false for out-of-range payloads, after shutdown, or when the
// connection rejects the frame; a rejected envelope keeps its payload.
func (e *Encoder) Offer(m *api.Message) bool {
	if m == nil || e.closed.Load() {
		return false
	}
	if m.Kind != api.KindSend {
		return e.next.Offer(m)
	}
	payload := m.Data
	frame, err := AppendFrame(make([]byte, 0, len(payload)+HeaderSize), payload)
	if err != nil {
		e.log.Warn("payload rejected", zap.Int("size", len(payload)), zap.Error(err))
		e.metrics.IncDropped("protocol.encoder", "payload_size")
		return false
	}
	m.Data = frame
	if !e.next.Offer(m) {
		m.Data = payload
		return false
	}
	e.metrics.IncEncoded()
	return true
}

// OfferEvent forwards control requests to the connection. Attach and
// detach address the codec's own reverse path and go to the decoder.
func (e *Encoder) OfferEvent(m *api.Message) bool {
	if m == nil || e.closed.Load() {
		return false
	}
	switch m.Kind {
	case api.KindAttach, api.KindDetach:
		return e.decoder.OfferEvent(m)
	}
	return e.next.OfferEvent(m)
}

// Pressure reports the connection's data pressure.
func (e *Encoder) Pressure() float64 {
	if p, ok := e.next.(api.PressureSink); ok {
		return p.Pressure()
	}
	return 0
}

// EventPressure reports the connection's control pressure.
func (e *Encoder) EventPressure() float64 {
	if p, ok := e.next.(api.PressureSink); ok {
		return p.EventPressure()
	}
	return 0
}

// Closed reports whether the encoder has been shut down.
func (e *Encoder) Closed() bool { return e.closed.Load() }

func (e *Encoder) shutdown() {
	if e.closed.CompareAndSwap(false, true) {
		e.log.Debug("encoder shut down")
	}
}
