// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Prometheus counters shared by the engines. A nil *Metrics is valid and
// records nothing, so engines can call it unconditionally.

package control

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hioload_tcp"

// Metrics groups the engine counters.
type Metrics struct {
	BytesRead     prometheus.Counter
	BytesWritten  prometheus.Counter
	FramesEncoded prometheus.Counter
	FramesDecoded prometheus.Counter
	Accepted      prometheus.Counter
	Connections   prometheus.Gauge
	Errors        *prometheus.CounterVec
	Dropped       *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg when reg is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BytesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "bytes_read_total",
			Help: "Bytes read from connection sockets.",
		}),
		BytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "bytes_written_total",
			Help: "Bytes written to connection sockets.",
		}),
		FramesEncoded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "frames_encoded_total",
			Help: "Payloads framed by encoders.",
		}),
		FramesDecoded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "frames_decoded_total",
			Help: "Payloads reassembled by decoders.",
		}),
		Accepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "accepted_total",
			Help: "Connections accepted by listeners.",
		}),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "connections",
			Help: "Connections currently in the CONNECTED state.",
		}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "errors_total",
			Help: "Error notifications emitted, by operation and reason.",
		}, []string{"op", "reason"}),
		Dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "dropped_total",
			Help: "Reverse-direction messages dropped, by component and cause.",
		}, []string{"component", "cause"}),
	}
	if reg != nil {
		reg.MustRegister(m.BytesRead, m.BytesWritten, m.FramesEncoded, m.FramesDecoded,
			m.Accepted, m.Connections, m.Errors, m.Dropped)
	}
	return m
}

// AddRead counts n bytes read.
func (m *Metrics) AddRead(n int) {
	if m != nil && n > 0 {
		m.BytesRead.Add(float64(n))
	}
}

// AddWritten counts n bytes written.
func (m *Metrics) AddWritten(n int) {
	if m != nil && n > 0 {
		m.BytesWritten.Add(float64(n))
	}
}

// IncEncoded counts one framed payload.
func (m *Metrics) IncEncoded() {
	if m != nil {
		m.FramesEncoded.Inc()
	}
}

// IncDecoded counts one reassembled payload.
func (m *Metrics) IncDecoded() {
	if m != nil {
		m.FramesDecoded.Inc()
	}
}

// IncAccepted counts one accepted connection.
func (m *Metrics) IncAccepted() {
	if m != nil {
		m.Accepted.Inc()
	}
}

// ConnOpened tracks a connection entering CONNECTED.
func (m *Metrics) ConnOpened() {
	if m != nil {
		m.Connections.Inc()
	}
}

// ConnClosed tracks a connection leaving CONNECTED.
func (m *Metrics) ConnClosed() {
	if m != nil {
		m.Connections.Dec()
	}
}

// IncError counts an error notification.
func (m *Metrics) IncError(op, reason string) {
	if m != nil {
		m.Errors.WithLabelValues(op, reason).Inc()
	}
}

// IncDropped counts a dropped reverse-direction message.
func (m *Metrics) IncDropped(component, cause string) {
	if m != nil {
		m.Dropped.WithLabelValues(component, cause).Inc()
	}
}
