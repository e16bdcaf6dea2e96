// File: transport/tcp/options.go
// Package tcp defines functional options for the engines.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package tcp

import (
	"go.uber.org/zap"

	"github.com/momentics/hioload-tcp/api"
	"github.com/momentics/hioload-tcp/control"
	"github.com/momentics/hioload-tcp/pipeline"
	"github.com/momentics/hioload-tcp/pool"
	"github.com/momentics/hioload-tcp/queue"
	"github.com/momentics/hioload-tcp/transport"
)

// Default engine tunables.
const (
	DefaultReadBufferSize  = 4096
	DefaultWriteBufferSize = 8192
)

type config struct {
	readBufSize  int
	writeBufSize int
	queueCap     int
	sideCap      int
	backlog      int

	log     *zap.Logger
	metrics *control.Metrics
	probes  *control.DebugProbes
	buffers *pool.BytePool

	dial          transport.DialFunc
	listen        transport.ListenFunc
	pendingAccept bool
	connOpts      []Option
	acceptDemux   func() api.Demux
}

// Option customizes an engine.
type Option func(*config)

func newConfig(opts []Option) config {
	cfg := config{
		readBufSize:  DefaultReadBufferSize,
		writeBufSize: DefaultWriteBufferSize,
		queueCap:     queue.DefaultCapacity,
		sideCap:      pipeline.DefaultSideQueueCapacity,
		backlog:      transport.DefaultBacklog,
		log:          zap.NewNop(),
		buffers:      pool.Default(),
		dial:         transport.Dial,
		listen:       transport.Listen,
	}
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}

// WithReadBufferSize sets the per-read buffer size.
func WithReadBufferSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.readBufSize = n
		}
	}
}

// WithWriteBufferSize sets the fixed write buffer size.
func WithWriteBufferSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.writeBufSize = n
		}
	}
}

// WithQueueCapacity bounds the inbound data and event queues.
func WithQueueCapacity(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.queueCap = n
		}
	}
}

// WithSideQueueCapacity bounds the pre-attach side-queues. Zero disables
// them: notifications emitted while no sink is attached are dropped.
func WithSideQueueCapacity(n int) Option {
	return func(c *config) {
		if n >= 0 {
			c.sideCap = n
		}
	}
}

// WithBacklog sets the listen backlog.
func WithBacklog(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.backlog = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.log = l
		}
	}
}

// WithMetrics enables metric collection.
func WithMetrics(m *control.Metrics) Option {
	return func(c *config) { c.metrics = m }
}

// WithProbes registers a state probe per engine.
func WithProbes(p *control.DebugProbes) Option {
	return func(c *config) { c.probes = p }
}

// WithBufferPool sets the pool read and write buffers are taken from. They
// return to it when the connection shuts down.
func WithBufferPool(p *pool.BytePool) Option {
	return func(c *config) {
		if p != nil {
			c.buffers = p
		}
	}
}

// WithDialer replaces the socket dialer of client connections.
func WithDialer(d transport.DialFunc) Option {
	return func(c *config) {
		if d != nil {
			c.dial = d
		}
	}
}

// WithListenFunc replaces the socket binder of listeners.
func WithListenFunc(l transport.ListenFunc) Option {
	return func(c *config) {
		if l != nil {
			c.listen = l
		}
	}
}

// WithPendingAccept starts a server connection in CONNECTING, waiting for
// connect readiness before the first read.
func WithPendingAccept() Option {
	return func(c *config) { c.pendingAccept = true }
}

// WithConnOptions sets the options a listener applies to accepted connections,
// after its own logger, metrics and probes.
func WithConnOptions(opts ...Option) Option {
	return func(c *config) { c.connOpts = append(c.connOpts, opts...) }
}

// WithAcceptDemux makes a listener register each accepted connection on
// the demux next returns instead of its own, e.g. reactor.Group.Next.
func WithAcceptDemux(next func() api.Demux) Option {
	return func(c *config) { c.acceptDemux = next }
}

// FromConfig applies the tunables of cfg.
func FromConfig(cfg control.Config) Option {
	return func(c *config) {
		for _, o := range []Option{
			WithReadBufferSize(cfg.ReadBufferSize),
			WithWriteBufferSize(cfg.WriteBufferSize),
			WithQueueCapacity(cfg.QueueCapacity),
			WithSideQueueCapacity(cfg.SideQueueCapacity),
			WithBacklog(cfg.Backlog),
		} {
			o(c)
		}
	}
}
