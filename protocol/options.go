// File: protocol/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import (
	"go.uber.org/zap"

	"github.com/momentics/hioload-tcp/control"
	"github.com/momentics/hioload-tcp/pipeline"
	"github.com/momentics/hioload-tcp/queue"
)

type config struct {
	log      *zap.Logger
	metrics  *control.Metrics
	queueCap int
	sideCap  int
}

// Option customizes a Codec.
type Option func(*config)

func newConfig(opts []Option) config {
	cfg := config{
		log:      zap.NewNop(),
		queueCap: queue.DefaultCapacity,
		sideCap:  pipeline.DefaultSideQueueCapacity,
	}
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.log = l
		}
	}
}

// WithMetrics counts encoded and decoded frames.
func WithMetrics(m *control.Metrics) Option {
	return func(c *config) { c.metrics = m }
}

// WithQueueCapacity bounds the decoder's inbound queues.
func WithQueueCapacity(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.queueCap = n
		}
	}
}

// WithSideQueueCapacity bounds the decoder's pre-attach side-queues; zero
// disables them.
func WithSideQueueCapacity(n int) Option {
	return func(c *config) {
		if n >= 0 {
			c.sideCap = n
		}
	}
}
