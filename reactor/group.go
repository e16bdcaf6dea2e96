// File: reactor/group.go
// Author: momentics <momentics@gmail.com>
//
// A fixed pool of reactors sharing one lifecycle. Engines are spread over
// the pool round-robin; each engine stays on the reactor it was given.

package reactor

import (
	"context"
	"runtime"
	"sync/atomic"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// Group runs several reactors together.
type Group struct {
	reactors []*Reactor
	next     atomic.Uint64
}

// NewGroup creates n reactors (at least one) with the same options.
func NewGroup(n int, opts ...Option) (*Group, error) {
	if n <= 0 {
		n = 1
	}
	g := &Group{reactors: make([]*Reactor, 0, n)}
	for i := 0; i < n; i++ {
		r, err := New(opts...)
		if err != nil {
			return nil, multierr.Append(err, g.Close())
		}
		g.reactors = append(g.reactors, r)
	}
	return g, nil
}

// PinCPUs pins reactor i to CPU i modulo the CPU count. Call before Run.
func (g *Group) PinCPUs() {
	ncpu := runtime.NumCPU()
	for i, r := range g.reactors {
		r.cpu = i % ncpu
	}
}

// Len returns the number of reactors.
func (g *Group) Len() int { return len(g.reactors) }

// Reactor returns reactor i.
func (g *Group) Reactor(i int) *Reactor { return g.reactors[i] }

// Next returns reactors in round-robin order.
func (g *Group) Next() *Reactor {
	i := g.next.Add(1) - 1
	return g.reactors[i%uint64(len(g.reactors))]
}

// Run runs every reactor until ctx is done or one of them fails.
func (g *Group) Run(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)
	for _, r := range g.reactors {
		r := r
		eg.Go(func() error { return r.Run(ctx) })
	}
	return eg.Wait()
}

// Close closes every reactor.
func (g *Group) Close() error {
	var err error
	for _, r := range g.reactors {
		err = multierr.Append(err, r.Close())
	}
	return err
}
