// File: pool/bytepool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import (
	"math/bits"
	"sync"
	"sync/atomic"
)

const (
	minClassShift = 9  // 512 B
	maxClassShift = 20 // 1 MiB
	numClasses    = maxClassShift - minClassShift + 1
)

// Stats is a snapshot of pool counters.
type Stats struct {
	Allocated uint64 // buffers created because a class was empty
	Reused    uint64 // Get calls served from a class
	Returned  uint64 // buffers accepted by Put
	Oversized uint64 // requests above the largest class, never pooled
}

// BytePool hands out byte slices from power-of-two size classes.
type BytePool struct {
	classes [numClasses]sync.Pool

	allocated atomic.Uint64
	reused    atomic.Uint64
	returned  atomic.Uint64
	oversized atomic.Uint64
}

// NewBytePool returns an empty pool.
func NewBytePool() *BytePool { return &BytePool{} }

// classOf returns the class index serving n bytes, or -1 when n is too big.
func classOf(n int) int {
	if n <= 1<<minClassShift {
		return 0
	}
	shift := bits.Len(uint(n - 1))
	if shift > maxClassShift {
		return -1
	}
	return shift - minClassShift
}

// Get returns a slice of length n. Its capacity is the class size.
func (p *BytePool) Get(n int) []byte {
	if n <= 0 {
		return nil
	}
	c := classOf(n)
	if c < 0 {
		p.oversized.Add(1)
		return make([]byte, n)
	}
	if v := p.classes[c].Get(); v != nil {
		p.reused.Add(1)
		return (*v.(*[]byte))[:n]
	}
	p.allocated.Add(1)
	return make([]byte, n, 1<<(c+minClassShift))
}

// Put recycles buf. Slices whose capacity is not a class size are dropped.
func (p *BytePool) Put(buf []byte) {
	c := cap(buf)
	if c < 1<<minClassShift || c > 1<<maxClassShift || c&(c-1) != 0 {
		return
	}
	buf = buf[:c]
	p.returned.Add(1)
	p.classes[classOf(c)].Put(&buf)
}

// Stats returns the current counters.
func (p *BytePool) Stats() Stats {
	return Stats{
		Allocated: p.allocated.Load(),
		Reused:    p.reused.Load(),
		Returned:  p.returned.Load(),
		Oversized: p.oversized.Load(),
	}
}
