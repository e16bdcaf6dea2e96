// File: protocol/reassembler.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import "encoding/binary"

// Reassembler rebuilds frames from chunks of arbitrary size and alignment.
// The header and the partial payload are tracked separately.
type Reassembler struct {
	hdr  [HeaderSize]byte
	hlen int
	// need is -1 until a full header is read, then the payload bytes still missing.
	need int
	buf  []byte
}

// NewReassembler returns a reassembler waiting for a header.
func NewReassembler() *Reassembler {
	return &Reassembler{need: -1}
}

// Feed consumes chunk and calls emit once per completed payload, in order.
// Emitted slices are owned by the callee.
func (r *Reassembler) Feed(chunk []byte, emit func([]byte)) {
	for len(chunk) > 0 {
		if r.need < 0 {
			n := copy(r.hdr[r.hlen:], chunk)
			r.hlen += n
			chunk = chunk[n:]
			if r.hlen < HeaderSize {
				return
			}
			r.hlen = 0
			r.need = int(binary.BigEndian.Uint16(r.hdr[:])) + 1
			continue
		}

		// Fast path: the whole payload is here and nothing is buffered.
		if r.buf == nil && len(chunk) >= r.need {
			p := make([]byte, r.need)
			copy(p, chunk)
			chunk = chunk[r.need:]
			r.need = -1
			emit(p)
			continue
		}

		if r.buf == nil {
			r.buf = make([]byte, 0, r.need)
		}
		take := min(r.need, len(chunk))
		r.buf = append(r.buf, chunk[:take]...)
		chunk = chunk[take:]
		r.need -= take
		if r.need == 0 {
			p := r.buf
			r.buf = nil
			r.need = -1
			emit(p)
		}
	}
}

// Buffered returns the number of bytes held for an incomplete frame.
func (r *Reassembler) Buffered() int {
	return r.hlen + len(r.buf)
}

// Reset discards any partial frame.
func (r *Reassembler) Reset() {
	r.hlen = 0
	r.need = -1
	r.buf = nil
}
