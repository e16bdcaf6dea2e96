// File: protocol/frame.go
// Package protocol implements the frame header encoding.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

const (
	// HeaderSize is the length of the frame header.
	HeaderSize = 2
	// MaxPayload is the largest payload a header can describe.
	MaxPayload = 1 << 16
)

// ErrPayloadSize is returned for payloads outside 1..MaxPayload bytes.
var ErrPayloadSize = errors.New("protocol: payload size out of range")

func checkSize(n int) error {
	if n < 1 || n > MaxPayload {
		return errors.Wrapf(ErrPayloadSize, "%d bytes", n)
	}
	return nil
}

// Encode writes the frame for payload into dst and returns its length.
// dst must hold at least len(payload)+HeaderSize bytes.
func Encode(dst, payload []byte) (int, error) {
	if err := checkSize(len(payload)); err != nil {
		return 0, err
	}
	n := len(payload) + HeaderSize
	if len(dst) < n {
		return 0, io.ErrShortBuffer
	}
	binary.BigEndian.PutUint16(dst, uint16(len(payload)-1))
	copy(dst[HeaderSize:], payload)
	return n, nil
}

// AppendFrame appends the frame for payload to dst.
func AppendFrame(dst, payload []byte) ([]byte, error) {
	if err := checkSize(len(payload)); err != nil {
		return dst, err
	}
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(payload)-1))
	return append(dst, payload...), nil
}

// SplitFrame returns the first complete frame's payload and the bytes it
// occupies in raw. It returns (nil, 0) while the frame is incomplete. The
// payload aliases raw.
func SplitFrame(raw []byte) ([]byte, int) {
	if len(raw) < HeaderSize {
		return nil, 0
	}
	total := HeaderSize + int(binary.BigEndian.Uint16(raw)) + 1
	if len(raw) < total {
		return nil, 0
	}
	return raw[HeaderSize:total], total
}

// ScanFrames is a bufio.SplitFunc yielding one payload per frame. The
// scanner buffer must hold MaxPayload+HeaderSize bytes for full-size frames.
func ScanFrames(data []byte, atEOF bool) (int, []byte, error) {
	payload, n := SplitFrame(data)
	if n > 0 {
		return n, payload, nil
	}
	if atEOF && len(data) > 0 {
		return 0, nil, io.ErrUnexpectedEOF
	}
	return 0, nil, nil
}

var _ bufio.SplitFunc = ScanFrames

// ReadFrame reads one frame from a blocking stream.
func ReadFrame(r io.Reader) ([]byte, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	payload := make([]byte, int(binary.BigEndian.Uint16(hdr[:]))+1)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, errors.Wrap(err, "read payload")
	}
	return payload, nil
}

// WriteFrame writes payload as one frame to a blocking stream.
func WriteFrame(w io.Writer, payload []byte) error {
	frame, err := AppendFrame(make([]byte, 0, len(payload)+HeaderSize), payload)
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}
