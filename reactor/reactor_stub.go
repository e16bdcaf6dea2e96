//go:build !linux
// +build !linux

// File: reactor/reactor_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub implementation for unsupported platforms.

package reactor

import "errors"

// ErrUnsupported is returned by New on platforms without a poller.
var ErrUnsupported = errors.New("reactor: this platform is not supported")

func newPoller() (poller, error) {
	return nil, ErrUnsupported
}
