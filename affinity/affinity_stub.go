//go:build !linux
// +build !linux

// File: affinity/affinity_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub implementation for unsupported platforms.

package affinity

import "errors"

// ErrInvalidCPU is returned for negative CPU indexes.
var ErrInvalidCPU = errors.New("affinity: invalid cpu")

func setAffinityPlatform(cpuID int) error {
	return errors.New("affinity: not supported on this platform")
}
