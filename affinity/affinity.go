// File: affinity/affinity.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral API for CPU affinity. Reactors use it to keep their
// loop goroutine on one core.

package affinity

// SetAffinity pins the calling OS thread to cpuID. The caller must hold
// the thread with runtime.LockOSThread for the pinning to be meaningful.
func SetAffinity(cpuID int) error {
	if cpuID < 0 {
		return ErrInvalidCPU
	}
	return setAffinityPlatform(cpuID)
}
