// control/probes.go
// Author: momentics <momentics@gmail.com>
//
// Process-level probes.

package control

import (
	"runtime"
)

// RegisterPlatformProbes adds process-wide runtime probes.
func RegisterPlatformProbes(dp *DebugProbes) {
	dp.RegisterProbe("platform.cpus", func() any {
		return runtime.NumCPU()
	})
	dp.RegisterProbe("platform.goroutines", func() any {
		return runtime.NumGoroutine()
	})
}
