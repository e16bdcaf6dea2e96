// Package control
// Author: momentics <momentics@gmail.com>
//
// Configuration, runtime metrics and debug introspection for hioload-tcp.
//
// Provides:
//   - Config: TOML-backed settings for reactors, engines and queues
//   - ConfigStore: the live configuration snapshot with reload listeners
//   - Metrics: Prometheus counters shared by the engines (nil-safe)
//   - DebugProbes: named state probes registered by engines
package control
