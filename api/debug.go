// Package api
// Author: momentics
//
// Debug introspection contract.

package api

// Debug exposes runtime introspection.
type Debug interface {
	// DumpState emits a snapshot of registered probes.
	DumpState() map[string]any

	// RegisterProbe registers a named probe, replacing any previous one.
	RegisterProbe(name string, fn func() any)
}
