// Package fake
// Author: momentics <momentics@gmail.com>
//
// Fake implementations for testing and development.
// Provides predictable, controllable behavior for the demux, sockets and
// sinks so engines can be driven step by step without a kernel poller.
package fake
