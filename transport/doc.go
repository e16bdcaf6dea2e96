// Package transport
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Non-blocking TCP socket primitives used by the reactor-driven engines in
// transport/tcp. Every call returns immediately: operations that would
// block report ErrWouldBlock and are retried on the next readiness event.
// Platform code is separated by build tags; only Linux has a native
// implementation.
package transport
