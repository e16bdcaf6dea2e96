// Package pipeline
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The attachment protocol shared by every producer in a pipeline. A
// producer keeps its reverse-direction traffic in two side-queues until a
// consumer attaches, flushes them in arrival order (data first, then
// events) on attach, and delivers directly afterwards. Requests may name a
// NotifyRef that receives the response to that one request.
//
// Reverse is not safe for concurrent use; it is owned by the engine whose
// reactor goroutine drives it.
package pipeline
