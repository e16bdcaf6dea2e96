// Package queue
// Author: momentics <momentics@gmail.com>
//
// Bounded message queues feeding the engines: a FIFO queue for the data
// path and a priority queue for out-of-band control traffic. Both accept
// concurrent Offer calls from any goroutine against a single consumer and
// expose a fill ratio ("pressure") as advisory telemetry. Neither throttles.
package queue
