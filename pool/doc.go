// Package pool
// Author: momentics <momentics@gmail.com>
//
// Size-classed byte buffer pooling for per-connection read and write
// buffers. Buffers come back zero-length-safe: callers always receive a
// slice of exactly the requested length.
package pool
