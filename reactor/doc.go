// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the event demultiplexer that drives the TCP
// engines: a single goroutine per Reactor waits on epoll (Linux), wakes on
// queue offers through an eventfd, and delivers ready events to the
// registered api.Handler one at a time. Group runs several reactors under
// one errgroup.
package reactor
