// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package tcp implements the reactor-driven TCP engines: Conn, a
// non-blocking connection with buffered partial writes and a reusable
// client lifecycle, and Listener, an accept loop that turns every accepted
// socket into a server-mode Conn.
//
// Engines are controlled by posting request envelopes into their queues
// (Offer for data, OfferEvent for control) from any goroutine. All state
// changes happen on the reactor goroutine that owns the engine, and every
// outcome is reported as a notification on the engine's reverse path.
package tcp
