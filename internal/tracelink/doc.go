// Package tracelink owns the client side of one emulator trace connection.
//
// Ownership boundary:
// - dial and protocol handshake
// - the single background receive loop per connection
// - synchronous, in-order fan-out of decoded messages to subscribers
// - outbound control messages (ack, stream config, heartbeat, breakpoints, labels)
//
// State flow:
// - Disconnected -> Connecting -> Connected -> HandshakeComplete
// - Error is reachable from any non-terminal state on I/O or protocol failure.
//
// Subscribers run on the receive loop goroutine. A slow subscriber stalls
// the loop; there is no buffering between the socket and subscribers.
package tracelink
