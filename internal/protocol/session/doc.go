// Package session owns transport/session reliability settings shared by the
// trace link client and the live session manager.
//
// Ownership boundary:
// - connect/handshake/read/write timeouts
// - heartbeat and keep-alive cadence
// - bounded teardown waits
// - retry/backoff primitives for caller-driven reconnects
package session
