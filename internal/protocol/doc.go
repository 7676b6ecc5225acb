// Package protocol owns the emulator trace wire contract.
//
// Ownership boundary:
// - message type tags and protocol version constants
// - frame/header primitives (package frame)
// - fixed-offset payload codecs (package message)
//
// Every message is a 5-byte header (type tag, little-endian u32 length)
// followed by exactly length payload bytes. There is no skip mechanism for
// unknown tags; an unrecognized tag ends the session.
package protocol
