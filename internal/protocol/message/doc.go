// Package message holds the fixed-offset payload codecs for every protocol
// message type.
//
// All multi-byte fields are little-endian. Addresses travel in 32-bit fields
// but only the low 24 bits are meaningful; decoders mask them. Decoders reject
// payloads shorter than the type's minimum size and never read out of bounds.
package message
