package message

import (
	"fmt"

	"github.com/danmuck/snestrace/internal/protocol"
)

const (
	HandshakeLen    = 268
	ROMNameLen      = 256
	HandshakeAckLen = 69
	ClientNameLen   = 64
)

// Handshake identifies the protocol version and the ROM image loaded by the
// sending side.
type Handshake struct {
	VersionMajor uint16
	VersionMinor uint16
	ROMChecksum  uint32
	ROMSize      uint32
	ROMName      string
}

func (Handshake) Type() protocol.MessageType { return protocol.MsgHandshake }

// CheckVersion rejects any major version other than the one this build speaks.
func (h Handshake) CheckVersion() error {
	if h.VersionMajor != protocol.VersionMajor {
		return fmt.Errorf("%w: remote=%d.%d local=%d.%d",
			protocol.ErrUnsupportedVersion, h.VersionMajor, h.VersionMinor, protocol.VersionMajor, protocol.VersionMinor)
	}
	return nil
}

func DecodeHandshake(b []byte) (Handshake, error) {
	if err := requireLen(protocol.MsgHandshake, b, HandshakeLen); err != nil {
		return Handshake{}, err
	}
	return Handshake{
		VersionMajor: u16(b, 0),
		VersionMinor: u16(b, 2),
		ROMChecksum:  u32(b, 4),
		ROMSize:      u32(b, 8),
		ROMName:      fixedString(b[12 : 12+ROMNameLen]),
	}, nil
}

func (h Handshake) Encode() []byte {
	b := make([]byte, HandshakeLen)
	putU16(b, 0, h.VersionMajor)
	putU16(b, 2, h.VersionMinor)
	putU32(b, 4, h.ROMChecksum)
	putU32(b, 8, h.ROMSize)
	putFixedString(b[12:12+ROMNameLen], h.ROMName)
	return b
}

// HandshakeAck is the client's answer to a valid remote handshake.
type HandshakeAck struct {
	VersionMajor uint16
	VersionMinor uint16
	Accepted     bool
	ClientName   string
}

func (HandshakeAck) Type() protocol.MessageType { return protocol.MsgHandshakeAck }

func DecodeHandshakeAck(b []byte) (HandshakeAck, error) {
	if err := requireLen(protocol.MsgHandshakeAck, b, HandshakeAckLen); err != nil {
		return HandshakeAck{}, err
	}
	return HandshakeAck{
		VersionMajor: u16(b, 0),
		VersionMinor: u16(b, 2),
		Accepted:     b[4] != 0,
		ClientName:   fixedString(b[5 : 5+ClientNameLen]),
	}, nil
}

func (a HandshakeAck) Encode() []byte {
	b := make([]byte, HandshakeAckLen)
	putU16(b, 0, a.VersionMajor)
	putU16(b, 2, a.VersionMinor)
	b[4] = boolByte(a.Accepted)
	putFixedString(b[5:5+ClientNameLen], a.ClientName)
	return b
}
