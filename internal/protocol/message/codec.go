package message

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/danmuck/snestrace/internal/protocol"
)

// AddressMask keeps the 24-bit SNES address carried in a 32-bit field.
const AddressMask uint32 = 0x00FFFFFF

// Message is one decoded payload.
type Message interface {
	Type() protocol.MessageType
}

// Encoder is implemented by messages that can be written to the wire.
type Encoder interface {
	Message
	Encode() []byte
}

func requireLen(t protocol.MessageType, b []byte, min int) error {
	if len(b) < min {
		return fmt.Errorf("%w: %s payload %d bytes, need %d", protocol.ErrTruncated, t, len(b), min)
	}
	return nil
}

func requireEmpty(t protocol.MessageType, b []byte) error {
	if len(b) != 0 {
		return fmt.Errorf("%w: %s payload must be empty, got %d bytes", protocol.ErrInvalidLength, t, len(b))
	}
	return nil
}

func u16(b []byte, off int) uint16 { return binary.LittleEndian.Uint16(b[off : off+2]) }
func u32(b []byte, off int) uint32 { return binary.LittleEndian.Uint32(b[off : off+4]) }

func putU16(b []byte, off int, v uint16) { binary.LittleEndian.PutUint16(b[off:off+2], v) }
func putU32(b []byte, off int, v uint32) { binary.LittleEndian.PutUint32(b[off:off+4], v) }

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

// fixedString reads a NUL-padded ascii field.
func fixedString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// putFixedString writes s into dst, truncating and NUL-padding to len(dst).
func putFixedString(dst []byte, s string) {
	n := copy(dst, s)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
}

// Decode maps one frame payload to its typed message.
func Decode(t protocol.MessageType, payload []byte) (Message, error) {
	switch t {
	case protocol.MsgHandshake:
		return DecodeHandshake(payload)
	case protocol.MsgHandshakeAck:
		return DecodeHandshakeAck(payload)
	case protocol.MsgStreamConfig:
		return DecodeStreamConfig(payload)
	case protocol.MsgHeartbeat:
		return Heartbeat{}, requireEmpty(t, payload)
	case protocol.MsgDisconnect:
		return Disconnect{}, requireEmpty(t, payload)
	case protocol.MsgCPUState:
		return DecodeCPUState(payload)
	case protocol.MsgCPUStateRequest:
		return CPUStateRequest{}, requireEmpty(t, payload)
	case protocol.MsgExecTrace:
		return DecodeExecTrace(payload)
	case protocol.MsgExecTraceBatch:
		return DecodeExecTraceBatch(payload)
	case protocol.MsgMemoryAccess:
		return DecodeMemoryAccess(payload)
	case protocol.MsgCdlUpdate:
		return DecodeCdlUpdate(payload)
	case protocol.MsgCdlSnapshot:
		return DecodeCdlSnapshot(payload)
	case protocol.MsgFrame:
		return DecodeFrameEvent(payload)
	case protocol.MsgBreakpointAdd, protocol.MsgBreakpointRemove:
		return DecodeBreakpoint(t, payload)
	case protocol.MsgLabelAdd, protocol.MsgLabelUpdate:
		return DecodeLabel(t, payload)
	case protocol.MsgLabelDelete:
		return DecodeLabelDelete(payload)
	case protocol.MsgError:
		return DecodeError(payload)
	}
	return nil, fmt.Errorf("%w: unknown type tag 0x%02x", protocol.ErrMalformedHeader, uint8(t))
}
