package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/danmuck/snestrace/internal/protocol"
)

// HeaderLen is the fixed wire header size: type tag + little-endian u32 length.
const HeaderLen = 5

var (
	ErrPeerClosed      = errors.New("frame: peer closed connection")
	ErrShortHeader     = errors.New("frame: short header")
	ErrShortPayload    = errors.New("frame: short payload")
	ErrPayloadTooLarge = errors.New("frame: payload too large")
)

// Header is the fixed wire header.
type Header struct {
	Type   protocol.MessageType
	Length uint32
}

// Frame is one complete wire message.
type Frame struct {
	Type    protocol.MessageType
	Payload []byte
}

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxPayloadBytes uint32
}

func DefaultLimits() Limits {
	return Limits{MaxPayloadBytes: protocol.MaxPayloadLen}
}

func (l Limits) maxPayload() uint32 {
	if l.MaxPayloadBytes == 0 || l.MaxPayloadBytes > protocol.MaxPayloadLen {
		return protocol.MaxPayloadLen
	}
	return l.MaxPayloadBytes
}

// EncodeHeader returns the 5-byte header for one message.
func EncodeHeader(t protocol.MessageType, length uint32) [HeaderLen]byte {
	var buf [HeaderLen]byte
	buf[0] = byte(t)
	binary.LittleEndian.PutUint32(buf[1:5], length)
	return buf
}

// DecodeHeader parses a header. Unknown tags are fatal; there is no skip path.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) != HeaderLen {
		return Header{}, fmt.Errorf("%w: header length %d", protocol.ErrMalformedHeader, len(b))
	}
	t := protocol.MessageType(b[0])
	if !t.Valid() {
		return Header{}, fmt.Errorf("%w: unknown type tag 0x%02x", protocol.ErrMalformedHeader, b[0])
	}
	return Header{Type: t, Length: binary.LittleEndian.Uint32(b[1:5])}, nil
}

// ReadFrame reads exactly one frame. A clean close before any header byte
// yields ErrPeerClosed; a close inside the header yields ErrShortHeader. The
// declared length is checked against limits before the payload is allocated.
func ReadFrame(r io.Reader, limits Limits) (Frame, error) {
	var hdr [HeaderLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		switch {
		case errors.Is(err, io.ErrUnexpectedEOF):
			return Frame{}, ErrShortHeader
		case errors.Is(err, io.EOF):
			return Frame{}, ErrPeerClosed
		}
		return Frame{}, err
	}

	h, err := DecodeHeader(hdr[:])
	if err != nil {
		return Frame{}, err
	}
	if h.Length > limits.maxPayload() {
		return Frame{}, fmt.Errorf("%w: type=%s length=%d", ErrPayloadTooLarge, h.Type, h.Length)
	}

	payload := make([]byte, h.Length)
	if h.Length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return Frame{}, ErrShortPayload
			}
			return Frame{}, err
		}
	}
	return Frame{Type: h.Type, Payload: payload}, nil
}

// WriteFrame writes header and payload in a single Write call so concurrent
// writers serialized by the caller never interleave partial frames.
func WriteFrame(w io.Writer, f Frame, limits Limits) error {
	buf, err := AppendFrame(nil, f, limits)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// AppendFrame appends the encoded frame to dst.
func AppendFrame(dst []byte, f Frame, limits Limits) ([]byte, error) {
	if uint64(len(f.Payload)) > uint64(limits.maxPayload()) {
		return dst, ErrPayloadTooLarge
	}
	if !f.Type.Valid() {
		return dst, fmt.Errorf("%w: unknown type tag 0x%02x", protocol.ErrMalformedHeader, uint8(f.Type))
	}
	hdr := EncodeHeader(f.Type, uint32(len(f.Payload)))
	dst = append(dst, hdr[:]...)
	return append(dst, f.Payload...), nil
}
