package message

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/danmuck/snestrace/internal/protocol"
)

const (
	StreamConfigLen = 6
	BreakpointLen   = 9
	LabelNameLen    = 64
	LabelHeaderLen  = 4 + LabelNameLen
	LabelDeleteLen  = 4
	ErrorHeaderLen  = 2
)

// Heartbeat keeps an idle session visible to both sides.
type Heartbeat struct{}

func (Heartbeat) Type() protocol.MessageType { return protocol.MsgHeartbeat }
func (Heartbeat) Encode() []byte             { return nil }

// Disconnect announces an orderly close.
type Disconnect struct{}

func (Disconnect) Type() protocol.MessageType { return protocol.MsgDisconnect }
func (Disconnect) Encode() []byte             { return nil }

// StreamConfig selects which event streams the emulator should produce.
type StreamConfig struct {
	ExecTrace     bool
	MemoryAccess  bool
	Cdl           bool
	FrameInterval uint8
	MaxBatch      uint16
}

func (StreamConfig) Type() protocol.MessageType { return protocol.MsgStreamConfig }

func DecodeStreamConfig(b []byte) (StreamConfig, error) {
	if err := requireLen(protocol.MsgStreamConfig, b, StreamConfigLen); err != nil {
		return StreamConfig{}, err
	}
	return StreamConfig{
		ExecTrace:     b[0] != 0,
		MemoryAccess:  b[1] != 0,
		Cdl:           b[2] != 0,
		FrameInterval: b[3],
		MaxBatch:      u16(b, 4),
	}, nil
}

func (c StreamConfig) Encode() []byte {
	b := make([]byte, StreamConfigLen)
	b[0] = boolByte(c.ExecTrace)
	b[1] = boolByte(c.MemoryAccess)
	b[2] = boolByte(c.Cdl)
	b[3] = c.FrameInterval
	putU16(b, 4, c.MaxBatch)
	return b
}

// BreakpointKind is a bitmask of access kinds that trigger a breakpoint.
type BreakpointKind uint8

const (
	BreakExec  BreakpointKind = 0x01
	BreakRead  BreakpointKind = 0x02
	BreakWrite BreakpointKind = 0x04
)

// Breakpoint is the payload of BreakpointAdd and BreakpointRemove; Remove
// selects the breakpoint to drop by the same kind and range.
type Breakpoint struct {
	Remove bool
	Kind   BreakpointKind
	Start  uint32
	End    uint32
}

func (b Breakpoint) Type() protocol.MessageType {
	if b.Remove {
		return protocol.MsgBreakpointRemove
	}
	return protocol.MsgBreakpointAdd
}

func DecodeBreakpoint(t protocol.MessageType, b []byte) (Breakpoint, error) {
	if t != protocol.MsgBreakpointAdd && t != protocol.MsgBreakpointRemove {
		return Breakpoint{}, fmt.Errorf("%w: %s is not a breakpoint message", protocol.ErrUnexpectedMessage, t)
	}
	if err := requireLen(t, b, BreakpointLen); err != nil {
		return Breakpoint{}, err
	}
	return Breakpoint{
		Remove: t == protocol.MsgBreakpointRemove,
		Kind:   BreakpointKind(b[0]),
		Start:  u32(b, 1) & AddressMask,
		End:    u32(b, 5) & AddressMask,
	}, nil
}

func (b Breakpoint) Encode() []byte {
	out := make([]byte, BreakpointLen)
	out[0] = byte(b.Kind)
	putU32(out, 1, b.Start&AddressMask)
	putU32(out, 5, b.End&AddressMask)
	return out
}

// Label is the payload of LabelAdd and LabelUpdate.
type Label struct {
	Update  bool
	Address uint32
	Name    string
	Comment string
}

func (l Label) Type() protocol.MessageType {
	if l.Update {
		return protocol.MsgLabelUpdate
	}
	return protocol.MsgLabelAdd
}

func DecodeLabel(t protocol.MessageType, b []byte) (Label, error) {
	if t != protocol.MsgLabelAdd && t != protocol.MsgLabelUpdate {
		return Label{}, fmt.Errorf("%w: %s is not a label message", protocol.ErrUnexpectedMessage, t)
	}
	if err := requireLen(t, b, LabelHeaderLen); err != nil {
		return Label{}, err
	}
	return Label{
		Update:  t == protocol.MsgLabelUpdate,
		Address: u32(b, 0) & AddressMask,
		Name:    fixedString(b[4:LabelHeaderLen]),
		Comment: validUTF8(b[LabelHeaderLen:]),
	}, nil
}

func (l Label) Encode() []byte {
	out := make([]byte, LabelHeaderLen+len(l.Comment))
	putU32(out, 0, l.Address&AddressMask)
	putFixedString(out[4:LabelHeaderLen], l.Name)
	copy(out[LabelHeaderLen:], l.Comment)
	return out
}

// LabelDelete removes the label at Address.
type LabelDelete struct {
	Address uint32
}

func (LabelDelete) Type() protocol.MessageType { return protocol.MsgLabelDelete }

func DecodeLabelDelete(b []byte) (LabelDelete, error) {
	if err := requireLen(protocol.MsgLabelDelete, b, LabelDeleteLen); err != nil {
		return LabelDelete{}, err
	}
	return LabelDelete{Address: u32(b, 0) & AddressMask}, nil
}

func (l LabelDelete) Encode() []byte {
	out := make([]byte, LabelDeleteLen)
	putU32(out, 0, l.Address&AddressMask)
	return out
}

// Error carries a remote error code and message.
type Error struct {
	Code uint16
	Text string
}

func (Error) Type() protocol.MessageType { return protocol.MsgError }

func (e Error) Error() string {
	return fmt.Sprintf("remote error code=%d: %s", e.Code, e.Text)
}

func DecodeError(b []byte) (Error, error) {
	if err := requireLen(protocol.MsgError, b, ErrorHeaderLen); err != nil {
		return Error{}, err
	}
	return Error{Code: u16(b, 0), Text: validUTF8(b[ErrorHeaderLen:])}, nil
}

func (e Error) Encode() []byte {
	out := make([]byte, ErrorHeaderLen+len(e.Text))
	putU16(out, 0, e.Code)
	copy(out[ErrorHeaderLen:], e.Text)
	return out
}

func validUTF8(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return strings.ToValidUTF8(string(b), string(utf8.RuneError))
}
