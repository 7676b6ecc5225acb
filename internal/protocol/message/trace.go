package message

import (
	"fmt"

	"github.com/danmuck/snestrace/internal/protocol"
)

const (
	ExecTraceLen    = 15
	CdlUpdateLen    = 5
	MemoryAccessLen = 6
	FrameEventLen   = 6
)

// ExecTrace is one executed instruction as observed by the emulator.
type ExecTrace struct {
	PC            uint32
	Opcode        uint8
	MFlag         bool // accumulator is 8-bit
	XFlag         bool // index registers are 8-bit
	DataBank      uint8
	DirectPage    uint16
	EffectiveAddr uint32
}

func (ExecTrace) Type() protocol.MessageType { return protocol.MsgExecTrace }

func DecodeExecTrace(b []byte) (ExecTrace, error) {
	if err := requireLen(protocol.MsgExecTrace, b, ExecTraceLen); err != nil {
		return ExecTrace{}, err
	}
	return decodeExecTrace(b), nil
}

func decodeExecTrace(b []byte) ExecTrace {
	return ExecTrace{
		PC:            u32(b, 0) & AddressMask,
		Opcode:        b[4],
		MFlag:         b[5] != 0,
		XFlag:         b[6] != 0,
		DataBank:      b[7],
		DirectPage:    u16(b, 8),
		EffectiveAddr: u32(b, 10) & AddressMask,
	}
}

func (e ExecTrace) Encode() []byte {
	b := make([]byte, ExecTraceLen)
	e.put(b)
	return b
}

func (e ExecTrace) put(b []byte) {
	putU32(b, 0, e.PC&AddressMask)
	b[4] = e.Opcode
	b[5] = boolByte(e.MFlag)
	b[6] = boolByte(e.XFlag)
	b[7] = e.DataBank
	putU16(b, 8, e.DirectPage)
	putU32(b, 10, e.EffectiveAddr&AddressMask)
	b[14] = 0
}

// ExecTraceBatch is a run of ExecTrace entries packed back to back, in
// execution order.
type ExecTraceBatch struct {
	Entries []ExecTrace
}

func (ExecTraceBatch) Type() protocol.MessageType { return protocol.MsgExecTraceBatch }

func DecodeExecTraceBatch(b []byte) (ExecTraceBatch, error) {
	if err := requireLen(protocol.MsgExecTraceBatch, b, ExecTraceLen); err != nil {
		return ExecTraceBatch{}, err
	}
	if len(b)%ExecTraceLen != 0 {
		return ExecTraceBatch{}, fmt.Errorf("%w: %s payload %d bytes is not a multiple of %d",
			protocol.ErrInvalidLength, protocol.MsgExecTraceBatch, len(b), ExecTraceLen)
	}
	entries := make([]ExecTrace, 0, len(b)/ExecTraceLen)
	for off := 0; off < len(b); off += ExecTraceLen {
		entries = append(entries, decodeExecTrace(b[off:off+ExecTraceLen]))
	}
	return ExecTraceBatch{Entries: entries}, nil
}

func (e ExecTraceBatch) Encode() []byte {
	b := make([]byte, len(e.Entries)*ExecTraceLen)
	for i, entry := range e.Entries {
		entry.put(b[i*ExecTraceLen : (i+1)*ExecTraceLen])
	}
	return b
}

// CdlFlags is the code/data logger bitfield for one byte.
type CdlFlags uint8

const (
	CdlCode     CdlFlags = 0x01
	CdlData     CdlFlags = 0x02
	CdlIndirect CdlFlags = 0x04
	CdlIndexed  CdlFlags = 0x08
)

func (f CdlFlags) Code() bool     { return f&CdlCode != 0 }
func (f CdlFlags) Data() bool     { return f&CdlData != 0 }
func (f CdlFlags) Indirect() bool { return f&CdlIndirect != 0 }
func (f CdlFlags) Indexed() bool  { return f&CdlIndexed != 0 }

// CdlUpdate reports a classification change for one SNES address.
type CdlUpdate struct {
	Address uint32
	Flags   CdlFlags
}

func (CdlUpdate) Type() protocol.MessageType { return protocol.MsgCdlUpdate }

func DecodeCdlUpdate(b []byte) (CdlUpdate, error) {
	if err := requireLen(protocol.MsgCdlUpdate, b, CdlUpdateLen); err != nil {
		return CdlUpdate{}, err
	}
	return CdlUpdate{Address: u32(b, 0) & AddressMask, Flags: CdlFlags(b[4])}, nil
}

func (c CdlUpdate) Encode() []byte {
	b := make([]byte, CdlUpdateLen)
	putU32(b, 0, c.Address&AddressMask)
	b[4] = byte(c.Flags)
	return b
}

// CdlSnapshot carries one CDL byte per ROM offset, starting at offset 0.
type CdlSnapshot struct {
	Flags []CdlFlags
}

func (CdlSnapshot) Type() protocol.MessageType { return protocol.MsgCdlSnapshot }

func DecodeCdlSnapshot(b []byte) (CdlSnapshot, error) {
	flags := make([]CdlFlags, len(b))
	for i, v := range b {
		flags[i] = CdlFlags(v)
	}
	return CdlSnapshot{Flags: flags}, nil
}

func (c CdlSnapshot) Encode() []byte {
	b := make([]byte, len(c.Flags))
	for i, v := range c.Flags {
		b[i] = byte(v)
	}
	return b
}

// AccessKind classifies a MemoryAccess event.
type AccessKind uint8

const (
	AccessRead  AccessKind = 0
	AccessWrite AccessKind = 1
	AccessExec  AccessKind = 2
)

// MemoryAccess is one bus access observed by the emulator.
type MemoryAccess struct {
	Address uint32
	Value   uint8
	Kind    AccessKind
}

func (MemoryAccess) Type() protocol.MessageType { return protocol.MsgMemoryAccess }

func DecodeMemoryAccess(b []byte) (MemoryAccess, error) {
	if err := requireLen(protocol.MsgMemoryAccess, b, MemoryAccessLen); err != nil {
		return MemoryAccess{}, err
	}
	return MemoryAccess{Address: u32(b, 0) & AddressMask, Value: b[4], Kind: AccessKind(b[5])}, nil
}

func (m MemoryAccess) Encode() []byte {
	b := make([]byte, MemoryAccessLen)
	putU32(b, 0, m.Address&AddressMask)
	b[4] = m.Value
	b[5] = byte(m.Kind)
	return b
}

// FrameEvent marks the start of an emulated video frame.
type FrameEvent struct {
	Number   uint32
	Scanline uint16
}

func (FrameEvent) Type() protocol.MessageType { return protocol.MsgFrame }

func DecodeFrameEvent(b []byte) (FrameEvent, error) {
	if err := requireLen(protocol.MsgFrame, b, FrameEventLen); err != nil {
		return FrameEvent{}, err
	}
	return FrameEvent{Number: u32(b, 0), Scanline: u16(b, 4)}, nil
}

func (f FrameEvent) Encode() []byte {
	b := make([]byte, FrameEventLen)
	putU32(b, 0, f.Number)
	putU16(b, 4, f.Scanline)
	return b
}
