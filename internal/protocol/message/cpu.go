package message

import "github.com/danmuck/snestrace/internal/protocol"

const CPUStateLen = 17

// 65816 status register bits.
const (
	StatusCarry    uint8 = 0x01
	StatusZero     uint8 = 0x02
	StatusIRQ      uint8 = 0x04
	StatusDecimal  uint8 = 0x08
	StatusIndex    uint8 = 0x10
	StatusMemory   uint8 = 0x20
	StatusOverflow uint8 = 0x40
	StatusNegative uint8 = 0x80
)

// CPUState is a full register snapshot.
type CPUState struct {
	PC            uint32
	A             uint16
	X             uint16
	Y             uint16
	SP            uint16
	Flags         uint8
	DataBank      uint8
	DirectPage    uint16
	EmulationMode bool
}

func (CPUState) Type() protocol.MessageType { return protocol.MsgCPUState }

// MFlag reports an 8-bit accumulator. Emulation mode forces 8-bit widths.
func (s CPUState) MFlag() bool { return s.EmulationMode || s.Flags&StatusMemory != 0 }

// XFlag reports 8-bit index registers.
func (s CPUState) XFlag() bool { return s.EmulationMode || s.Flags&StatusIndex != 0 }

func DecodeCPUState(b []byte) (CPUState, error) {
	if err := requireLen(protocol.MsgCPUState, b, CPUStateLen); err != nil {
		return CPUState{}, err
	}
	return CPUState{
		PC:            u32(b, 0) & AddressMask,
		A:             u16(b, 4),
		X:             u16(b, 6),
		Y:             u16(b, 8),
		SP:            u16(b, 10),
		Flags:         b[12],
		DataBank:      b[13],
		DirectPage:    u16(b, 14),
		EmulationMode: b[16] != 0,
	}, nil
}

func (s CPUState) Encode() []byte {
	b := make([]byte, CPUStateLen)
	putU32(b, 0, s.PC&AddressMask)
	putU16(b, 4, s.A)
	putU16(b, 6, s.X)
	putU16(b, 8, s.Y)
	putU16(b, 10, s.SP)
	b[12] = s.Flags
	b[13] = s.DataBank
	putU16(b, 14, s.DirectPage)
	b[16] = boolByte(s.EmulationMode)
	return b
}

// CPUStateRequest asks the emulator for an immediate CPUState.
type CPUStateRequest struct{}

func (CPUStateRequest) Type() protocol.MessageType { return protocol.MsgCPUStateRequest }
func (CPUStateRequest) Encode() []byte             { return nil }
