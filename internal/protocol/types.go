package protocol

import "fmt"

// Protocol version negotiated in the handshake. Only one major version is
// accepted; the legacy 21-byte handshake layout has no version field and is
// rejected by size.
const (
	VersionMajor uint16 = 1
	VersionMinor uint16 = 0
)

const (
	DefaultPort = 9998

	// MaxPayloadLen bounds every declared payload length before allocation.
	MaxPayloadLen uint32 = 1 << 20
)

// MessageType is the one-byte tag leading every frame.
type MessageType uint8

const (
	MsgHandshake        MessageType = 0x01
	MsgHandshakeAck     MessageType = 0x02
	MsgStreamConfig     MessageType = 0x03
	MsgHeartbeat        MessageType = 0x04
	MsgDisconnect       MessageType = 0x05
	MsgCPUState         MessageType = 0x10
	MsgCPUStateRequest  MessageType = 0x11
	MsgExecTrace        MessageType = 0x12
	MsgExecTraceBatch   MessageType = 0x13
	MsgMemoryAccess     MessageType = 0x14
	MsgCdlUpdate        MessageType = 0x15
	MsgCdlSnapshot      MessageType = 0x16
	MsgFrame            MessageType = 0x17
	MsgBreakpointAdd    MessageType = 0x20
	MsgBreakpointRemove MessageType = 0x21
	MsgLabelAdd         MessageType = 0x30
	MsgLabelUpdate      MessageType = 0x31
	MsgLabelDelete      MessageType = 0x32
	MsgError            MessageType = 0xFF
)

var messageTypeNames = map[MessageType]string{
	MsgHandshake:        "handshake",
	MsgHandshakeAck:     "handshake.ack",
	MsgStreamConfig:     "stream.config",
	MsgHeartbeat:        "heartbeat",
	MsgDisconnect:       "disconnect",
	MsgCPUState:         "cpu.state",
	MsgCPUStateRequest:  "cpu.state.request",
	MsgExecTrace:        "exec.trace",
	MsgExecTraceBatch:   "exec.trace.batch",
	MsgMemoryAccess:     "memory.access",
	MsgCdlUpdate:        "cdl.update",
	MsgCdlSnapshot:      "cdl.snapshot",
	MsgFrame:            "frame",
	MsgBreakpointAdd:    "breakpoint.add",
	MsgBreakpointRemove: "breakpoint.remove",
	MsgLabelAdd:         "label.add",
	MsgLabelUpdate:      "label.update",
	MsgLabelDelete:      "label.delete",
	MsgError:            "error",
}

// Valid reports whether t is a recognized tag.
func (t MessageType) Valid() bool {
	_, ok := messageTypeNames[t]
	return ok
}

func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("unknown(0x%02x)", uint8(t))
}
