package message

import (
	"errors"
	"strings"
	"testing"

	"github.com/danmuck/snestrace/internal/protocol"
	"github.com/google/go-cmp/cmp"
)

func TestDecodeHandshakeFieldOffsets(t *testing.T) {
	b := make([]byte, HandshakeLen)
	b[0], b[1] = 0x01, 0x00 // major 1
	b[2], b[3] = 0x02, 0x00 // minor 2
	b[4], b[5], b[6], b[7] = 0x78, 0x56, 0x34, 0x12
	b[8], b[9], b[10], b[11] = 0x00, 0x00, 0x10, 0x00
	copy(b[12:], "SUPER METROID")

	got, err := DecodeHandshake(b)
	if err != nil {
		t.Fatalf("decode handshake: %v", err)
	}
	want := Handshake{
		VersionMajor: 1,
		VersionMinor: 2,
		ROMChecksum:  0x12345678,
		ROMSize:      0x100000,
		ROMName:      "SUPER METROID",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("handshake mismatch (-want +got):\n%s", diff)
	}
}

func TestHandshakeEncodeRoundTripAndNameTruncation(t *testing.T) {
	in := Handshake{VersionMajor: 1, ROMChecksum: 0xCAFE, ROMSize: 0x200000, ROMName: strings.Repeat("Z", 300)}
	b := in.Encode()
	if len(b) != HandshakeLen {
		t.Fatalf("unexpected handshake size: %d", len(b))
	}
	got, err := DecodeHandshake(b)
	if err != nil {
		t.Fatalf("decode handshake: %v", err)
	}
	if len(got.ROMName) != ROMNameLen {
		t.Fatalf("expected truncated name of %d bytes, got %d", ROMNameLen, len(got.ROMName))
	}
}

func TestDecodeRejectsShortPayloads(t *testing.T) {
	cases := []struct {
		typ protocol.MessageType
		min int
	}{
		{protocol.MsgHandshake, HandshakeLen},
		{protocol.MsgExecTrace, ExecTraceLen},
		{protocol.MsgExecTraceBatch, ExecTraceLen},
		{protocol.MsgCdlUpdate, CdlUpdateLen},
		{protocol.MsgCPUState, CPUStateLen},
		{protocol.MsgError, ErrorHeaderLen},
		{protocol.MsgHandshakeAck, HandshakeAckLen},
		{protocol.MsgStreamConfig, StreamConfigLen},
		{protocol.MsgBreakpointAdd, BreakpointLen},
		{protocol.MsgLabelAdd, LabelHeaderLen},
		{protocol.MsgLabelDelete, LabelDeleteLen},
		{protocol.MsgMemoryAccess, MemoryAccessLen},
		{protocol.MsgFrame, FrameEventLen},
	}
	for _, tc := range cases {
		_, err := Decode(tc.typ, make([]byte, tc.min-1))
		if !errors.Is(err, protocol.ErrTruncated) {
			t.Fatalf("%s: expected ErrTruncated for %d bytes, got %v", tc.typ, tc.min-1, err)
		}
		if _, err := Decode(tc.typ, make([]byte, tc.min)); err != nil {
			t.Fatalf("%s: minimum payload rejected: %v", tc.typ, err)
		}
	}
}

func TestLegacyHandshakeLayoutRejected(t *testing.T) {
	_, err := DecodeHandshake(make([]byte, 21))
	if !errors.Is(err, protocol.ErrTruncated) {
		t.Fatalf("expected 21-byte handshake to be rejected, got %v", err)
	}
}

func TestDecodeExecTraceMasksAddresses(t *testing.T) {
	b := []byte{
		0x00, 0x80, 0x00, 0xFF, // pc with garbage high byte
		0xA9,                   // opcode
		0x01, 0x00,             // m, x
		0x7E,                   // data bank
		0x00, 0x21,             // direct page
		0x34, 0x12, 0x80, 0xEE, // effective address with garbage high byte
		0x00,
	}
	got, err := DecodeExecTrace(b)
	if err != nil {
		t.Fatalf("decode exec trace: %v", err)
	}
	want := ExecTrace{
		PC:            0x008000,
		Opcode:        0xA9,
		MFlag:         true,
		XFlag:         false,
		DataBank:      0x7E,
		DirectPage:    0x2100,
		EffectiveAddr: 0x801234,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("exec trace mismatch (-want +got):\n%s", diff)
	}
	if enc := got.Encode(); enc[3] != 0 || enc[13] != 0 {
		t.Fatalf("expected masked address bytes on re-encode: % x", enc)
	}
}

func TestExecTraceBatch(t *testing.T) {
	in := ExecTraceBatch{Entries: []ExecTrace{
		{PC: 0x008000, Opcode: 0x78, MFlag: true, XFlag: true},
		{PC: 0x008001, Opcode: 0x18, MFlag: true, XFlag: true},
		{PC: 0x008002, Opcode: 0xFB, MFlag: true, XFlag: true, DirectPage: 0x0100},
	}}
	b := in.Encode()
	if len(b) != 3*ExecTraceLen {
		t.Fatalf("unexpected batch size: %d", len(b))
	}
	got, err := DecodeExecTraceBatch(b)
	if err != nil {
		t.Fatalf("decode batch: %v", err)
	}
	if diff := cmp.Diff(in, got); diff != "" {
		t.Fatalf("batch mismatch (-want +got):\n%s", diff)
	}

	_, err = DecodeExecTraceBatch(append(b, 0x00))
	if !errors.Is(err, protocol.ErrInvalidLength) {
		t.Fatalf("expected trailing partial entry to be rejected, got %v", err)
	}
}

func TestDecodeCPUStateFieldOffsets(t *testing.T) {
	b := []byte{
		0x5C, 0x80, 0x80, 0x00,
		0x34, 0x12, // a
		0x02, 0x00, // x
		0x03, 0x00, // y
		0xFF, 0x1F, // sp
		0x30,       // p: m and x set
		0x80,       // db
		0x00, 0x43, // dp
		0x00,
	}
	got, err := DecodeCPUState(b)
	if err != nil {
		t.Fatalf("decode cpu state: %v", err)
	}
	want := CPUState{PC: 0x80805C, A: 0x1234, X: 2, Y: 3, SP: 0x1FFF, Flags: 0x30, DataBank: 0x80, DirectPage: 0x4300}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("cpu state mismatch (-want +got):\n%s", diff)
	}
	if !got.MFlag() || !got.XFlag() {
		t.Fatalf("expected 8-bit widths from status 0x30")
	}
	if diff := cmp.Diff(b, got.Encode()); diff != "" {
		t.Fatalf("cpu state re-encode mismatch:\n%s", diff)
	}
}

func TestCdlUpdateAndSnapshot(t *testing.T) {
	got, err := DecodeCdlUpdate([]byte{0x10, 0x80, 0x00, 0x00, byte(CdlData | CdlIndirect)})
	if err != nil {
		t.Fatalf("decode cdl: %v", err)
	}
	if got.Address != 0x8010 || got.Flags.Code() || !got.Flags.Data() || !got.Flags.Indirect() || got.Flags.Indexed() {
		t.Fatalf("unexpected cdl update: %+v", got)
	}

	snap, err := DecodeCdlSnapshot([]byte{0x01, 0x00, 0x02})
	if err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if diff := cmp.Diff([]CdlFlags{CdlCode, 0, CdlData}, snap.Flags); diff != "" {
		t.Fatalf("snapshot mismatch:\n%s", diff)
	}
}

func TestDecodeErrorMessage(t *testing.T) {
	got, err := DecodeError(append([]byte{0x04, 0x00}, "rom not loaded"...))
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if got.Code != 4 || got.Text != "rom not loaded" {
		t.Fatalf("unexpected error message: %+v", got)
	}
	if !strings.Contains(got.Error(), "code=4") {
		t.Fatalf("unexpected error string: %q", got.Error())
	}
}

func TestOutboundEncodersMatchLayout(t *testing.T) {
	ack := HandshakeAck{VersionMajor: 1, VersionMinor: 0, Accepted: true, ClientName: "snestrace"}.Encode()
	if len(ack) != HandshakeAckLen || ack[0] != 0x01 || ack[4] != 0x01 || string(ack[5:14]) != "snestrace" || ack[14] != 0 {
		t.Fatalf("unexpected handshake ack bytes: % x", ack[:16])
	}

	cfg := StreamConfig{ExecTrace: true, Cdl: true, FrameInterval: 2, MaxBatch: 0x0400}.Encode()
	if diff := cmp.Diff([]byte{1, 0, 1, 2, 0x00, 0x04}, cfg); diff != "" {
		t.Fatalf("stream config mismatch:\n%s", diff)
	}

	bp := Breakpoint{Kind: BreakExec | BreakWrite, Start: 0x808000, End: 0x80FFFF}
	if bp.Type() != protocol.MsgBreakpointAdd {
		t.Fatalf("unexpected breakpoint type %s", bp.Type())
	}
	if diff := cmp.Diff([]byte{0x05, 0x00, 0x80, 0x80, 0x00, 0xFF, 0xFF, 0x80, 0x00}, bp.Encode()); diff != "" {
		t.Fatalf("breakpoint mismatch:\n%s", diff)
	}
	bp.Remove = true
	if bp.Type() != protocol.MsgBreakpointRemove {
		t.Fatalf("unexpected breakpoint type %s", bp.Type())
	}

	label := Label{Update: true, Address: 0x00FFEA, Name: "nmi_vector", Comment: "points at NMI"}
	lb := label.Encode()
	if len(lb) != LabelHeaderLen+len(label.Comment) || label.Type() != protocol.MsgLabelUpdate {
		t.Fatalf("unexpected label encoding len=%d type=%s", len(lb), label.Type())
	}
	decoded, err := DecodeLabel(protocol.MsgLabelUpdate, lb)
	if err != nil {
		t.Fatalf("decode label: %v", err)
	}
	if diff := cmp.Diff(label, decoded); diff != "" {
		t.Fatalf("label mismatch (-want +got):\n%s", diff)
	}

	del := LabelDelete{Address: 0x00FFEA}.Encode()
	if diff := cmp.Diff([]byte{0xEA, 0xFF, 0x00, 0x00}, del); diff != "" {
		t.Fatalf("label delete mismatch:\n%s", diff)
	}
}

func TestDecodeEmptyControlMessages(t *testing.T) {
	for _, typ := range []protocol.MessageType{protocol.MsgHeartbeat, protocol.MsgDisconnect, protocol.MsgCPUStateRequest} {
		if _, err := Decode(typ, nil); err != nil {
			t.Fatalf("%s: %v", typ, err)
		}
		if _, err := Decode(typ, []byte{0}); !errors.Is(err, protocol.ErrInvalidLength) {
			t.Fatalf("%s: expected ErrInvalidLength, got %v", typ, err)
		}
	}
}

func TestDecodeUnknownType(t *testing.T) {
	_, err := Decode(protocol.MessageType(0x99), nil)
	if !errors.Is(err, protocol.ErrMalformedHeader) {
		t.Fatalf("expected ErrMalformedHeader, got %v", err)
	}
}
