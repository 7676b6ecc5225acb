package main

import (
	"bytes"
	"context"
	"io"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/snestrace/internal/annotation"
	"github.com/danmuck/snestrace/internal/config"
	"github.com/danmuck/snestrace/internal/protocol/message"
	"github.com/danmuck/snestrace/internal/romstore"
	"github.com/danmuck/snestrace/internal/testutil/mockemu"
	"github.com/danmuck/snestrace/internal/testutil/testlog"
	"github.com/danmuck/snestrace/internal/traceimport"
	"github.com/danmuck/snestrace/internal/tracelink"
	"gopkg.in/yaml.v3"
)

func TestExampleConfigLoads(t *testing.T) {
	cfg, err := config.Load("ex.config.toml")
	if err != nil {
		t.Fatalf("load example config: %v", err)
	}
	if cfg.Emulator.MaxConnectAttempts != 0 {
		t.Fatalf("unexpected max connect attempts: %d", cfg.Emulator.MaxConnectAttempts)
	}
	if cfg.Link.Session.ReadTimeout != 250*time.Millisecond {
		t.Fatalf("unexpected receive timeout: %v", cfg.Link.Session.ReadTimeout)
	}
	if cfg.Link.Stream == nil || cfg.Link.Stream.MaxBatch != 512 {
		t.Fatalf("unexpected stream config: %+v", cfg.Link.Stream)
	}
	if !cfg.Import.StageTraceComments || !cfg.Import.ClassifyPointers {
		t.Fatalf("unexpected import options: %+v", cfg.Import)
	}
	if cfg.ROM.MapMode != annotation.HiROM {
		t.Fatalf("unexpected map mode: %s", cfg.ROM.MapMode)
	}
	if cfg.Admin.Listen != "127.0.0.1:9090" || cfg.Admin.PushInterval != 500*time.Millisecond {
		t.Fatalf("unexpected admin config: %+v", cfg.Admin)
	}
}

func TestWriteReportText(t *testing.T) {
	store := romstore.New(4, annotation.LoROM)
	store.SetAttributes(0, annotation.Attributes{Flag: annotation.FlagOpcode})
	stats := traceimport.Statistics{BytesModified: 1, ExecTraces: 3, RemoteROM: "MOCK ROM"}
	rep := buildReport(store, stats, tracelink.StateDisconnected, "interrupted", 1500*time.Millisecond)

	var out bytes.Buffer
	if err := writeReport(&out, "text", rep); err != nil {
		t.Fatalf("write report: %v", err)
	}
	text := out.String()
	for _, want := range []string{
		"session ended: interrupted (state disconnected, 1.5s)",
		"remote rom:     MOCK ROM",
		"bytes modified: 1",
		"opcode",
		"unreached",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("report missing %q:\n%s", want, text)
		}
	}
}

func TestWriteReportYAML(t *testing.T) {
	store := romstore.New(4, annotation.HiROM)
	stats := traceimport.Statistics{BytesModified: 2, CommentsCommitted: 1}
	rep := buildReport(store, stats, tracelink.StateError, "emulator closed session", time.Second)

	var out bytes.Buffer
	if err := writeReport(&out, "yaml", rep); err != nil {
		t.Fatalf("write report: %v", err)
	}
	var decoded sessionReport
	if err := yaml.Unmarshal(out.Bytes(), &decoded); err != nil {
		t.Fatalf("decode yaml report: %v", err)
	}
	if decoded.EndState != "error" || decoded.MapMode != "hirom" || decoded.BytesModified != 2 {
		t.Fatalf("unexpected decoded report: %+v", decoded)
	}
	if decoded.Statistics.CommentsCommitted != 1 || decoded.Coverage["unreached"] != 4 {
		t.Fatalf("unexpected decoded statistics: %+v", decoded)
	}
}

func TestConnectCommandReportsSession(t *testing.T) {
	testlog.Start(t)

	srv := mockemu.Start(t)
	cmd := connectCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{
		"--host", srv.Host(),
		"--port", strconv.Itoa(srv.Port()),
		"--attempts", "1",
		"--report", "yaml",
	})

	errCh := make(chan error, 1)
	go func() { errCh <- cmd.ExecuteContext(context.Background()) }()

	peer, err := srv.Accept(5 * time.Second)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := peer.Handshake(mockemu.HandshakeOptions{
		Remote:       mockemu.DefaultRemote(),
		ClientFirst:  true,
		ExpectStream: true,
	}); err != nil {
		t.Fatalf("peer handshake: %v", err)
	}
	if err := peer.Send(message.ExecTrace{PC: 0x8000, Opcode: 0xA9, MFlag: true, XFlag: true}); err != nil {
		t.Fatalf("send exec trace: %v", err)
	}
	_ = peer.Close()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("connect command: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("connect command did not finish after the emulator closed")
	}

	var rep sessionReport
	if err := yaml.Unmarshal(out.Bytes(), &rep); err != nil {
		t.Fatalf("decode report: %v\n%s", err, out.String())
	}
	if rep.Reason != "emulator closed session" || rep.BytesModified != 1 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if rep.Statistics.RemoteROM != "MOCK ROM" || rep.Coverage["opcode"] != 1 {
		t.Fatalf("unexpected report statistics: %+v", rep.Statistics)
	}
}

func TestConnectRejectsUnknownReportFormat(t *testing.T) {
	cmd := connectCmd()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--report", "xml"})
	if err := cmd.Execute(); err == nil || !strings.Contains(err.Error(), "unknown report format") {
		t.Fatalf("expected report format error, got %v", err)
	}
}
