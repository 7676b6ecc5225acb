package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/snestrace/internal/annotation"
	"github.com/danmuck/snestrace/internal/tracelink"
	"github.com/google/go-cmp/cmp"
)

func TestTemplateMatchesDefaults(t *testing.T) {
	cfg, err := Decode(Template())
	if err != nil {
		t.Fatalf("decode template: %v", err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Fatalf("template drifted from defaults (-want +got):\n%s", diff)
	}
}

func TestDecodeOverridesOnlyDefinedKeys(t *testing.T) {
	cfg, err := Decode(`
[emulator]
port = 1234
handshake_mode = "server-first"
receive_timeout = "100ms"
heartbeat_interval = "0s"

[stream]
memory_access = true
max_batch = 64

[import]
stage_trace_comments = true

[rom]
path = "game.sfc"
map_mode = "HiROM"

[admin]
listen = "127.0.0.1:9090"
token = " s3cret "
`)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	want := Default()
	want.Emulator.Port = 1234
	want.Link.HandshakeMode = tracelink.HandshakeServerFirst
	want.Link.Session.ReadTimeout = 100 * time.Millisecond
	want.Link.Session.HeartbeatInterval = 0
	stream := *want.Link.Stream
	stream.MemoryAccess = true
	stream.MaxBatch = 64
	want.Link.Stream = &stream
	want.Import.StageTraceComments = true
	want.ROM = ROMConfig{Path: "game.sfc", MapMode: annotation.HiROM}
	want.Admin.Listen = "127.0.0.1:9090"
	want.Admin.Token = "s3cret"

	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestStreamCanBeDisabled(t *testing.T) {
	cfg, err := Decode("[stream]\nenabled = false\ncdl = true\n")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.Link.Stream != nil {
		t.Fatalf("expected no stream config, got %+v", *cfg.Link.Stream)
	}
}

func TestDecodeRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		text string
		want error
	}{
		{name: "bad duration", text: "[emulator]\nconnect_timeout = \"soon\"\n", want: ErrInvalidDuration},
		{name: "bad port", text: "[emulator]\nport = 70000\n", want: ErrInvalidConfig},
		{name: "empty host", text: "[emulator]\nhost = \"  \"\n", want: ErrInvalidConfig},
		{name: "bad handshake mode", text: "[emulator]\nhandshake_mode = \"both\"\n", want: ErrInvalidConfig},
		{name: "zero receive timeout", text: "[emulator]\nreceive_timeout = \"0s\"\n", want: ErrInvalidConfig},
		{name: "bad map mode", text: "[rom]\nmap_mode = \"exhirom\"\n", want: ErrInvalidConfig},
		{name: "frame interval range", text: "[stream]\nframe_interval = 300\n", want: ErrInvalidConfig},
		{name: "bad push interval", text: "[admin]\npush_interval = \"x\"\n", want: ErrInvalidDuration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.text)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracectl.toml")
	if err := os.WriteFile(path, []byte("[emulator]\nhost = \"emu.local\"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Emulator.Host != "emu.local" {
		t.Fatalf("host=%q want emu.local", cfg.Emulator.Host)
	}
	params := cfg.Params()
	if params.Host != "emu.local" || params.Port != 9998 || params.ReceiveTimeout != cfg.Link.Session.ReadTimeout {
		t.Fatalf("unexpected params: %+v", params)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected missing file error")
	}
}

func TestWriteTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracectl.toml")
	if err := WriteTemplate(path, false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	if err := WriteTemplate(path, false); err == nil {
		t.Fatalf("expected refusal to overwrite")
	}
	if err := WriteTemplate(path, true); err != nil {
		t.Fatalf("overwrite template: %v", err)
	}
	if _, err := Load(path); err != nil {
		t.Fatalf("load written template: %v", err)
	}
}
