// Package config loads tracectl settings from TOML. Keys that are absent keep
// their defaults, so a file only needs the values it changes.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/snestrace/internal/annotation"
	"github.com/danmuck/snestrace/internal/protocol"
	"github.com/danmuck/snestrace/internal/traceimport"
	"github.com/danmuck/snestrace/internal/tracelink"
)

var (
	ErrInvalidConfig   = errors.New("config: invalid config")
	ErrInvalidDuration = errors.New("config: invalid duration")
)

type EmulatorConfig struct {
	Host string
	Port int
	// MaxConnectAttempts bounds ConnectWithRetry; 0 retries until cancelled.
	MaxConnectAttempts int
}

type ROMConfig struct {
	Path    string
	MapMode annotation.MapMode
}

// AdminConfig enables the HTTP admin surface when Listen is set. A non-empty
// Token is required on every route except /health.
type AdminConfig struct {
	Listen       string
	PushInterval time.Duration
	Token        string
}

type Config struct {
	Emulator EmulatorConfig
	Link     tracelink.Config
	Import   traceimport.Options
	ROM      ROMConfig
	Admin    AdminConfig
}

func Default() Config {
	return Config{
		Emulator: EmulatorConfig{
			Host:               "127.0.0.1",
			Port:               protocol.DefaultPort,
			MaxConnectAttempts: 1,
		},
		Link:  tracelink.DefaultConfig(),
		ROM:   ROMConfig{MapMode: annotation.LoROM},
		Admin: AdminConfig{PushInterval: time.Second},
	}
}

type fileConfig struct {
	Emulator emulatorFile `toml:"emulator"`
	Stream   streamFile   `toml:"stream"`
	Import   importFile   `toml:"import"`
	ROM      romFile      `toml:"rom"`
	Admin    adminFile    `toml:"admin"`
}

type emulatorFile struct {
	Host               string `toml:"host"`
	Port               int    `toml:"port"`
	HandshakeMode      string `toml:"handshake_mode"`
	ClientName         string `toml:"client_name"`
	MaxConnectAttempts int    `toml:"max_connect_attempts"`
	ConnectTimeout     string `toml:"connect_timeout"`
	HandshakeTimeout   string `toml:"handshake_timeout"`
	ReceiveTimeout     string `toml:"receive_timeout"`
	WriteTimeout       string `toml:"write_timeout"`
	HeartbeatInterval  string `toml:"heartbeat_interval"`
	KeepAliveInterval  string `toml:"keepalive_interval"`
	DisconnectWait     string `toml:"disconnect_wait"`
}

type streamFile struct {
	Enabled       bool `toml:"enabled"`
	ExecTrace     bool `toml:"exec_trace"`
	MemoryAccess  bool `toml:"memory_access"`
	Cdl           bool `toml:"cdl"`
	FrameInterval int  `toml:"frame_interval"`
	MaxBatch      int  `toml:"max_batch"`
}

type importFile struct {
	StageTraceComments bool `toml:"stage_trace_comments"`
	ClassifyPointers   bool `toml:"classify_pointers"`
}

type romFile struct {
	Path    string `toml:"path"`
	MapMode string `toml:"map_mode"`
}

type adminFile struct {
	Listen       string `toml:"listen"`
	PushInterval string `toml:"push_interval"`
	Token        string `toml:"token"`
}

// Load reads path over Default and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	if err := apply(&cfg, raw, meta); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Decode parses TOML text the same way Load parses a file.
func Decode(text string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.Decode(text, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := apply(&cfg, raw, meta); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func apply(cfg *Config, raw fileConfig, meta toml.MetaData) error {
	if meta.IsDefined("emulator", "host") {
		cfg.Emulator.Host = strings.TrimSpace(raw.Emulator.Host)
	}
	if meta.IsDefined("emulator", "port") {
		cfg.Emulator.Port = raw.Emulator.Port
	}
	if meta.IsDefined("emulator", "max_connect_attempts") {
		cfg.Emulator.MaxConnectAttempts = raw.Emulator.MaxConnectAttempts
	}
	if meta.IsDefined("emulator", "client_name") {
		cfg.Link.ClientName = strings.TrimSpace(raw.Emulator.ClientName)
	}
	if meta.IsDefined("emulator", "handshake_mode") {
		mode, err := tracelink.ParseHandshakeMode(raw.Emulator.HandshakeMode)
		if err != nil {
			return fmt.Errorf("%w: emulator.handshake_mode: %v", ErrInvalidConfig, err)
		}
		cfg.Link.HandshakeMode = mode
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"connect_timeout", raw.Emulator.ConnectTimeout, &cfg.Link.Session.ConnectTimeout},
		{"handshake_timeout", raw.Emulator.HandshakeTimeout, &cfg.Link.Session.HandshakeTimeout},
		{"receive_timeout", raw.Emulator.ReceiveTimeout, &cfg.Link.Session.ReadTimeout},
		{"write_timeout", raw.Emulator.WriteTimeout, &cfg.Link.Session.WriteTimeout},
		{"heartbeat_interval", raw.Emulator.HeartbeatInterval, &cfg.Link.Session.HeartbeatInterval},
		{"keepalive_interval", raw.Emulator.KeepAliveInterval, &cfg.Link.Session.KeepAliveInterval},
		{"disconnect_wait", raw.Emulator.DisconnectWait, &cfg.Link.Session.DisconnectWait},
	}
	for _, d := range durations {
		if !meta.IsDefined("emulator", d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return fmt.Errorf("%w: emulator.%s: %v", ErrInvalidDuration, d.key, err)
		}
		*d.dst = v
	}

	if err := applyStream(cfg, raw.Stream, meta); err != nil {
		return err
	}

	if meta.IsDefined("import", "stage_trace_comments") {
		cfg.Import.StageTraceComments = raw.Import.StageTraceComments
	}
	if meta.IsDefined("import", "classify_pointers") {
		cfg.Import.ClassifyPointers = raw.Import.ClassifyPointers
	}

	if meta.IsDefined("rom", "path") {
		cfg.ROM.Path = strings.TrimSpace(raw.ROM.Path)
	}
	if meta.IsDefined("rom", "map_mode") {
		mode, err := annotation.ParseMapMode(strings.ToLower(strings.TrimSpace(raw.ROM.MapMode)))
		if err != nil {
			return fmt.Errorf("%w: rom.map_mode: %v", ErrInvalidConfig, err)
		}
		cfg.ROM.MapMode = mode
	}

	if meta.IsDefined("admin", "listen") {
		cfg.Admin.Listen = strings.TrimSpace(raw.Admin.Listen)
	}
	if meta.IsDefined("admin", "push_interval") {
		v, err := time.ParseDuration(strings.TrimSpace(raw.Admin.PushInterval))
		if err != nil {
			return fmt.Errorf("%w: admin.push_interval: %v", ErrInvalidDuration, err)
		}
		cfg.Admin.PushInterval = v
	}
	if meta.IsDefined("admin", "token") {
		cfg.Admin.Token = strings.TrimSpace(raw.Admin.Token)
	}
	return nil
}

func applyStream(cfg *Config, raw streamFile, meta toml.MetaData) error {
	if meta.IsDefined("stream", "enabled") && !raw.Enabled {
		cfg.Link.Stream = nil
		return nil
	}
	if cfg.Link.Stream == nil {
		return nil
	}
	stream := *cfg.Link.Stream
	if meta.IsDefined("stream", "exec_trace") {
		stream.ExecTrace = raw.ExecTrace
	}
	if meta.IsDefined("stream", "memory_access") {
		stream.MemoryAccess = raw.MemoryAccess
	}
	if meta.IsDefined("stream", "cdl") {
		stream.Cdl = raw.Cdl
	}
	if meta.IsDefined("stream", "frame_interval") {
		if raw.FrameInterval < 0 || raw.FrameInterval > 0xFF {
			return fmt.Errorf("%w: stream.frame_interval %d out of range", ErrInvalidConfig, raw.FrameInterval)
		}
		stream.FrameInterval = uint8(raw.FrameInterval)
	}
	if meta.IsDefined("stream", "max_batch") {
		if raw.MaxBatch < 0 || raw.MaxBatch > 0xFFFF {
			return fmt.Errorf("%w: stream.max_batch %d out of range", ErrInvalidConfig, raw.MaxBatch)
		}
		stream.MaxBatch = uint16(raw.MaxBatch)
	}
	cfg.Link.Stream = &stream
	return nil
}

// Validate rejects settings that cannot drive a session.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Emulator.Host) == "" {
		return fmt.Errorf("%w: emulator.host is required", ErrInvalidConfig)
	}
	if c.Emulator.Port <= 0 || c.Emulator.Port > 0xFFFF {
		return fmt.Errorf("%w: emulator.port %d out of range", ErrInvalidConfig, c.Emulator.Port)
	}
	if c.Emulator.MaxConnectAttempts < 0 {
		return fmt.Errorf("%w: emulator.max_connect_attempts must not be negative", ErrInvalidConfig)
	}
	if _, err := tracelink.ParseHandshakeMode(string(c.Link.HandshakeMode)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := c.Link.Session.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Admin.Listen != "" && c.Admin.PushInterval <= 0 {
		return fmt.Errorf("%w: admin.push_interval must be positive", ErrInvalidConfig)
	}
	return nil
}
