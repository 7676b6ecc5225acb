package livesession

import (
	"time"

	"github.com/danmuck/snestrace/internal/protocol"
	"github.com/danmuck/snestrace/internal/traceimport"
	"github.com/danmuck/snestrace/internal/tracelink"
)

// Config configures every session a Manager creates.
type Config struct {
	Link   tracelink.Config
	Import traceimport.Options
}

func DefaultConfig() Config {
	return Config{Link: tracelink.DefaultConfig()}
}

// Params addresses one emulator. Zero timeouts fall back to the link config.
type Params struct {
	Host           string
	Port           int
	ConnectTimeout time.Duration
	ReceiveTimeout time.Duration
}

func (p Params) withDefaults() Params {
	if p.Host == "" {
		p.Host = "127.0.0.1"
	}
	if p.Port == 0 {
		p.Port = protocol.DefaultPort
	}
	return p
}
