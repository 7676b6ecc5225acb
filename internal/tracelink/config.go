package tracelink

import (
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/snestrace/internal/protocol"
	"github.com/danmuck/snestrace/internal/protocol/frame"
	"github.com/danmuck/snestrace/internal/protocol/message"
	"github.com/danmuck/snestrace/internal/protocol/session"
)

var ErrInvalidHandshakeMode = errors.New("tracelink: invalid handshake mode")

// HandshakeMode selects which side speaks first.
type HandshakeMode string

const (
	// HandshakeClientFirst sends the local handshake, then waits for the remote one.
	HandshakeClientFirst HandshakeMode = "client-first"
	// HandshakeServerFirst only waits for the remote handshake.
	HandshakeServerFirst HandshakeMode = "server-first"
)

func ParseHandshakeMode(raw string) (HandshakeMode, error) {
	switch HandshakeMode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", HandshakeClientFirst:
		return HandshakeClientFirst, nil
	case HandshakeServerFirst:
		return HandshakeServerFirst, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidHandshakeMode, raw)
}

// Config configures one Client.
type Config struct {
	Session       session.Config
	Limits        frame.Limits
	HandshakeMode HandshakeMode
	ClientName    string
	// Local describes the ROM loaded on this side; it is sent in
	// client-first mode.
	Local message.Handshake
	// Stream, when set, is sent right after the handshake ack.
	Stream *message.StreamConfig
}

func DefaultConfig() Config {
	return Config{
		Session:       session.DefaultConfig(),
		Limits:        frame.DefaultLimits(),
		HandshakeMode: HandshakeClientFirst,
		ClientName:    "snestrace",
		Local: message.Handshake{
			VersionMajor: protocol.VersionMajor,
			VersionMinor: protocol.VersionMinor,
		},
		Stream: &message.StreamConfig{
			ExecTrace:     true,
			Cdl:           true,
			FrameInterval: 1,
			MaxBatch:      256,
		},
	}
}

func (c Config) withDefaults() Config {
	c.Session = c.Session.WithDefaults()
	if c.Limits.MaxPayloadBytes == 0 {
		c.Limits = frame.DefaultLimits()
	}
	if c.HandshakeMode == "" {
		c.HandshakeMode = HandshakeClientFirst
	}
	if strings.TrimSpace(c.ClientName) == "" {
		c.ClientName = "snestrace"
	}
	if c.Local.VersionMajor == 0 {
		c.Local.VersionMajor = protocol.VersionMajor
		c.Local.VersionMinor = protocol.VersionMinor
	}
	return c
}
