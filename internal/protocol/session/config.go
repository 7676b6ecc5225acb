package session

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidConfig = errors.New("session: invalid config")

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines transport/session reliability defaults.
type Config struct {
	ConnectTimeout   time.Duration
	HandshakeTimeout time.Duration
	// ReadTimeout bounds one socket read; an idle read at a frame boundary
	// only re-checks cancellation.
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	HeartbeatInterval time.Duration
	KeepAliveInterval time.Duration
	DisconnectWait    time.Duration
	Backoff           BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		ConnectTimeout:    5 * time.Second,
		HandshakeTimeout:  5 * time.Second,
		ReadTimeout:       500 * time.Millisecond,
		WriteTimeout:      2 * time.Second,
		HeartbeatInterval: 5 * time.Second,
		KeepAliveInterval: 250 * time.Millisecond,
		DisconnectWait:    2 * time.Second,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}

// WithDefaults fills zero-valued fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.KeepAliveInterval <= 0 {
		c.KeepAliveInterval = d.KeepAliveInterval
	}
	if c.DisconnectWait <= 0 {
		c.DisconnectWait = d.DisconnectWait
	}
	if c.Backoff == (BackoffConfig{}) {
		c.Backoff = d.Backoff
	}
	return c
}

// Validate rejects settings that cannot drive a session. A zero
// HeartbeatInterval disables heartbeats.
func (c Config) Validate() error {
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("%w: connect timeout must be positive", ErrInvalidConfig)
	}
	if c.HandshakeTimeout <= 0 {
		return fmt.Errorf("%w: handshake timeout must be positive", ErrInvalidConfig)
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("%w: read timeout must be positive", ErrInvalidConfig)
	}
	if c.HeartbeatInterval < 0 {
		return fmt.Errorf("%w: heartbeat interval must not be negative", ErrInvalidConfig)
	}
	if c.KeepAliveInterval <= 0 {
		return fmt.Errorf("%w: keep-alive interval must be positive", ErrInvalidConfig)
	}
	if c.Backoff.Multiplier < 0 {
		return fmt.Errorf("%w: backoff multiplier must not be negative", ErrInvalidConfig)
	}
	return nil
}
