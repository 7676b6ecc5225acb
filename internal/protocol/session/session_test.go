package session

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/danmuck/snestrace/internal/testutil/testlog"
)

func TestNextBackoffDelayDeterministicNoJitter(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       false,
	}
	if got := NextBackoffDelay(cfg, 1, nil); got != 250*time.Millisecond {
		t.Fatalf("attempt1 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 2, nil); got != 500*time.Millisecond {
		t.Fatalf("attempt2 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 3, nil); got != time.Second {
		t.Fatalf("attempt3 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 6, nil); got != 5*time.Second {
		t.Fatalf("attempt6 got=%v", got)
	}
}

func TestNextBackoffDelayJitterBounds(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{InitialDelay: 100 * time.Millisecond, Multiplier: 2.0, MaxDelay: time.Second, Jitter: true}
	rng := rand.New(rand.NewSource(7))
	for attempt := 2; attempt < 10; attempt++ {
		got := NextBackoffDelay(cfg, attempt, rng)
		if got < 0 || got > 1500*time.Millisecond {
			t.Fatalf("attempt=%d jittered delay out of bounds: %v", attempt, got)
		}
	}
}

func TestConfigWithDefaults(t *testing.T) {
	testlog.Start(t)
	cfg := Config{ReadTimeout: 50 * time.Millisecond}.WithDefaults()
	d := DefaultConfig()
	if cfg.ReadTimeout != 50*time.Millisecond {
		t.Fatalf("explicit read timeout overwritten: %v", cfg.ReadTimeout)
	}
	if cfg.ConnectTimeout != d.ConnectTimeout || cfg.DisconnectWait != d.DisconnectWait || cfg.Backoff != d.Backoff {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.HeartbeatInterval != 0 {
		t.Fatalf("zero heartbeat interval must stay disabled, got %v", cfg.HeartbeatInterval)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultConfig()
	cfg.HeartbeatInterval = -time.Second
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	cfg = DefaultConfig()
	cfg.ReadTimeout = 0
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
