package livesession

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/snestrace/internal/protocol/message"
	"github.com/danmuck/snestrace/internal/protocol/session"
	"github.com/danmuck/snestrace/internal/traceimport"
	"github.com/danmuck/snestrace/internal/tracelink"
	"github.com/rs/zerolog/log"
)

var ErrSessionActive = errors.New("livesession: session already active")

// liveSession bundles the resources of one connection.
type liveSession struct {
	client      *tracelink.Client
	importer    *traceimport.Importer
	unsubscribe func()
	cancel      context.CancelFunc
	keepDone    chan struct{}
}

// Manager guarantees at most one live client. Connect and Disconnect are
// serialized by mu; only the wait for the keep-alive task happens outside it.
type Manager struct {
	store traceimport.Store
	cfg   Config

	mu      sync.Mutex
	session *liveSession

	// Read paths use these so status queries never wait behind a connect.
	client   atomic.Pointer[tracelink.Client]
	importer atomic.Pointer[traceimport.Importer]
}

func New(store traceimport.Store, cfg Config) *Manager {
	return &Manager{store: store, cfg: cfg}
}

// Connect reports whether a session reached HandshakeComplete.
func (m *Manager) Connect(host string, port int) bool {
	return m.ConnectContext(context.Background(), Params{Host: host, Port: port}) == nil
}

// ConnectContext tears down any prior session, then connects, handshakes and
// starts the keep-alive task. On failure nothing from the attempt survives.
func (m *Manager) ConnectContext(ctx context.Context, p Params) error {
	m.Disconnect()
	p = p.withDefaults()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != nil {
		return ErrSessionActive
	}

	linkCfg := m.cfg.Link
	if linkCfg.Local.ROMSize == 0 {
		linkCfg.Local.ROMSize = uint32(m.store.ROMSize())
	}
	if cs, ok := m.store.(interface{ Checksum() uint32 }); ok && linkCfg.Local.ROMChecksum == 0 {
		linkCfg.Local.ROMChecksum = cs.Checksum()
	}
	if n, ok := m.store.(interface{ Name() string }); ok && linkCfg.Local.ROMName == "" {
		linkCfg.Local.ROMName = n.Name()
	}

	client := tracelink.NewClient(linkCfg)
	im := traceimport.New(m.store, m.cfg.Import)
	unsubscribe := client.Subscribe(im.HandleMessage)
	m.client.Store(client)
	m.importer.Store(im)

	if err := client.Connect(ctx, p.Host, p.Port, p.ConnectTimeout, p.ReceiveTimeout); err != nil {
		unsubscribe()
		_ = client.Disconnect()
		im.Discard()
		log.Warn().Msgf("livesession.Manager.Connect failed host=%q port=%d err=%v", p.Host, p.Port, err)
		return err
	}

	keepCtx, cancel := context.WithCancel(context.Background())
	s := &liveSession{
		client:      client,
		importer:    im,
		unsubscribe: unsubscribe,
		cancel:      cancel,
		keepDone:    make(chan struct{}),
	}
	go s.keepAlive(keepCtx, linkCfg.Session.WithDefaults())
	m.session = s
	log.Info().Msgf("livesession.Manager.Connect ready host=%q port=%d", p.Host, p.Port)
	return nil
}

// ConnectWithRetry retries ConnectContext with backoff until it succeeds,
// attempts are exhausted (attempts <= 0 means unbounded), or ctx ends.
func (m *Manager) ConnectWithRetry(ctx context.Context, p Params, attempts int) error {
	backoff := m.cfg.Link.Session.WithDefaults().Backoff
	backoff.Jitter = false
	for attempt := 1; ; attempt++ {
		err := m.ConnectContext(ctx, p)
		if err == nil {
			return nil
		}
		if attempts > 0 && attempt >= attempts {
			return err
		}
		delay := session.NextBackoffDelay(backoff, attempt, nil)
		log.Warn().Msgf("livesession.Manager.ConnectWithRetry attempt=%d delay=%s err=%v", attempt, delay, err)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Disconnect ends the current session and finalizes its importer, returning
// the session's modified byte count. Without a session it returns 0.
func (m *Manager) Disconnect() uint64 {
	m.mu.Lock()
	s := m.session
	if s == nil {
		m.mu.Unlock()
		return 0
	}
	s.cancel()
	m.mu.Unlock()

	wait := m.cfg.Link.Session.WithDefaults().DisconnectWait
	select {
	case <-s.keepDone:
	case <-time.After(wait):
		log.Warn().Msg("livesession.Manager.Disconnect keep-alive did not stop within bound")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != s {
		return 0
	}
	m.session = nil
	_ = s.client.Disconnect()
	s.unsubscribe()
	s.importer.Finalize()
	modified := s.importer.Statistics().BytesModified
	log.Info().Msgf("livesession.Manager.Disconnect finalized bytes_modified=%d", modified)
	return modified
}

// IsConnected reports whether the current client has completed its handshake.
func (m *Manager) IsConnected() bool {
	c := m.client.Load()
	return c != nil && c.IsConnected()
}

// State is the current client's state, or Disconnected before any connect.
func (m *Manager) State() tracelink.State {
	c := m.client.Load()
	if c == nil {
		return tracelink.StateDisconnected
	}
	return c.State()
}

// CurrentStatistics returns the live session's counters, or those of the
// most recent session once it has ended.
func (m *Manager) CurrentStatistics() traceimport.Statistics {
	im := m.importer.Load()
	if im == nil {
		return traceimport.Statistics{}
	}
	return im.Statistics()
}

// Client exposes the current link for breakpoint, label and stream control.
func (m *Manager) Client() *tracelink.Client {
	return m.client.Load()
}

// RemoteHandshake returns the emulator's handshake for the live session.
func (m *Manager) RemoteHandshake() (message.Handshake, bool) {
	c := m.client.Load()
	if c == nil {
		return message.Handshake{}, false
	}
	return c.RemoteHandshake()
}

// Done is closed when the live session's keep-alive task ends, either
// because the link dropped or Disconnect was called.
func (m *Manager) Done() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return m.session.keepDone
}

// keepAlive polls link liveness and emits heartbeats until cancelled or the
// client leaves HandshakeComplete.
func (s *liveSession) keepAlive(ctx context.Context, cfg session.Config) {
	defer close(s.keepDone)
	ticker := time.NewTicker(cfg.KeepAliveInterval)
	defer ticker.Stop()
	lastBeat := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if !s.client.IsConnected() {
				log.Info().Msgf("livesession.keepAlive link ended state=%s", s.client.State())
				return
			}
			if cfg.HeartbeatInterval <= 0 || now.Sub(lastBeat) < cfg.HeartbeatInterval {
				continue
			}
			lastBeat = now
			if err := s.client.SendHeartbeat(); err != nil {
				log.Warn().Msgf("livesession.keepAlive heartbeat failed err=%v", err)
			}
		}
	}
}
