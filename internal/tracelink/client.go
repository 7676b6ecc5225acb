package tracelink

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/snestrace/internal/observability"
	"github.com/danmuck/snestrace/internal/protocol"
	"github.com/danmuck/snestrace/internal/protocol/frame"
	"github.com/danmuck/snestrace/internal/protocol/message"
	"github.com/rs/zerolog/log"
)

var (
	ErrAlreadyConnected = errors.New("tracelink: already connected")
	ErrNotConnected     = errors.New("tracelink: not connected")
	ErrHandshakeTimeout = errors.New("tracelink: handshake timeout")
	ErrLinkClosed       = errors.New("tracelink: link closed")
)

// ErrorCodeVersion is sent to the emulator when its handshake version is rejected.
const ErrorCodeVersion uint16 = 1

// Handler receives every decoded inbound message, in arrival order, on the
// receive loop goroutine.
type Handler func(message.Message)

type subscription struct {
	id uint64
	fn Handler
}

// link is the per-connection state owned by one receive loop.
type link struct {
	conn      net.Conn
	stop      chan struct{}
	stopOnce  sync.Once
	done      chan struct{}
	handshake chan message.Handshake
	err       error
}

func newLink(conn net.Conn) *link {
	return &link{
		conn:      conn,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		handshake: make(chan message.Handshake, 1),
	}
}

func (l *link) cancel() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *link) stopping() bool {
	select {
	case <-l.stop:
		return true
	default:
		return false
	}
}

// Client owns at most one emulator connection at a time.
type Client struct {
	cfg Config

	// notifyMu orders transitions so observers see them in sequence.
	notifyMu sync.Mutex
	mu       sync.Mutex
	state    State
	link     *link
	remote   *message.Handshake
	lastErr  error

	writeMu sync.Mutex

	subMu     sync.RWMutex
	subs      []subscription
	nextSub   uint64
	observers []StateObserver

	lastFrameAt atomic.Int64
	framesIn    atomic.Uint64
}

func NewClient(cfg Config) *Client {
	return &Client{cfg: cfg.withDefaults(), state: StateDisconnected}
}

// Subscribe registers h for every inbound message and returns its removal func.
func (c *Client) Subscribe(h Handler) func() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.nextSub++
	id := c.nextSub
	next := make([]subscription, 0, len(c.subs)+1)
	next = append(next, c.subs...)
	c.subs = append(next, subscription{id: id, fn: h})

	var once sync.Once
	return func() {
		once.Do(func() {
			c.subMu.Lock()
			defer c.subMu.Unlock()
			kept := make([]subscription, 0, len(c.subs))
			for _, s := range c.subs {
				if s.id != id {
					kept = append(kept, s)
				}
			}
			c.subs = kept
		})
	}
}

// OnStateChange registers an observer. Observers run synchronously inside the
// transition and must not call Connect or Disconnect.
func (c *Client) OnStateChange(o StateObserver) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.observers = append(c.observers, o)
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports a completed handshake on a live socket.
func (c *Client) IsConnected() bool {
	return c.State() == StateHandshakeComplete
}

// Err returns the failure that moved the client to StateError, if any.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// RemoteHandshake returns the handshake received on the current connection.
func (c *Client) RemoteHandshake() (message.Handshake, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.remote == nil {
		return message.Handshake{}, false
	}
	return *c.remote, true
}

func (c *Client) FramesReceived() uint64 {
	return c.framesIn.Load()
}

func (c *Client) LastFrameAt() time.Time {
	ns := c.lastFrameAt.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// transition runs update under c.mu and, when it reports a change, notifies
// observers before returning.
func (c *Client) transition(update func() (State, bool)) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	from := c.state
	to, ok := update()
	if ok {
		c.state = to
	}
	c.mu.Unlock()

	if !ok || from == to {
		return
	}
	observability.SetLinkState(int(to))
	log.Debug().Msgf("tracelink.Client.transition from=%s to=%s", from, to)

	c.subMu.RLock()
	observers := c.observers
	c.subMu.RUnlock()
	for _, o := range observers {
		o(from, to)
	}
}

// Connect dials the emulator, starts the receive loop and completes the
// handshake before returning. On any failure every acquired resource is
// released and the client is left in StateError.
func (c *Client) Connect(ctx context.Context, host string, port int, connectTimeout, receiveTimeout time.Duration) error {
	busy := false
	c.transition(func() (State, bool) {
		if c.state.Active() {
			busy = true
			return c.state, false
		}
		c.lastErr = nil
		c.remote = nil
		return StateConnecting, true
	})
	if busy {
		return ErrAlreadyConnected
	}

	if connectTimeout <= 0 {
		connectTimeout = c.cfg.Session.ConnectTimeout
	}
	if receiveTimeout <= 0 {
		receiveTimeout = c.cfg.Session.ReadTimeout
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	dialer := net.Dialer{Timeout: connectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		err = fmt.Errorf("tracelink: dial %s: %w", addr, err)
		log.Warn().Msgf("tracelink.Client.Connect dial failed addr=%q err=%v", addr, err)
		c.abort(nil, err)
		return err
	}

	l := newLink(conn)
	c.transition(func() (State, bool) {
		c.link = l
		return StateConnected, true
	})
	go c.receiveLoop(l, receiveTimeout)

	if c.cfg.HandshakeMode == HandshakeClientFirst {
		if err := c.writeTo(l, c.cfg.Local); err != nil {
			c.abort(l, fmt.Errorf("tracelink: send handshake: %w", err))
			return err
		}
	}

	remote, err := c.awaitHandshake(ctx, l)
	if err != nil {
		c.abort(l, err)
		return err
	}
	if err := remote.CheckVersion(); err != nil {
		_ = c.writeTo(l, message.Error{Code: ErrorCodeVersion, Text: err.Error()})
		c.abort(l, err)
		return err
	}

	ack := message.HandshakeAck{
		VersionMajor: protocol.VersionMajor,
		VersionMinor: protocol.VersionMinor,
		Accepted:     true,
		ClientName:   c.cfg.ClientName,
	}
	if err := c.writeTo(l, ack); err != nil {
		c.abort(l, fmt.Errorf("tracelink: send handshake ack: %w", err))
		return err
	}
	if c.cfg.Stream != nil {
		if err := c.writeTo(l, *c.cfg.Stream); err != nil {
			c.abort(l, fmt.Errorf("tracelink: send stream config: %w", err))
			return err
		}
	}

	lost := false
	c.transition(func() (State, bool) {
		if c.link != l {
			lost = true
			return c.state, false
		}
		c.remote = &remote
		return StateHandshakeComplete, true
	})
	if lost {
		c.abort(l, ErrLinkClosed)
		return ErrLinkClosed
	}

	observability.RecordConnect(true)
	log.Info().Msgf(
		"tracelink.Client.Connect ready addr=%q remote_rom=%q rom_size=%d version=%d.%d",
		addr,
		remote.ROMName,
		remote.ROMSize,
		remote.VersionMajor,
		remote.VersionMinor,
	)
	return nil
}

func (c *Client) awaitHandshake(ctx context.Context, l *link) (message.Handshake, error) {
	timer := time.NewTimer(c.cfg.Session.HandshakeTimeout)
	defer timer.Stop()
	select {
	case h := <-l.handshake:
		return h, nil
	case <-l.done:
		select {
		case h := <-l.handshake:
			return h, nil
		default:
		}
		if l.err != nil {
			return message.Handshake{}, fmt.Errorf("%w: %v", ErrLinkClosed, l.err)
		}
		return message.Handshake{}, ErrLinkClosed
	case <-timer.C:
		return message.Handshake{}, ErrHandshakeTimeout
	case <-ctx.Done():
		return message.Handshake{}, ctx.Err()
	}
}

// abort releases a partially established connection. l may be nil when the
// dial itself failed.
func (c *Client) abort(l *link, cause error) {
	if l != nil {
		l.cancel()
		_ = l.conn.Close()
		c.waitLoop(l)
	}
	c.transition(func() (State, bool) {
		if c.link != nil && c.link != l {
			return c.state, false
		}
		if l == nil && c.state != StateConnecting {
			return c.state, false
		}
		if l != nil && c.link == nil && c.state == StateDisconnected {
			return c.state, false
		}
		c.link = nil
		c.remote = nil
		c.lastErr = cause
		return StateError, true
	})
	observability.RecordConnect(false)
}

// waitLoop waits for the receive loop, bounded by DisconnectWait. The socket
// is closed first if the bound expires so the loop's blocked read returns.
func (c *Client) waitLoop(l *link) bool {
	timer := time.NewTimer(c.cfg.Session.DisconnectWait)
	defer timer.Stop()
	select {
	case <-l.done:
		return true
	case <-timer.C:
	}
	_ = l.conn.Close()
	timer.Reset(c.cfg.Session.DisconnectWait)
	select {
	case <-l.done:
		return true
	case <-timer.C:
		log.Warn().Msg("tracelink.Client.waitLoop receive loop did not exit within bound")
		return false
	}
}

// Disconnect sends a best-effort Disconnect, stops the receive loop, waits
// for it (bounded) and releases the socket. Calling it without a live
// connection is a no-op.
func (c *Client) Disconnect() error {
	var l *link
	c.transition(func() (State, bool) {
		l = c.link
		c.link = nil
		if l == nil && c.state == StateError {
			return StateDisconnected, true
		}
		return c.state, false
	})
	if l == nil {
		return nil
	}

	_ = c.writeTo(l, message.Disconnect{})
	l.cancel()
	c.waitLoop(l)
	_ = l.conn.Close()

	c.transition(func() (State, bool) {
		if c.link != nil {
			return c.state, false
		}
		c.remote = nil
		return StateDisconnected, true
	})
	log.Info().Msgf("tracelink.Client.Disconnect closed frames=%d", c.framesIn.Load())
	return nil
}

func (c *Client) receiveLoop(l *link, timeout time.Duration) {
	defer close(l.done)
	r := &streamReader{conn: l.conn, timeout: timeout, stop: l.stop}
	for {
		select {
		case <-l.stop:
			c.loopExit(l, nil)
			return
		default:
		}

		r.begin()
		fr, err := frame.ReadFrame(r, c.cfg.Limits)
		if err != nil {
			if errors.Is(err, errIdle) {
				continue
			}
			c.loopExit(l, err)
			return
		}
		c.framesIn.Add(1)
		c.lastFrameAt.Store(time.Now().UnixNano())
		observability.RecordFrame(fr.Type.String(), len(fr.Payload))

		msg, err := message.Decode(fr.Type, fr.Payload)
		if err != nil {
			c.loopExit(l, err)
			return
		}
		if h, ok := msg.(message.Handshake); ok {
			select {
			case l.handshake <- h:
			default:
			}
		}
		c.dispatch(msg)
		if _, ok := msg.(message.Disconnect); ok {
			c.loopExit(l, frame.ErrPeerClosed)
			return
		}
	}
}

// loopExit records why the loop ended. When cancellation was requested the
// canceller owns teardown; otherwise the loop releases the socket itself.
func (c *Client) loopExit(l *link, err error) {
	l.err = err
	if l.stopping() {
		return
	}
	clean := err == nil || errors.Is(err, frame.ErrPeerClosed)
	if clean {
		log.Info().Msg("tracelink.Client.receiveLoop peer closed connection")
	} else {
		observability.RecordProtocolError(errorReason(err))
		log.Error().Msgf("tracelink.Client.receiveLoop session ended err=%v", err)
	}
	c.transition(func() (State, bool) {
		if c.link != l {
			return c.state, false
		}
		c.link = nil
		if clean {
			return StateDisconnected, true
		}
		c.lastErr = err
		return StateError, true
	})
	_ = l.conn.Close()
}

func (c *Client) dispatch(msg message.Message) {
	c.subMu.RLock()
	subs := c.subs
	c.subMu.RUnlock()
	for _, s := range subs {
		c.deliver(s, msg)
	}
}

func (c *Client) deliver(s subscription, msg message.Message) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Msgf("tracelink.Client.dispatch subscriber panic type=%s err=%v", msg.Type(), r)
		}
	}()
	s.fn(msg)
}

func errorReason(err error) string {
	switch {
	case errors.Is(err, frame.ErrShortHeader):
		return "short_header"
	case errors.Is(err, frame.ErrShortPayload):
		return "short_payload"
	case errors.Is(err, frame.ErrPayloadTooLarge):
		return "payload_too_large"
	case errors.Is(err, protocol.ErrMalformedHeader):
		return "malformed_header"
	case errors.Is(err, protocol.ErrTruncated), errors.Is(err, protocol.ErrInvalidLength):
		return "bad_payload"
	}
	return "io"
}
