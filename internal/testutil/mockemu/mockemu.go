// Package mockemu is a scripted emulator peer for exercising the trace link
// over real loopback TCP.
package mockemu

import (
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/danmuck/snestrace/internal/protocol"
	"github.com/danmuck/snestrace/internal/protocol/frame"
	"github.com/danmuck/snestrace/internal/protocol/message"
)

var ErrUnexpectedFrame = errors.New("mockemu: unexpected frame")

// Server accepts emulator-side connections on 127.0.0.1.
type Server struct {
	ln    net.Listener
	conns chan net.Conn
	done  chan struct{}
}

func Start(t *testing.T) *Server {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("mockemu listen: %v", err)
	}
	s := &Server{
		ln:    ln,
		conns: make(chan net.Conn, 8),
		done:  make(chan struct{}),
	}
	go s.acceptLoop()
	t.Cleanup(s.Close)
	return s
}

func (s *Server) acceptLoop() {
	defer close(s.done)
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.conns <- conn
	}
}

func (s *Server) Host() string {
	return s.ln.Addr().(*net.TCPAddr).IP.String()
}

func (s *Server) Port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

// Accept waits for the next client connection.
func (s *Server) Accept(timeout time.Duration) (*Peer, error) {
	select {
	case conn := <-s.conns:
		return &Peer{conn: conn}, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("mockemu: no connection within %v", timeout)
	}
}

func (s *Server) Close() {
	_ = s.ln.Close()
	<-s.done
	for {
		select {
		case conn := <-s.conns:
			_ = conn.Close()
		default:
			return
		}
	}
}

// Peer is the emulator side of one accepted connection.
type Peer struct {
	conn net.Conn
}

func (p *Peer) Send(m message.Encoder) error {
	return frame.WriteFrame(p.conn, frame.Frame{Type: m.Type(), Payload: m.Encode()}, frame.DefaultLimits())
}

// SendRaw writes bytes verbatim, for malformed or partial frames.
func (p *Peer) SendRaw(b []byte) error {
	_, err := p.conn.Write(b)
	return err
}

// ReadFrame reads the next frame from the client.
func (p *Peer) ReadFrame(timeout time.Duration) (frame.Frame, error) {
	_ = p.conn.SetReadDeadline(time.Now().Add(timeout))
	defer p.conn.SetReadDeadline(time.Time{})
	return frame.ReadFrame(p.conn, frame.DefaultLimits())
}

// Expect reads frames until one of type t arrives, skipping heartbeats.
func (p *Peer) Expect(t protocol.MessageType, timeout time.Duration) (message.Message, error) {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("mockemu: timed out waiting for %s", t)
		}
		fr, err := p.ReadFrame(remaining)
		if err != nil {
			return nil, err
		}
		if fr.Type == protocol.MsgHeartbeat && t != protocol.MsgHeartbeat {
			continue
		}
		if fr.Type != t {
			return nil, fmt.Errorf("%w: got %s want %s", ErrUnexpectedFrame, fr.Type, t)
		}
		return message.Decode(fr.Type, fr.Payload)
	}
}

func (p *Peer) Close() error {
	return p.conn.Close()
}

// HandshakeOptions scripts the emulator side of the handshake.
type HandshakeOptions struct {
	Remote       message.Handshake
	ClientFirst  bool
	ExpectStream bool
	Timeout      time.Duration
}

// HandshakeResult is what the client sent during the handshake.
type HandshakeResult struct {
	Client message.Handshake
	Ack    message.HandshakeAck
	Stream message.StreamConfig
}

// Handshake plays the emulator side of a successful handshake.
func (p *Peer) Handshake(opts HandshakeOptions) (HandshakeResult, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}
	var out HandshakeResult
	if opts.ClientFirst {
		m, err := p.Expect(protocol.MsgHandshake, opts.Timeout)
		if err != nil {
			return out, err
		}
		out.Client = m.(message.Handshake)
	}
	if err := p.Send(opts.Remote); err != nil {
		return out, err
	}
	m, err := p.Expect(protocol.MsgHandshakeAck, opts.Timeout)
	if err != nil {
		return out, err
	}
	out.Ack = m.(message.HandshakeAck)
	if opts.ExpectStream {
		m, err := p.Expect(protocol.MsgStreamConfig, opts.Timeout)
		if err != nil {
			return out, err
		}
		out.Stream = m.(message.StreamConfig)
	}
	return out, nil
}

// DefaultRemote is a version-compatible emulator handshake for a 1 MiB ROM.
func DefaultRemote() message.Handshake {
	return message.Handshake{
		VersionMajor: protocol.VersionMajor,
		VersionMinor: protocol.VersionMinor,
		ROMChecksum:  0,
		ROMSize:      0x100000,
		ROMName:      "MOCK ROM",
	}
}
