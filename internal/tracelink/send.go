package tracelink

import (
	"time"

	"github.com/danmuck/snestrace/internal/protocol/frame"
	"github.com/danmuck/snestrace/internal/protocol/message"
)

// writeTo serializes one frame onto l. Header and payload go out in a single
// Write under writeMu.
func (c *Client) writeTo(l *link, m message.Encoder) error {
	buf, err := frame.AppendFrame(nil, frame.Frame{Type: m.Type(), Payload: m.Encode()}, c.cfg.Limits)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.cfg.Session.WriteTimeout > 0 {
		_ = l.conn.SetWriteDeadline(time.Now().Add(c.cfg.Session.WriteTimeout))
	}
	_, err = l.conn.Write(buf)
	return err
}

func (c *Client) send(m message.Encoder) error {
	c.mu.Lock()
	l := c.link
	c.mu.Unlock()
	if l == nil {
		return ErrNotConnected
	}
	return c.writeTo(l, m)
}

func (c *Client) SendHeartbeat() error {
	return c.send(message.Heartbeat{})
}

// RequestCPUState asks for an immediate register snapshot; the answer
// arrives through subscribers as a message.CPUState.
func (c *Client) RequestCPUState() error {
	return c.send(message.CPUStateRequest{})
}

func (c *Client) ConfigureStream(cfg message.StreamConfig) error {
	return c.send(cfg)
}

func (c *Client) AddBreakpoint(kind message.BreakpointKind, start, end uint32) error {
	return c.send(message.Breakpoint{Kind: kind, Start: start, End: end})
}

func (c *Client) RemoveBreakpoint(kind message.BreakpointKind, start, end uint32) error {
	return c.send(message.Breakpoint{Remove: true, Kind: kind, Start: start, End: end})
}

func (c *Client) AddLabel(addr uint32, name, comment string) error {
	return c.send(message.Label{Address: addr, Name: name, Comment: comment})
}

func (c *Client) UpdateLabel(addr uint32, name, comment string) error {
	return c.send(message.Label{Update: true, Address: addr, Name: name, Comment: comment})
}

func (c *Client) DeleteLabel(addr uint32) error {
	return c.send(message.LabelDelete{Address: addr})
}
