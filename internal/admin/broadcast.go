package admin

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func newClient(conn *websocket.Conn) *client {
	c := &client{
		conn: conn,
		send: make(chan []byte, 16),
	}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// Broadcaster pushes a statistics snapshot to every websocket client on a
// fixed interval.
type Broadcaster struct {
	source   Source
	interval time.Duration

	mu      sync.RWMutex
	clients map[*client]struct{}

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func NewBroadcaster(source Source, interval time.Duration) *Broadcaster {
	if interval <= 0 {
		interval = time.Second
	}
	b := &Broadcaster{
		source:   source,
		interval: interval,
		clients:  make(map[*client]struct{}),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go b.snapshotLoop()
	return b
}

// AddClient registers conn and sends it the current snapshot immediately.
func (b *Broadcaster) AddClient(conn *websocket.Conn) *client {
	c := newClient(conn)
	data, err := json.Marshal(takeSnapshot(b.source))

	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[c] = struct{}{}
	if err == nil {
		c.send <- data
	}
	return c
}

func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		close(c.send)
	}
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Close stops the push loop and drops every client.
func (b *Broadcaster) Close() {
	b.stopOnce.Do(func() { close(b.stop) })
	<-b.done

	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		delete(b.clients, c)
		close(c.send)
	}
}

func (b *Broadcaster) snapshotLoop() {
	defer close(b.done)
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			b.broadcast(takeSnapshot(b.source))
		}
	}
}

func (b *Broadcaster) broadcast(snap Snapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		log.Error().Msgf("admin.Broadcaster.broadcast marshal err=%v", err)
		return
	}

	var slow []*client
	b.mu.RLock()
	for c := range b.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	b.mu.RUnlock()

	for _, c := range slow {
		log.Warn().Msg("admin.Broadcaster.broadcast client too slow, disconnecting")
		b.RemoveClient(c)
	}
}
