// internal/ws/conn.go
package ws

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/parlor-games/parlor/internal/protocol"
)

// outBuffer bounds the per-connection outbound queue. A client too slow to
// drain it loses messages rather than stalling the room; it will resync via
// a fresh snapshot on reconnect.
const outBuffer = 32

// writeTimeout bounds a single frame write to a client.
const writeTimeout = 3 * time.Second

// Conn wraps a WebSocket connection with a buffered outbound channel drained
// by a single write pump, so that room processing never blocks on a slow
// client. The player binding is set once the client identifies itself via
// create/join/reconnect; it is written by the read loop and read from the
// heartbeat and room goroutines, hence the atomic.
type Conn struct {
	sock   *websocket.Conn
	logger *logrus.Logger

	playerID atomic.Pointer[uuid.UUID]

	out       chan []byte
	closeOnce sync.Once

	// lastPong is the unix time of the most recent pong, for the liveness
	// check. Updated from the read loop, read by the heartbeat goroutine.
	lastPong atomic.Int64
}

// NewConn wraps an accepted WebSocket connection.
func NewConn(sock *websocket.Conn, logger *logrus.Logger) *Conn {
	c := &Conn{
		sock:   sock,
		logger: logger,
		out:    make(chan []byte, outBuffer),
	}
	c.lastPong.Store(time.Now().Unix())
	return c
}

// BindPlayer records the player identity this connection speaks for. Binding
// uuid.Nil returns the connection to anonymous.
func (c *Conn) BindPlayer(id uuid.UUID) {
	c.playerID.Store(&id)
}

// PlayerID returns the bound player identity, or uuid.Nil for an anonymous
// connection.
func (c *Conn) PlayerID() uuid.UUID {
	if p := c.playerID.Load(); p != nil {
		return *p
	}
	return uuid.Nil
}

// Send marshals an event and queues it. Safe to call from any goroutine.
func (c *Conn) Send(ev protocol.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		c.logger.Errorf("ws: marshal event %s: %v", ev.Type, err)
		return
	}
	c.SendRaw(data)
}

// SendRaw queues pre-marshaled bytes without blocking. Drops (with a warning)
// if the outbound buffer is full or the connection is closing.
func (c *Conn) SendRaw(data []byte) {
	defer func() {
		// The out channel closes during teardown; a racing send is a
		// dropped message, not a crash.
		recover()
	}()
	select {
	case c.out <- data:
	default:
		c.logger.Warnf("ws: outbound buffer full for player %s, dropping message", c.PlayerID())
	}
}

// WritePump drains the outbound channel onto the socket. It exits when the
// channel closes or a write fails; a failed write is treated as an implicit
// disconnect by the read loop noticing the closed socket.
func (c *Conn) WritePump(ctx context.Context) {
	for data := range c.out {
		writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
		err := c.sock.Write(writeCtx, websocket.MessageText, data)
		cancel()
		if err != nil {
			c.logger.Debugf("ws: write to player %s failed: %v", c.PlayerID(), err)
			return
		}
	}
}

// Close shuts the outbound channel and the socket. Idempotent.
func (c *Conn) Close(code websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		close(c.out)
		c.sock.Close(code, reason)
	})
}

// TouchPong records liveness from a pong frame.
func (c *Conn) TouchPong() {
	c.lastPong.Store(time.Now().Unix())
}

// LastPong returns when the connection last answered a ping.
func (c *Conn) LastPong() time.Time {
	return time.Unix(c.lastPong.Load(), 0)
}
