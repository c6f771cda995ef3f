package ws

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// client adapts one WebSocket connection to the bridge.Socket contract.
// Envelope writes arrive from bus delivery goroutines as well as the session
// itself, so writes are serialized with a mutex - gorilla/websocket does not
// allow concurrent writers.
type client struct {
	id           string
	conn         *websocket.Conn
	writeTimeout time.Duration

	writeMu sync.Mutex
	closed  atomic.Bool

	connectedAt time.Time
	lastPong    atomic.Value // stores time.Time
}

func newClient(id string, conn *websocket.Conn, writeTimeout time.Duration) *client {
	c := &client{
		id:           id,
		conn:         conn,
		writeTimeout: writeTimeout,
		connectedAt:  time.Now(),
	}
	c.lastPong.Store(time.Now())
	return c
}

// WriteMessage writes one text frame to the client.
func (c *client) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// RemoteID identifies the connection for logging.
func (c *client) RemoteID() string {
	return c.id
}

func (c *client) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

// close shuts the underlying connection down once.
func (c *client) close() {
	if c.closed.CompareAndSwap(false, true) {
		_ = c.conn.Close()
	}
}
