package gateway

import (
	"errors"
	"sync"
	"time"

	"github.com/arcadelab/pusher/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

// WSConn is an indirection over *websocket.Conn to ease testing.
type WSConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(mt int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Conn wraps one client websocket. Writes go through a buffered send
// channel drained by a single writePump; TrySend drops on backpressure
// rather than stall the caller.
type Conn struct {
	id   domain.ConnID
	ws   WSConn
	send chan []byte

	mu     sync.RWMutex
	closed bool

	// user and room are guarded by the controller mutex, not conn.mu.
	user domain.UserID
	room domain.RoomID

	connectedAt time.Time
}

func newConn(id domain.ConnID, ws WSConn) *Conn {
	return &Conn{
		id:          id,
		ws:          ws,
		send:        make(chan []byte, 32),
		connectedAt: time.Now(),
	}
}

func (c *Conn) TrySend(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- data:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *Conn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	if c.ws != nil {
		_ = c.ws.Close()
	}
	c.mu.Unlock()
}
