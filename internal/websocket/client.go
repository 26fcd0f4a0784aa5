package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/konkon3660/graduationP/internal/autoplay"
	"github.com/konkon3660/graduationP/internal/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendQueue      = 16
)

// Client is one open control connection. Only the write pump writes to conn.
type Client struct {
	Handle autoplay.ClientHandle

	conn  *websocket.Conn
	clock clockwork.Clock
	send  chan []byte

	closeOnce sync.Once
	done      chan struct{}

	// Last logged joystick command, to keep held sticks out of the log.
	lastCommand string
	lastLogged  time.Time
}

func newClient(h autoplay.ClientHandle, conn *websocket.Conn, clock clockwork.Clock) *Client {
	return &Client{
		Handle: h,
		conn:   conn,
		clock:  clock,
		send:   make(chan []byte, sendQueue),
		done:   make(chan struct{}),
	}
}

// enqueue queues a frame without blocking. It reports false if the queue is
// full or the client is closing.
func (c *Client) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// writePump drains the send queue and keeps the connection alive with pings.
func (c *Client) writePump() {
	ticker := c.clock.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Debugf("[ws] %s write failed: %v", c.Handle, err)
				return
			}
		case <-ticker.Chan():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// shouldLog reports whether cmd is worth logging: repeats of the same
// joystick command within joystickLogInterval are suppressed.
func (c *Client) shouldLog(cmd string, joystick bool) bool {
	now := c.clock.Now()
	if joystick && cmd == c.lastCommand && now.Sub(c.lastLogged) < joystickLogInterval {
		return false
	}
	c.lastCommand = cmd
	c.lastLogged = now
	return true
}
