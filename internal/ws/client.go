// Package ws carries the event feed over a WebSocket connection for
// consumers whose infrastructure handles sockets better than long-lived
// HTTP responses. Each event line travels as one text message.
package ws

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Send buffer size per client.
	sendBufferSize = 256
)

var (
	// ErrSlowConsumer reports a full send buffer; the subscriber cannot
	// keep up and is disconnected rather than allowed to apply
	// backpressure to the broadcast path.
	ErrSlowConsumer = errors.New("send buffer full")

	// ErrClientClosed reports a write to an already closed client.
	ErrClientClosed = errors.New("websocket client closed")
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Client adapts one WebSocket connection to a feed session sink.
type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	connID string
	logger *zap.Logger

	closeOnce    sync.Once
	closed       chan struct{}
	disconnected chan struct{}
}

// Accept upgrades the request and starts the read/write pumps.
func Accept(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (*Client, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}

	c := &Client{
		conn:         conn,
		send:         make(chan []byte, sendBufferSize),
		connID:       uuid.New().String(),
		logger:       logger,
		closed:       make(chan struct{}),
		disconnected: make(chan struct{}),
	}

	go c.writePump()
	go c.readPump()

	logger.Debug("websocket client connected", zap.String("connID", c.connID))
	return c, nil
}

// ConnID returns the connection identifier, for logging.
func (c *Client) ConnID() string { return c.connID }

// Disconnected is closed once the peer goes away.
func (c *Client) Disconnected() <-chan struct{} { return c.disconnected }

// WriteLine implements the session sink: one event line per text message.
func (c *Client) WriteLine(line []byte) error {
	msg := make([]byte, len(line))
	copy(msg, line)
	return c.enqueue(msg)
}

// WriteKeepAlive sends the bare keep-alive token.
func (c *Client) WriteKeepAlive() error {
	return c.enqueue([]byte("\n"))
}

func (c *Client) enqueue(msg []byte) error {
	select {
	case <-c.closed:
		return ErrClientClosed
	default:
	}

	select {
	case c.send <- msg:
		return nil
	default:
		return ErrSlowConsumer
	}
}

// Close shuts the connection down. Idempotent.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
	return nil
}

// readPump discards inbound frames; the feed is one-way. It exists to
// notice the peer disconnecting and to answer pings.
func (c *Client) readPump() {
	defer func() {
		close(c.disconnected)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read error",
					zap.String("connID", c.connID),
					zap.Error(err),
				)
			}
			return
		}
	}
}

// writePump writes queued lines and transport pings to the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Debug("websocket write error",
					zap.String("connID", c.connID),
					zap.Error(err),
				)
				return
			}

		case <-c.closed:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
