package websocket

import (
	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Connection serializes writes to one gorilla connection; gorilla allows a single concurrent writer.
type Connection struct {
	conn      *websocket.Conn
	userID    string
	auctionID string
	log       logger.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

var _ domain.WebSocketConnection = (*Connection)(nil)

func NewConnection(conn *websocket.Conn, userID, auctionID string, log logger.Logger) *Connection {
	return &Connection{
		conn:      conn,
		userID:    userID,
		auctionID: auctionID,
		log:       log,
		closed:    make(chan struct{}),
	}
}

func (c *Connection) Send(message interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteJSON(message)
}

// Close sends a close frame once and releases the socket.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "auction closed"),
			time.Now().Add(writeWait))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

func (c *Connection) UserID() string {
	return c.userID
}

func (c *Connection) AuctionID() string {
	return c.auctionID
}

// ReadLoop consumes client frames until the peer goes away, answering "ping" messages
// and keeping the read deadline fresh with pongs.
func (c *Connection) ReadLoop() {
	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg map[string]interface{}
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Error("Failed to read message", "user_id", c.userID, "error", err)
			}
			return
		}

		if msgType, _ := msg["type"].(string); msgType == "ping" {
			if err := c.Send(map[string]string{"type": "pong"}); err != nil {
				return
			}
		}
	}
}

// PingLoop keeps idle connections alive until Close is called.
func (c *Connection) PingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
