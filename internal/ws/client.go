package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 16 << 10
	sendBuffer     = 64
)

// client is one websocket connection. Frames are queued on out and written by
// writePump, which is the only writer of conn.
type client struct {
	conn *websocket.Conn
	info ConnInfo
	log  *zap.SugaredLogger

	out  chan any
	done chan struct{}
	once sync.Once
}

func newClient(conn *websocket.Conn, info ConnInfo, log *zap.SugaredLogger) *client {
	return &client{
		conn: conn,
		info: info,
		log:  log,
		out:  make(chan any, sendBuffer),
		done: make(chan struct{}),
	}
}

// send queues v for writing. A reader that fell sendBuffer frames behind is
// disconnected.
func (c *client) send(v any) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.out <- v:
		return true
	default:
		c.log.Warnw("websocket send queue full", "conn_id", c.info.ConnID, "user_id", c.info.UserID)
		c.close()
		return false
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case v := <-c.out:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(v); err != nil {
				c.log.Debugw("websocket write failed", "conn_id", c.info.ConnID, "error", err)
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

func (c *client) prepareRead() {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}
