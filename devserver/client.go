package devserver

import (
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gosuda/chat-session/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = 30 * time.Second
	sendBufferSize = 64
)

// client is one websocket participant.
type client struct {
	srv      *Server
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	closed   atomic.Bool
	username atomic.Value
}

func newClient(srv *Server, conn *websocket.Conn) *client {
	return &client{
		srv:  srv,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}
}

func (c *client) readLoop() {
	c.conn.SetReadLimit(1 << 20)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			c.srv.logger.Debug().Err(err).Str("user", c.name()).Msg("[devserver] read message")
			return
		}
		m, err := protocol.Decode(payload)
		if err != nil {
			c.srv.logger.Warn().Err(err).Str("user", c.name()).Msg("[devserver] bad message")
			continue
		}
		c.srv.handle(c, m)
	}
}

func (c *client) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.srv.logger.Debug().Err(err).Str("user", c.name()).Msg("[devserver] write message")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// push queues m for the client. A client that falls a full buffer behind is
// disconnected rather than silently missing log entries.
func (c *client) push(m protocol.Message) {
	if c.closed.Load() {
		return
	}
	data, err := protocol.Encode(m)
	if err != nil {
		c.srv.logger.Error().Err(err).Str("msgType", m.MsgType()).Msg("[devserver] encode")
		return
	}
	select {
	case c.send <- data:
	default:
		c.srv.logger.Warn().Str("user", c.name()).Msg("[devserver] slow client; disconnecting")
		c.close()
	}
}

// name is empty until the connection authenticates.
func (c *client) name() string {
	v, _ := c.username.Load().(string)
	return v
}

func (c *client) close() {
	if c.closed.Swap(true) {
		return
	}
	close(c.done)
	_ = c.conn.Close()
}
