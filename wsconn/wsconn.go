// Package wsconn implements session channels over gorilla/websocket.
package wsconn

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/chat-session/protocol"
	"github.com/gosuda/chat-session/session"
)

const (
	writeWait      = 10 * time.Second
	closeWait      = time.Second
	pongWait       = 60 * time.Second
	pingInterval   = 30 * time.Second
	sendBufferSize = 64
	readLimit      = 1 << 20
)

var (
	ErrClosed     = errors.New("wsconn: channel closed")
	ErrBufferFull = errors.New("wsconn: send buffer full")
)

// Opener dials websocket channels. The zero value uses
// websocket.DefaultDialer and the global logger.
type Opener struct {
	Dialer *websocket.Dialer
	Header http.Header
	Logger *zerolog.Logger
}

var _ session.Opener = (*Opener)(nil)

// Open starts dialing endpoint in the background and returns immediately.
// Outgoing messages sent before the dial completes are queued.
func (o *Opener) Open(endpoint string, ev session.Events) (session.Channel, error) {
	dialer := o.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	logger := log.Logger
	if o.Logger != nil {
		logger = *o.Logger
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &conn{
		ctx:    ctx,
		cancel: cancel,
		send:   make(chan []byte, sendBufferSize),
		ev:     ev,
		logger: logger.With().Str("endpoint", endpoint).Logger(),
	}
	go c.run(dialer, endpoint, o.Header)
	return c, nil
}

type conn struct {
	ctx    context.Context
	cancel context.CancelFunc
	send   chan []byte
	ev     session.Events
	logger zerolog.Logger
	closed atomic.Bool

	mu sync.Mutex
	ws *websocket.Conn
}

// Send queues m without blocking. A full queue means the peer stopped
// reading; the channel is then torn down and OnClose reports ErrBufferFull.
func (c *conn) Send(m protocol.Message) error {
	if c.closed.Load() {
		return ErrClosed
	}
	data, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	select {
	case c.send <- data:
		return nil
	default:
		c.logger.Warn().Str("msgType", m.MsgType()).Msg("[wsconn] send buffer full; closing")
		go c.finish(ErrBufferFull)
		return ErrBufferFull
	}
}

// Close stops the pumps without waiting for them. No callback fires after a
// local Close.
func (c *conn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.cancel()
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return nil
	}
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeWait))
	return ws.Close()
}

func (c *conn) run(dialer *websocket.Dialer, endpoint string, header http.Header) {
	ws, _, err := dialer.DialContext(c.ctx, endpoint, header)
	if err != nil {
		c.logger.Debug().Err(err).Msg("[wsconn] dial")
		c.finish(err)
		return
	}

	c.mu.Lock()
	if c.closed.Load() {
		c.mu.Unlock()
		_ = ws.Close()
		return
	}
	c.ws = ws
	c.mu.Unlock()

	if !c.closed.Load() && c.ev.OnOpen != nil {
		c.ev.OnOpen()
	}
	go c.writeLoop(ws)
	c.finish(c.readLoop(ws))
}

// finish tears the channel down and reports err through OnClose, once.
func (c *conn) finish(err error) {
	if c.closed.Swap(true) {
		return
	}
	c.cancel()
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws != nil {
		_ = ws.Close()
	}
	if c.ev.OnClose != nil {
		c.ev.OnClose(err)
	}
}

func (c *conn) readLoop(ws *websocket.Conn) error {
	defer ws.Close()
	ws.SetReadLimit(readLimit)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, payload, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug().Err(err).Msg("[wsconn] closed by peer")
			} else if !c.closed.Load() {
				c.logger.Warn().Err(err).Msg("[wsconn] read message")
			}
			return err
		}
		if c.closed.Load() {
			return ErrClosed
		}
		if c.ev.OnMessage != nil {
			c.ev.OnMessage(payload)
		}
	}
}

func (c *conn) writeLoop(ws *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case data := <-c.send:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug().Err(err).Msg("[wsconn] write message")
				_ = ws.Close()
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = ws.Close()
				return
			}
		}
	}
}
