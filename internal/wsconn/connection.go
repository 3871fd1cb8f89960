// Package wsconn implements the Connection side of the RPC layer: one
// full-duplex WebSocket, its receive loop, message-size enforcement, and
// the four user-facing notification points (open/receive/error/close).
//
// Grounded on the teacher's internal/websocket Client (writePump, Send,
// Close, IsAlive) and Server.handleClient (the read loop, deadline resets,
// pong handling), generalized so a Connection owns its own receive loop
// instead of the server driving it directly.
package wsconn

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/kodeflow-oss/wsrpc"
	"github.com/kodeflow-oss/wsrpc/internal/sendqueue"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

// Connection implements wsrpc.Connection over a *websocket.Conn.
type Connection struct {
	id         string
	conn       *websocket.Conn
	remoteAddr string
	cookies    map[string]string

	maxMessageSize int64

	ctx    context.Context
	cancel context.CancelFunc

	queue *sendqueue.Queue

	mu     sync.Mutex
	closed bool

	subMu     sync.Mutex
	onOpen    []func()
	onReceive []func(data []byte, isText bool)
	onError   []func(err error)
	onClose   []func()

	closeOnce sync.Once
	log       *logrus.Entry
}

// Option configures a Connection at construction time.
type Option func(*Connection)

// WithMaxMessageSize overrides wsrpc.DefaultMaxMessageSize.
func WithMaxMessageSize(n int64) Option {
	return func(c *Connection) { c.maxMessageSize = n }
}

// New wraps conn, captures cookies from the handshake, and starts the
// write pump. The caller must call Run to start the receive loop.
func New(conn *websocket.Conn, remoteAddr string, cookies map[string]string, opts ...Option) *Connection {
	ctx, cancel := context.WithCancel(context.Background())

	c := &Connection{
		id:             uuid.New().String(),
		conn:           conn,
		remoteAddr:     remoteAddr,
		cookies:        cookies,
		maxMessageSize: wsrpc.DefaultMaxMessageSize,
		ctx:            ctx,
		cancel:         cancel,
		queue:          sendqueue.New(),
		log:            logrus.WithField("conn", ""),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = logrus.WithField("conn", c.id)

	go c.pingLoop()
	return c
}

// ID implements wsrpc.Connection.
func (c *Connection) ID() string { return c.id }

// Cookies implements wsrpc.Connection.
func (c *Connection) Cookies() map[string]string { return c.cookies }

// RemoteAddr returns the peer's network address.
func (c *Connection) RemoteAddr() string { return c.remoteAddr }

// IsAlive implements wsrpc.Connection.
func (c *Connection) IsAlive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// SendText implements wsrpc.Connection. The write itself runs on the
// connection's sendqueue.Queue, so concurrent callers never interleave
// frames on the wire; this call blocks until its frame has been written (or
// failed), not merely enqueued.
func (c *Connection) SendText(ctx context.Context, data []byte) (bool, error) {
	if int64(len(data)) >= c.maxMessageSize {
		c.Close(ctx, wsrpc.StatusMessageTooBig, wsrpc.ErrMsgMessageTooBig)
		return false, errors.New(wsrpc.ErrMsgMessageTooBig)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false, errors.New(wsrpc.ErrMsgConnectionClosed)
	}
	c.mu.Unlock()

	result := c.queue.Enqueue(func() error {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		return c.conn.WriteMessage(websocket.TextMessage, data)
	})

	select {
	case err := <-result:
		if err != nil {
			if errors.Is(err, sendqueue.ErrClosed) {
				return false, errors.New(wsrpc.ErrMsgConnectionClosed)
			}
			return false, err
		}
		return true, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Close implements wsrpc.Connection. It is safe to call concurrently and
// more than once; only the first call has effect, and fireClose always
// runs exactly once regardless of which path (application close, receive
// error, oversize frame, peer close) triggers it.
func (c *Connection) Close(ctx context.Context, status int, reason string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()

	message := websocket.FormatCloseMessage(status, reason)
	deadline := time.Now().Add(time.Second)
	// Swallow any error from the close handshake itself (spec.md §7: "no
	// error is ever silently swallowed except exceptions during the close
	// call itself").
	_ = c.conn.WriteControl(websocket.CloseMessage, message, deadline)

	c.queue.Close()
	err := c.conn.Close()

	c.fireClose()
	return err
}

func (c *Connection) fireClose() {
	c.closeOnce.Do(func() {
		c.subMu.Lock()
		handlers := c.onClose
		c.onOpen = nil
		c.onReceive = nil
		c.onError = nil
		c.onClose = nil
		c.subMu.Unlock()

		for _, h := range handlers {
			h()
		}
	})
}

// OnOpen implements wsrpc.Connection.
func (c *Connection) OnOpen(h func()) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.onOpen = append(c.onOpen, h)
}

// OnReceive implements wsrpc.Connection.
func (c *Connection) OnReceive(h func(data []byte, isText bool)) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.onReceive = append(c.onReceive, h)
}

// OnError implements wsrpc.Connection.
func (c *Connection) OnError(h func(err error)) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.onError = append(c.onError, h)
}

// OnClose implements wsrpc.Connection.
func (c *Connection) OnClose(h func()) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.onClose = append(c.onClose, h)
}

func (c *Connection) fireOpen() {
	c.subMu.Lock()
	handlers := append([]func(){}, c.onOpen...)
	c.subMu.Unlock()
	for _, h := range handlers {
		h()
	}
}

func (c *Connection) fireReceive(data []byte, isText bool) {
	c.subMu.Lock()
	handlers := append([]func(data []byte, isText bool){}, c.onReceive...)
	c.subMu.Unlock()
	for _, h := range handlers {
		h(data, isText)
	}
}

func (c *Connection) fireError(err error) {
	c.subMu.Lock()
	handlers := append([]func(err error){}, c.onError...)
	c.subMu.Unlock()
	for _, h := range handlers {
		h(err)
	}
}

// Run starts the receive loop. It blocks until the connection closes, for
// any reason, and should be invoked from its own goroutine by the server
// glue immediately after the handshake and OnConnect callback.
func (c *Connection) Run() {
	// gorilla only closes once accumulated length strictly exceeds the
	// limit; spec.md's "equal-or-greater triggers close" needs the limit
	// set one byte below maxMessageSize to reject a frame of exactly that
	// size (mirrors the >= check SendText already applies on the send side).
	c.conn.SetReadLimit(c.maxMessageSize - 1)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	c.fireOpen()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			switch {
			case errors.Is(err, websocket.ErrReadLimit):
				// gorilla already sent the peer a close frame; mirror the
				// status locally and fire the close notification once.
				c.log.Warn("closing connection: message too big")
				c.Close(context.Background(), wsrpc.StatusMessageTooBig, wsrpc.ErrMsgMessageTooBig)
			case websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure):
				c.log.WithError(err).Warn("unexpected close error on receive")
				c.fireError(err)
				c.Close(context.Background(), wsrpc.StatusInternalError, fmt.Sprintf("%s: %v", wsrpc.ErrMsgInternalError, err))
			default:
				// Expected close (peer went away cleanly, or our own
				// Close already tore down the socket).
				c.Close(context.Background(), wsrpc.StatusNormalClosure, "")
			}
			return
		}

		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		if msgType == websocket.CloseMessage {
			c.Close(context.Background(), wsrpc.StatusNormalClosure, "")
			return
		}

		c.fireReceive(data, msgType == websocket.TextMessage)
	}
}

// pingLoop enqueues a ping frame onto the send queue every pingPeriod, so
// keepalives never jump ahead of or interleave with queued text frames.
func (c *Connection) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			result := c.queue.Enqueue(func() error {
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				return c.conn.WriteMessage(websocket.PingMessage, nil)
			})
			if err := <-result; err != nil {
				if !errors.Is(err, sendqueue.ErrClosed) {
					c.fireError(err)
				}
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}
