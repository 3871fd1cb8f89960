package e2e_test

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/kodeflow-oss/wsrpc/internal/wsconn"
)

// newDialer creates a WebSocket dialer for the e2e tests.
func newDialer() *websocket.Dialer {
	return &websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}
}

// newClientConn wraps a dialed client-side socket as a wsrpc.Connection
// and starts its receive loop, mirroring what ws.Server does for accepted
// connections.
func newClientConn(raw *websocket.Conn) *wsconn.Connection {
	conn := wsconn.New(raw, raw.RemoteAddr().String(), nil)
	go conn.Run()
	return conn
}
