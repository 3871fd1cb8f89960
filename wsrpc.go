// Package wsrpc provides a bidirectional JSON-RPC layer over WebSocket
// connections.
//
// A Server accepts inbound WebSocket upgrades; on each established
// Connection, application code may bind a local object (LocalBinder, via
// binder.NewLocal) to expose its methods to the remote peer, and/or bind a
// remote interface (RemoteBinder, via binder.NewRemote) to invoke methods
// executing on the peer. Calls carry JSON request/response envelopes; the remote binder
// parks the caller on a future that resolves when a matching response
// arrives or the configured termination delay elapses.
//
// # Architecture
//
// Every text frame on a Connection is exactly one JSON envelope: a request
// (functionName, arguments, callId) dispatched by a LocalBinder, or a
// response (callId, returnValue/error) resolved by a RemoteBinder. A frame
// that is neither is passed through unchanged to the application's receive
// notification, so the same connection can carry opaque traffic alongside
// RPC traffic.
//
// # Quick Start
//
//	srv := ws.New(&ws.ServerConfig{
//	    Addr:        ":8080",
//	    CheckOrigin: ws.AllOrigins(),
//	    OnConnect: func(conn wsrpc.Connection, hs wsrpc.HandshakeContext) {
//	        binder.NewLocal(conn, &EchoService{})
//	    },
//	})
//	srv.Start(ctx)
//
// # Non-goals
//
// No authentication, authorization, or rate limiting. No reconnection or
// message replay — a closed Connection invalidates all of its pending
// calls. No streaming or chunked responses — one request envelope, one
// response envelope. No backpressure beyond the hard MaxMessageSize that
// closes the connection when exceeded.
package wsrpc

import "context"

// Connection is one full-duplex WebSocket connection. It owns the receive
// loop, enforces MaxMessageSize on both directions, and fans incoming
// frames out to subscribers via OnReceive/OnError/OnClose.
type Connection interface {
	// ID is a unique identifier assigned to the connection at creation.
	ID() string

	// Cookies returns the immutable name -> value map captured from the
	// WebSocket handshake request.
	Cookies() map[string]string

	// SendText encodes and enqueues one text frame. It returns false
	// without enqueuing if the connection is not open, or if len(data)
	// meets or exceeds MaxMessageSize — in the latter case the connection
	// is also closed with StatusMessageTooBig.
	SendText(ctx context.Context, data []byte) (bool, error)

	// Close initiates an outbound close with the given WebSocket status
	// code and human-readable reason. It is idempotent: the close
	// notification fires exactly once no matter how many times or from
	// how many goroutines Close is called.
	Close(ctx context.Context, status int, reason string) error

	// IsAlive reports whether the connection is still open.
	IsAlive() bool

	// OnOpen registers a callback invoked exactly once, before the first
	// receive notification.
	OnOpen(func())

	// OnReceive registers a callback invoked for every frame the receive
	// loop accepts, in arrival order. isText distinguishes a text frame
	// from a binary one.
	OnReceive(func(data []byte, isText bool))

	// OnError registers a callback invoked for every unhandled exception
	// observed on the connection; it may fire more than once.
	OnError(func(err error))

	// OnClose registers a callback invoked exactly once when the
	// connection closes, for any reason. After the close notification has
	// fired, no subscriber registered via any of these four methods is
	// ever invoked again.
	OnClose(func())
}

// HandshakeContext is the state captured once at WebSocket upgrade time and
// handed to the application's OnConnect callback.
type HandshakeContext struct {
	// Cookies mirrors Connection.Cookies(); duplicated here so the
	// connect callback does not need the Connection to inspect it.
	Cookies map[string]string

	// Header is the full set of HTTP headers sent with the handshake
	// request.
	Header map[string][]string

	// URL is the request-target path and query of the handshake request
	// (e.g. "/ws?room=lobby").
	URL string

	// RemoteAddr is the peer's network address, as reported by the HTTP
	// server (typically "IP:port").
	RemoteAddr string
}
