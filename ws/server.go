// Package ws is the server glue of spec.md §4.7: it accepts inbound
// WebSocket upgrades, constructs a Connection per handshake, and invokes
// the application-supplied OnConnect callback synchronously so bindings
// can be installed before traffic flows.
//
// Grounded on the teacher's ws/server.go (the thin public wrapper) and
// internal/websocket/websocket_server.go (Server.Start/Stop/handleWebSocket),
// adapted to hand the application a wsrpc.Connection instead of driving the
// binary command-pattern dispatch itself.
package ws

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/kodeflow-oss/wsrpc"
	"github.com/kodeflow-oss/wsrpc/internal/wsconn"
)

// CheckOriginFn validates the origin of a WebSocket handshake request.
type CheckOriginFn = func(r *http.Request) bool

// OnConnectFn is invoked synchronously, after the handshake completes and
// before the receive loop starts, so bindings can be installed with no
// window for traffic to arrive unbound.
type OnConnectFn = func(conn wsrpc.Connection, hs wsrpc.HandshakeContext)

// OnDisconnectFn is invoked once per connection, from its close
// notification, when the connection closes for any reason.
type OnDisconnectFn = func(conn wsrpc.Connection)

// ServerConfig configures a Server.
type ServerConfig struct {
	Addr               string
	CheckOrigin        CheckOriginFn
	OnConnect          OnConnectFn
	OnClientDisconnect OnDisconnectFn
	MaxMessageSize     int64
}

// AllOrigins allows every origin. Never use it in production (mirrors the
// teacher's own warning).
func AllOrigins() CheckOriginFn {
	return func(r *http.Request) bool { return true }
}

// Server accepts WebSocket upgrades and drives one Connection per accepted
// socket.
type Server struct {
	cfg      ServerConfig
	server   *http.Server
	upgrader websocket.Upgrader

	connsMu sync.RWMutex
	conns   map[string]*wsconn.Connection

	mu      sync.Mutex
	running bool

	log *logrus.Entry
}

// New constructs a Server from cfg. MaxMessageSize defaults to
// wsrpc.DefaultMaxMessageSize when unset.
func New(cfg *ServerConfig) *Server {
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = wsrpc.DefaultMaxMessageSize
	}
	return &Server{
		cfg:   *cfg,
		conns: make(map[string]*wsconn.Connection),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     cfg.CheckOrigin,
		},
		log: logrus.WithField("component", "ws.Server"),
	}
}

// Start begins listening on cfg.Addr. It blocks briefly to surface
// immediate bind errors, then returns; the server continues running in the
// background until Stop is called or ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("ws: server already running")
	}
	s.running = true
	s.mu.Unlock()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleUpgrade)

	s.server = &http.Server{Addr: s.cfg.Addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	go func() {
		<-ctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Stop(stopCtx)
	}()

	select {
	case err := <-errCh:
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return err
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// Stop closes every live connection and shuts down the HTTP listener.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.connsMu.RLock()
	conns := make([]*wsconn.Connection, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.connsMu.RUnlock()

	for _, c := range conns {
		c.Close(ctx, wsrpc.StatusNormalClosure, "server shutting down")
	}

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	raw, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "failed to upgrade connection", http.StatusBadRequest)
		return
	}

	cookies := make(map[string]string, len(r.Cookies()))
	for _, c := range r.Cookies() {
		cookies[c.Name] = c.Value
	}

	conn := wsconn.New(raw, r.RemoteAddr, cookies, wsconn.WithMaxMessageSize(s.cfg.MaxMessageSize))

	s.connsMu.Lock()
	s.conns[conn.ID()] = conn
	s.connsMu.Unlock()

	conn.OnClose(func() {
		s.connsMu.Lock()
		delete(s.conns, conn.ID())
		s.connsMu.Unlock()

		if s.cfg.OnClientDisconnect != nil {
			s.cfg.OnClientDisconnect(conn)
		}
	})

	hs := wsrpc.HandshakeContext{
		Cookies:    cookies,
		Header:     r.Header,
		URL:        (&url.URL{Path: r.URL.Path, RawQuery: r.URL.RawQuery}).String(),
		RemoteAddr: r.RemoteAddr,
	}

	if s.cfg.OnConnect != nil {
		s.cfg.OnConnect(conn, hs)
	}

	conn.Run()
}

// Connection returns the live connection with the given id, if any.
func (s *Server) Connection(id string) (wsrpc.Connection, bool) {
	s.connsMu.RLock()
	defer s.connsMu.RUnlock()
	c, ok := s.conns[id]
	return c, ok
}

// Connections returns a snapshot of every currently live connection.
func (s *Server) Connections() []wsrpc.Connection {
	s.connsMu.RLock()
	defer s.connsMu.RUnlock()
	out := make([]wsrpc.Connection, 0, len(s.conns))
	for _, c := range s.conns {
		out = append(out, c)
	}
	return out
}
