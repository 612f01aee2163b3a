package websocket

import (
	"context"
	"net"
	"time"

	"github.com/voltlabs/volt/internal/diagnostics"
	"github.com/voltlabs/volt/internal/logging"
	"github.com/voltlabs/volt/internal/server"
	"github.com/voltlabs/volt/internal/stream"
	"github.com/voltlabs/volt/internal/web"
	"go.uber.org/zap"
)

// DefaultReadTimeout is how long the receive loop waits for a frame before
// checking the connection status again.
const DefaultReadTimeout = 30 * time.Second

// Config tunes a Server. Zero values select defaults.
type Config struct {
	Host        string
	BufferSize  int
	LineTimeout time.Duration
	ReadTimeout time.Duration
	HistorySize int

	// StrictFraming enables full inbound frame decoding.
	StrictFraming bool

	OnStarted func(port int)
	OnStopped func()
}

func (c *Config) withDefaults() Config {
	cfg := Config{}
	if c != nil {
		cfg = *c
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = stream.DefaultBufferSize
	}
	if cfg.LineTimeout <= 0 {
		cfg.LineTimeout = stream.DefaultLineTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = diagnostics.DefaultHistorySize
	}
	return cfg
}

// Server accepts WebSocket clients and broadcasts messages to them.
type Server struct {
	cfg   Config
	srv   *server.Server
	hub   *Hub
	calls *diagnostics.Hub
}

// NewServer creates a Server.
func NewServer(cfg *Config) *Server {
	s := &Server{
		cfg: cfg.withDefaults(),
		hub: NewHub(),
	}
	s.calls = diagnostics.NewHub(diagnostics.ConnectionWebSocket, s.cfg.HistorySize)

	opts := []server.Option{server.WithHost(s.cfg.Host)}
	if s.cfg.OnStarted != nil {
		opts = append(opts, server.WithStartedCallback(s.cfg.OnStarted))
	}
	if s.cfg.OnStopped != nil {
		opts = append(opts, server.WithStoppedCallback(s.cfg.OnStopped))
	}
	s.srv = server.New("websocket", s.serveConn, opts...)
	return s
}

// Start listens on port.
func (s *Server) Start(port int) error {
	return s.srv.Start(port)
}

// Stop stops accepting clients. Connected clients stay connected.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Stop(ctx)
}

// Restart stops the server and starts it again on port.
func (s *Server) Restart(ctx context.Context, port int) error {
	if err := s.Stop(ctx); err != nil {
		return err
	}
	return s.Start(port)
}

// Port returns the bound port.
func (s *Server) Port() int {
	return s.srv.Port()
}

// IsRunning reports whether the server is accepting clients.
func (s *Server) IsRunning() bool {
	return s.srv.IsRunning()
}

// Calls returns the diagnostics hub fed with one record per handshake.
func (s *Server) Calls() *diagnostics.Hub {
	return s.calls
}

// Connections returns the number of connected clients.
func (s *Server) Connections() int {
	return s.hub.Len()
}

// BroadcastMessage sends text to every connected client.
func (s *Server) BroadcastMessage(text string) {
	s.hub.Broadcast([]byte(text), false)
}

// BroadcastData sends data to every connected client.
func (s *Server) BroadcastData(data []byte, binaryData bool) {
	s.hub.Broadcast(data, binaryData)
}

// Disconnect closes every connected client.
func (s *Server) Disconnect() {
	s.hub.CloseAll()
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) error {
	remoteAddr := conn.RemoteAddr().String()
	reader := stream.NewReader(ctx, conn,
		stream.WithBufferSize(s.cfg.BufferSize),
		stream.WithLineTimeout(s.cfg.LineTimeout),
	)

	abort := func(reason string, err error) error {
		logging.Debug("Cannot complete handshake",
			zap.String("remote_addr", remoteAddr),
			zap.String("reason", reason),
			zap.Error(err),
		)
		_ = reader.Close()
		return nil
	}

	line, err := web.ReadRequestLine(reader)
	if err != nil {
		return abort("request line", err)
	}
	header, err := web.ReadHeaders(reader)
	if err != nil {
		return abort("headers", err)
	}

	record := diagnostics.CallRecord{
		ID:          s.calls.NextID(),
		RequestTime: time.Now(),
		RequestIP:   remoteHost(conn),
		RequestType: line.Method,
		RequestURL:  line.URL,
		Connection:  diagnostics.ConnectionWebSocket,
	}
	s.calls.Publish(record)

	key, err := checkUpgrade(header)
	if err != nil {
		return abort("upgrade headers", err)
	}

	if err := writeUpgrade(conn, key); err != nil {
		s.calls.Publish(record.WithResponse(-1, nil))
		return abort("response", err)
	}

	c := newConn(conn, reader, s.cfg.StrictFraming, s.cfg.ReadTimeout)
	s.hub.Add(c)
	s.calls.Publish(record.WithResponse(web.StatusSwitchingProtocols.Code, nil))
	logging.LogConnection(remoteAddr, "websocket_connected")

	c.serve(ctx)
	return nil
}

func remoteHost(conn net.Conn) string {
	if addr, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
		return addr.IP.String()
	}
	return conn.RemoteAddr().String()
}
