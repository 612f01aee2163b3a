package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"github.com/voltlabs/volt/internal/logging"
	"go.uber.org/zap"
)

const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

// ConnHandler processes one accepted connection. The handler owns conn and is
// responsible for closing it.
type ConnHandler func(ctx context.Context, conn net.Conn) error

// Option configures a Server.
type Option func(*Server)

// WithStartedCallback registers fn to run on the accept goroutine once the
// listener is bound. fn receives the bound port.
func WithStartedCallback(fn func(port int)) Option {
	return func(s *Server) {
		s.onStarted = fn
	}
}

// WithStoppedCallback registers fn to run when the accept loop exits.
func WithStoppedCallback(fn func()) Option {
	return func(s *Server) {
		s.onStopped = fn
	}
}

// WithBaseContext sets the context handed to every connection handler. It is
// not cancelled by Stop.
func WithBaseContext(ctx context.Context) Option {
	return func(s *Server) {
		s.baseCtx = ctx
	}
}

// WithHost restricts the listener to a single interface. Empty listens on all
// interfaces.
func WithHost(host string) Option {
	return func(s *Server) {
		s.host = host
	}
}

// Server is a restartable TCP accept loop.
type Server struct {
	name      string
	host      string
	handler   ConnHandler
	onStarted func(port int)
	onStopped func()
	baseCtx   context.Context

	// mu guards the fields below, including the shutdown flag read by the
	// accept loop.
	mu       sync.Mutex
	listener net.Listener
	running  bool
	stopping bool
	port     int
	done     chan struct{}

	conns sync.WaitGroup
}

// New creates a Server named name (used in logs) that dispatches accepted
// connections to handler.
func New(name string, handler ConnHandler, opts ...Option) *Server {
	s := &Server{
		name:    name,
		handler: handler,
		baseCtx: context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start binds port and starts the accept loop. It is a no-op when the server
// is already running. Port 0 selects an ephemeral port; Port reports the
// result.
func (s *Server) Start(port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// A loop that is shutting down is waited for so Start does not become a
	// no-op on a server about to stop.
	for s.running && s.stopping {
		done := s.done
		s.mu.Unlock()
		<-done
		s.mu.Lock()
	}

	if s.running {
		logging.Debug("Server already running",
			zap.String("server", s.name),
			zap.Int("port", s.port),
		)
		return nil
	}

	addr := net.JoinHostPort(s.host, strconv.Itoa(port))
	lc := net.ListenConfig{Control: reuseAddrControl}
	listener, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.listener = listener
	s.port = listener.Addr().(*net.TCPAddr).Port
	s.running = true
	s.done = make(chan struct{})

	logging.Info("Start listening",
		zap.String("server", s.name),
		zap.Int("port", s.port),
	)

	go s.acceptLoop(s.baseCtx, listener, s.port, s.done)

	return nil
}

// Stop closes the listener and blocks until the accept loop exits or ctx is
// done. It is a no-op when the server is not running. In-flight connection
// handlers are not interrupted.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}

	logging.Info("Stop listening",
		zap.String("server", s.name),
		zap.Int("port", s.port),
	)

	s.stopping = true
	done := s.done
	if err := s.listener.Close(); err != nil {
		logging.Warn("Error closing listener",
			zap.String("server", s.name),
			zap.Error(err),
		)
	}
	s.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for %s accept loop: %w", s.name, ctx.Err())
	}
}

// IsRunning reports whether the accept loop is active.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Port returns the port of the current or most recent listener, or 0 if the
// server was never started.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// Wait blocks until every dispatched connection handler has returned.
func (s *Server) Wait() {
	s.conns.Wait()
}

func (s *Server) shuttingDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopping
}

func (s *Server) acceptLoop(ctx context.Context, listener net.Listener, port int, done chan struct{}) {
	defer func() {
		s.mu.Lock()
		s.running = false
		s.stopping = false
		s.listener = nil
		s.mu.Unlock()

		logging.Info("Server stopped",
			zap.String("server", s.name),
			zap.Int("port", port),
		)
		if s.onStopped != nil {
			s.onStopped()
		}
		close(done)
	}()

	if s.onStarted != nil {
		s.onStarted(port)
	}

	var delay time.Duration
	for {
		conn, err := listener.Accept()

		if s.shuttingDown() {
			if conn != nil {
				_ = conn.Close()
			}
			return
		}

		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				logging.Error("Listener closed unexpectedly",
					zap.String("server", s.name),
					zap.Error(err),
				)
				return
			}
			delay = min(max(2*delay, minAcceptDelay), maxAcceptDelay)
			logging.Error("Failed to accept connection",
				zap.String("server", s.name),
				zap.Duration("retry_in", delay),
				zap.Error(err),
			)
			time.Sleep(delay)
			continue
		}
		delay = 0

		logging.LogConnection(conn.RemoteAddr().String(), "connection_accepted")

		s.conns.Add(1)
		go s.dispatch(ctx, conn)
	}
}

// dispatch runs the handler for conn, containing any failure.
func (s *Server) dispatch(ctx context.Context, conn net.Conn) {
	remoteAddr := conn.RemoteAddr().String()

	defer s.conns.Done()
	defer func() {
		if p := recover(); p != nil {
			logging.Error("Panic while processing connection",
				zap.String("server", s.name),
				zap.String("remote_addr", remoteAddr),
				zap.Any("panic", p),
				zap.ByteString("stack", debug.Stack()),
			)
			_ = conn.Close()
		}
	}()

	if err := s.handler(ctx, conn); err != nil {
		logging.Error("Exception when processing connected client",
			zap.String("server", s.name),
			zap.String("remote_addr", remoteAddr),
			zap.Error(err),
		)
	}
}
