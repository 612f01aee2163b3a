package web

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/voltlabs/volt/internal/diagnostics"
	"github.com/voltlabs/volt/internal/logging"
	"github.com/voltlabs/volt/internal/server"
	"github.com/voltlabs/volt/internal/stream"
	"go.uber.org/zap"
)

// DefaultBodyTimeout bounds the wait for the first body bytes.
const DefaultBodyTimeout = 10 * time.Second

// Unread request bodies up to maxDrainBytes are consumed before the
// connection closes, for at most drainTimeout.
const (
	maxDrainBytes = 8 << 20
	drainTimeout  = 2 * time.Second
)

// Config tunes an HTTPServer. Zero values select defaults.
type Config struct {
	Host        string
	BufferSize  int
	LineTimeout time.Duration
	BodyTimeout time.Duration
	Codec       Codec
	HistorySize int

	// OnStarted and OnStopped mirror the accept loop lifecycle.
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
	if cfg.BodyTimeout <= 0 {
		cfg.BodyTimeout = DefaultBodyTimeout
	}
	if cfg.Codec == nil {
		cfg.Codec = JSONCodec{}
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = diagnostics.DefaultHistorySize
	}
	return cfg
}

// HTTPServer serves one request per connection using Router.
type HTTPServer struct {
	router *Router
	cfg    Config
	srv    *server.Server
	calls  *diagnostics.Hub
}

// NewHTTPServer creates an HTTPServer. The router must be fully populated
// before Start.
func NewHTTPServer(router *Router, cfg *Config) *HTTPServer {
	h := &HTTPServer{
		router: router,
		cfg:    cfg.withDefaults(),
	}
	h.calls = diagnostics.NewHub(diagnostics.ConnectionHTTP, h.cfg.HistorySize)

	opts := []server.Option{server.WithHost(h.cfg.Host)}
	if h.cfg.OnStarted != nil {
		opts = append(opts, server.WithStartedCallback(h.cfg.OnStarted))
	}
	if h.cfg.OnStopped != nil {
		opts = append(opts, server.WithStoppedCallback(h.cfg.OnStopped))
	}
	h.srv = server.New("http", h.serveConn, opts...)
	return h
}

// Start freezes the route table and starts listening on port.
func (h *HTTPServer) Start(port int) error {
	h.router.Freeze()
	return h.srv.Start(port)
}

// Stop stops accepting connections. Requests in flight complete.
func (h *HTTPServer) Stop(ctx context.Context) error {
	return h.srv.Stop(ctx)
}

// Restart stops the server and starts it again on port.
func (h *HTTPServer) Restart(ctx context.Context, port int) error {
	if err := h.Stop(ctx); err != nil {
		return err
	}
	return h.Start(port)
}

// Port returns the bound port.
func (h *HTTPServer) Port() int {
	return h.srv.Port()
}

// IsRunning reports whether the server is accepting connections.
func (h *HTTPServer) IsRunning() bool {
	return h.srv.IsRunning()
}

// Calls returns the diagnostics hub fed with one record per request.
func (h *HTTPServer) Calls() *diagnostics.Hub {
	return h.calls
}

// Wait blocks until every in-flight request has been served.
func (h *HTTPServer) Wait() {
	h.srv.Wait()
}

func (h *HTTPServer) serveConn(ctx context.Context, conn net.Conn) error {
	remoteAddr := conn.RemoteAddr().String()
	reader := stream.NewReader(ctx, conn,
		stream.WithBufferSize(h.cfg.BufferSize),
		stream.WithLineTimeout(h.cfg.LineTimeout),
	)
	writer := bufio.NewWriter(conn)

	var (
		parsed bool
		header Header
		req    *Request
	)
	defer func() {
		if err := writer.Flush(); err != nil {
			logging.Debug("Failed to flush response",
				zap.String("remote_addr", remoteAddr),
				zap.Error(err),
			)
		}
		if parsed && (req == nil || !req.bodyRead) {
			drainRequest(conn, reader, header)
		}
		_ = reader.Close()
		logging.LogConnection(remoteAddr, "connection_closed")
	}()

	resp := newResponse(writer, h.cfg.Codec, remoteAddr)

	line, err := ReadRequestLine(reader)
	if err != nil {
		return h.fail(resp, writer, nil, "", err)
	}
	parsed = true
	logging.LogHTTPRequest(remoteAddr, line.Method, line.URL)

	record := diagnostics.CallRecord{
		ID:          h.calls.NextID(),
		RequestTime: time.Now(),
		RequestIP:   remoteHost(conn),
		RequestType: line.Method,
		RequestURL:  line.URL,
		Connection:  diagnostics.ConnectionHTTP,
	}
	h.calls.Publish(record)

	match, ok := h.router.Match(line.Method, line.URL)
	if !ok {
		return h.fail(resp, writer, &record, line.URL, fmt.Errorf("%w: %s %s", ErrNoRoute, line.Method, line.URL))
	}

	header, err = ReadHeaders(reader)
	if err != nil {
		parsed = false
		return h.fail(resp, writer, &record, line.URL, err)
	}

	req = newRequest(line, remoteAddr, header, match, reader, h.cfg.Codec, h.cfg.BodyTimeout)
	if err := h.invoke(ctx, match.Handler, req, resp); err != nil {
		return h.fail(resp, writer, &record, line.URL, err)
	}

	var sendErr error
	if !resp.Sent() {
		sendErr = resp.SendEmpty(StatusOK)
	}
	return h.complete(resp, writer, &record, sendErr)
}

// complete flushes the response and republishes record with its outcome. A
// response that could not be delivered is recorded with code -1.
func (h *HTTPServer) complete(resp *Response, w *bufio.Writer, record *diagnostics.CallRecord, sendErr error) error {
	err := sendErr
	if err == nil {
		err = w.Flush()
	}
	if record == nil {
		return err
	}
	if err != nil {
		h.calls.Publish(record.WithResponse(-1, nil))
		return err
	}
	h.calls.Publish(record.WithResponse(resp.Status().Code, resp.Data()))
	return nil
}

// drainRequest consumes the body of a request the handler did not read, so
// closing the connection does not reset it before the client has read the
// response. Headers are read first when routing failed before them. Bodies
// above maxDrainBytes, and clients that stall, are abandoned.
func drainRequest(conn net.Conn, reader *stream.Reader, header Header) {
	reader.SetLineTimeout(drainTimeout)
	if header == nil {
		var err error
		if header, err = ReadHeaders(reader); err != nil {
			return
		}
	}

	value, ok := header.Lookup("Content-Length")
	if !ok {
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n <= 0 || n > maxDrainBytes {
		return
	}

	if buffered := min(reader.Buffered(), n); buffered > 0 {
		if err := reader.Discard(buffered); err != nil {
			return
		}
		n -= buffered
	}
	if n == 0 {
		return
	}
	if err := conn.SetReadDeadline(time.Now().Add(drainTimeout)); err != nil {
		return
	}
	if _, err := io.CopyN(io.Discard, conn, int64(n)); err != nil {
		logging.Debug("Request body not drained",
			zap.String("remote_addr", conn.RemoteAddr().String()),
			zap.Int("remaining", n),
			zap.Error(err),
		)
	}
}

// invoke runs the handler, turning a panic into an error.
func (h *HTTPServer) invoke(ctx context.Context, handler Handler, req *Request, resp *Response) (err error) {
	defer func() {
		if p := recover(); p != nil {
			logging.Error("Panic in route handler",
				zap.String("url", req.URL),
				zap.Any("panic", p),
				zap.ByteString("stack", debug.Stack()),
			)
			err = fmt.Errorf("handler panic: %v", p)
		}
	}()
	return handler.ServeRequest(ctx, req, resp)
}

// fail answers a failed request. A RouteError becomes a 403 JSON response,
// anything else the invalid response. Nothing is written when the handler
// already responded or the client went away before sending a request line.
func (h *HTTPServer) fail(resp *Response, w *bufio.Writer, record *diagnostics.CallRecord, api string, cause error) error {
	if record == nil && errors.Is(cause, stream.ErrStreamClosed) {
		logging.Debug("Connection closed before request",
			zap.String("remote_addr", resp.remoteAddr),
			zap.Error(cause),
		)
		return nil
	}

	var sendErr error
	if resp.Sent() {
		logging.Warn("Handler failed after responding",
			zap.String("remote_addr", resp.remoteAddr),
			zap.Error(cause),
		)
	} else {
		var routeErr *RouteError
		if errors.As(cause, &routeErr) {
			sendErr = resp.SendJSON(routeErr, StatusForbidden)
		} else {
			logging.Warn("Invalid request",
				zap.String("remote_addr", resp.remoteAddr),
				zap.Error(cause),
			)
			sendErr = resp.SendInvalid(api)
		}
	}

	return h.complete(resp, w, record, sendErr)
}

func remoteHost(conn net.Conn) string {
	if addr, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
		return addr.IP.String()
	}
	return conn.RemoteAddr().String()
}
