package websocket

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/voltlabs/volt/internal/logging"
	"github.com/voltlabs/volt/internal/stream"
	"go.uber.org/zap"
)

// WriteTimeout bounds every frame write.
const WriteTimeout = 10 * time.Second

// ErrDisconnected is returned when sending on a closed connection.
var ErrDisconnected = errors.New("websocket disconnected")

// Status is the lifecycle state of a Conn.
type Status int

const (
	StatusConnected Status = iota
	StatusDisconnected
)

// String returns the status name.
func (s Status) String() string {
	if s == StatusConnected {
		return "CONNECTED"
	}
	return "DISCONNECTED"
}

// Conn is an upgraded WebSocket connection. Sends are safe for concurrent
// use; the receive loop runs on the goroutine that called serve.
type Conn struct {
	netConn     net.Conn
	reader      *stream.Reader
	remoteAddr  string
	strict      bool
	readTimeout time.Duration

	writeMu sync.Mutex

	mu     sync.Mutex
	status Status
	done   chan struct{}
}

func newConn(netConn net.Conn, reader *stream.Reader, strict bool, readTimeout time.Duration) *Conn {
	return &Conn{
		netConn:     netConn,
		reader:      reader,
		remoteAddr:  netConn.RemoteAddr().String(),
		strict:      strict,
		readTimeout: readTimeout,
		status:      StatusConnected,
		done:        make(chan struct{}),
	}
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() string {
	return c.remoteAddr
}

// Status returns the current connection status.
func (c *Conn) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Done is closed once the connection is disconnected.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Close disconnects the connection. It is safe to call more than once.
func (c *Conn) Close() {
	c.mu.Lock()
	if c.status == StatusDisconnected {
		c.mu.Unlock()
		return
	}
	c.status = StatusDisconnected
	close(c.done)
	c.mu.Unlock()

	logging.LogConnection(c.remoteAddr, "websocket_closed")
	_ = c.reader.Close()
}

// Send writes payload as a text or binary message, fragmenting it as needed.
// A write failure disconnects the connection and aborts the remaining
// fragments.
func (c *Conn) Send(payload []byte, binaryData bool) error {
	if c.Status() != StatusConnected {
		logging.Debug("Message not sent, connection closed",
			zap.String("remote_addr", c.remoteAddr),
		)
		return ErrDisconnected
	}

	frames := EncodeFrames(payload, binaryData)
	logging.Debug("Sending message",
		zap.String("remote_addr", c.remoteAddr),
		zap.Int("size", len(payload)),
		zap.Int("frames", len(frames)),
	)

	for _, frame := range frames {
		if err := c.writeFrame(frame); err != nil {
			return err
		}
	}
	return nil
}

// SendText writes text as a single text message.
func (c *Conn) SendText(text string) error {
	return c.Send([]byte(text), false)
}

func (c *Conn) writeFrame(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	logging.LogWebSocketMessage(c.remoteAddr, "outbound", frame[0]&0x0F, frame)

	if err := c.netConn.SetWriteDeadline(time.Now().Add(WriteTimeout)); err != nil {
		c.Close()
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if _, err := c.netConn.Write(frame); err != nil {
		logging.Error("Failed to write to websocket",
			zap.String("remote_addr", c.remoteAddr),
			zap.Error(err),
		)
		c.Close()
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// serve runs the receive loop until the connection is closed.
func (c *Conn) serve(ctx context.Context) {
	defer c.Close()

	for c.Status() == StatusConnected {
		var err error
		if c.strict {
			err = c.receiveFrame()
		} else {
			err = c.receiveHeader()
		}

		switch {
		case err == nil:
		case stream.IsTimeout(err):
			// Idle; keep waiting.
		case errors.Is(err, errClosing):
			return
		default:
			if ctx.Err() == nil && c.Status() == StatusConnected {
				logging.Debug("Exception reading websocket",
					zap.String("remote_addr", c.remoteAddr),
					zap.Error(err),
				)
			}
			return
		}
	}
}

var errClosing = errors.New("close frame received")

// receiveHeader is the default receive path: it only looks at frame headers
// and answers pings. Payload bytes are not consumed and client masking is not
// removed.
func (c *Conn) receiveHeader() error {
	header, err := c.reader.ReadBytes(2, c.readTimeout, nil, nil)
	if err != nil {
		return err
	}

	opcode := header[0] & 0x0F
	logging.LogWebSocketMessage(c.remoteAddr, "inbound", opcode, header)
	if opcode != OpcodePing {
		return nil
	}

	length := header[1] & 0x7F
	switch length {
	case 0:
		logging.Debug("Ping without application data")
	case 126, 127:
		logging.Debug("Ping with extended length marker", zap.Uint8("marker", length))
	default:
		logging.Debug("Ping application data", zap.Uint8("length", length))
	}

	return c.writeFrame([]byte{finBit | OpcodePong, length})
}

// receiveFrame is the strict receive path: full frame decoding with mask
// removal, pong with echoed payload and close handshake.
func (c *Conn) receiveFrame() error {
	frame, err := ReadFrame(c.reader, c.readTimeout)
	if err != nil {
		return err
	}
	logging.LogWebSocketMessage(c.remoteAddr, "inbound", frame.Opcode, frame.Payload)

	switch frame.Opcode {
	case OpcodePing:
		payload := frame.Payload
		if len(payload) > maxControlPayload {
			payload = payload[:maxControlPayload]
		}
		return c.writeFrame(encodeFrame(true, OpcodePong, payload))
	case OpcodeClose:
		var reply []byte
		if len(frame.Payload) >= 2 {
			reply = frame.Payload[:2]
		}
		if err := c.writeFrame(encodeFrame(true, OpcodeClose, reply)); err != nil {
			return err
		}
		return errClosing
	default:
		logging.Debug("Websocket frame ignored",
			zap.String("remote_addr", c.remoteAddr),
			zap.Stringer("frame", frame),
		)
		return nil
	}
}
