package websocket

import (
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/voltlabs/volt/internal/version"
	"github.com/voltlabs/volt/internal/web"
)

// acceptGUID is the RFC 6455 magic value appended to the client key.
const acceptGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

var (
	// ErrUnsupportedVersion is returned for a handshake that is not
	// WebSocket version 13.
	ErrUnsupportedVersion = errors.New("unsupported websocket version")

	// ErrMissingKey is returned for a handshake without Sec-WebSocket-Key.
	ErrMissingKey = errors.New("missing websocket key")
)

// AcceptToken computes the Sec-WebSocket-Accept value for key.
func AcceptToken(key string) string {
	sum := sha1.Sum([]byte(key + acceptGUID))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// checkUpgrade validates the upgrade headers and returns the client key.
func checkUpgrade(header web.Header) (string, error) {
	if v := header.Get("Sec-WebSocket-Version"); v != "13" {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedVersion, v)
	}
	key := strings.TrimSpace(header.Get("Sec-WebSocket-Key"))
	if key == "" {
		return "", ErrMissingKey
	}
	return key, nil
}

// writeUpgrade sends the 101 Switching Protocols response for key.
func writeUpgrade(w io.Writer, key string) error {
	status := web.StatusSwitchingProtocols
	var b strings.Builder
	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", status.Code, status.Text)
	b.WriteString("Server: " + version.ServerHeader() + "\r\n")
	b.WriteString("Date: " + time.Now().UTC().Format(web.DateFormat) + "\r\n")
	b.WriteString("Upgrade: websocket\r\n")
	b.WriteString("Connection: Upgrade\r\n")
	b.WriteString("Sec-WebSocket-Accept: " + AcceptToken(key) + "\r\n")
	b.WriteString("\r\n")

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("cannot send handshake response: %w", err)
	}
	return nil
}
