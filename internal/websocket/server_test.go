package websocket

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/voltlabs/volt/internal/diagnostics"
)

func startServer(t *testing.T, strict bool) *Server {
	t.Helper()
	s := NewServer(&Config{Host: "127.0.0.1", StrictFraming: strict, ReadTimeout: 100 * time.Millisecond})
	if err := s.Start(0); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
		s.Disconnect()
	})
	return s
}

func dial(t *testing.T, s *Server) *gorilla.Conn {
	t.Helper()
	url := fmt.Sprintf("ws://127.0.0.1:%d/events", s.Port())
	conn, resp, err := gorilla.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial %s: %v", url, err)
	}
	if resp.StatusCode != 101 {
		t.Fatalf("handshake status %d", resp.StatusCode)
	}
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	waitFor(t, func() bool { return s.Connections() > 0 })
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBroadcastToClient(t *testing.T) {
	s := startServer(t, false)
	client := dial(t, s)

	s.BroadcastMessage("hello")
	kind, data, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if kind != gorilla.TextMessage || string(data) != "hello" {
		t.Errorf("got %d %q", kind, data)
	}

	big := bytes.Repeat([]byte("0123456789abcdef"), (2*MaxFramePayload+100)/16)
	s.BroadcastData(big, true)
	kind, data, err = client.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if kind != gorilla.BinaryMessage || !bytes.Equal(data, big) {
		t.Errorf("fragmented message: kind %d, %d bytes, want %d", kind, len(data), len(big))
	}

	s.BroadcastData(nil, false)
	kind, data, err = client.ReadMessage()
	if err != nil || kind != gorilla.TextMessage || len(data) != 0 {
		t.Errorf("empty message: %d %q %v", kind, data, err)
	}
}

func TestBroadcastManyClients(t *testing.T) {
	s := startServer(t, false)
	clients := make([]*gorilla.Conn, 3)
	for i := range clients {
		clients[i] = dial(t, s)
	}
	waitFor(t, func() bool { return s.Connections() == len(clients) })

	s.BroadcastMessage("all")
	for i, c := range clients {
		if _, data, err := c.ReadMessage(); err != nil || string(data) != "all" {
			t.Errorf("client %d: %q %v", i, data, err)
		}
	}
}

func TestClientRemovedOnDisconnect(t *testing.T) {
	s := startServer(t, false)
	client := dial(t, s)

	_ = client.Close()
	waitFor(t, func() bool { return s.Connections() == 0 })
}

func TestStrictFramingWithClient(t *testing.T) {
	s := startServer(t, true)
	client := dial(t, s)

	pong := make(chan string, 1)
	client.SetPongHandler(func(data string) error {
		pong <- data
		return nil
	})
	closed := make(chan error, 1)
	go func() {
		for {
			if _, _, err := client.ReadMessage(); err != nil {
				closed <- err
				return
			}
		}
	}()

	if err := client.WriteControl(gorilla.PingMessage, []byte("are you there"), time.Now().Add(time.Second)); err != nil {
		t.Fatal(err)
	}
	select {
	case got := <-pong:
		if got != "are you there" {
			t.Errorf("pong payload %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no pong")
	}

	msg := gorilla.FormatCloseMessage(gorilla.CloseNormalClosure, "")
	if err := client.WriteControl(gorilla.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-closed:
		if !gorilla.IsCloseError(err, gorilla.CloseNormalClosure) {
			t.Errorf("read error = %v, want normal closure", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not answer the close frame")
	}
	waitFor(t, func() bool { return s.Connections() == 0 })
}

func TestHandshakeRejected(t *testing.T) {
	s := startServer(t, false)

	tests := []struct {
		name    string
		request string
	}{
		{
			name: "wrong version",
			request: "GET / HTTP/1.1\r\nHost: x\r\nUpgrade: websocket\r\nConnection: Upgrade\r\n" +
				"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\nSec-WebSocket-Version: 12\r\n\r\n",
		},
		{
			name:    "missing key",
			request: "GET / HTTP/1.1\r\nHost: x\r\nSec-WebSocket-Version: 13\r\n\r\n",
		},
		{
			name:    "garbage",
			request: "not http at all\r\n\r\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", s.Port()))
			if err != nil {
				t.Fatal(err)
			}
			defer conn.Close()
			_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

			if _, err := io.WriteString(conn, tt.request); err != nil {
				t.Fatal(err)
			}
			data, _ := io.ReadAll(conn)
			if len(data) != 0 {
				t.Errorf("rejected handshake got a response: %q", data)
			}
		})
	}
	if n := s.Connections(); n != 0 {
		t.Errorf("%d connections registered", n)
	}
}

func TestHandshakeCallRecords(t *testing.T) {
	s := startServer(t, false)
	sub := s.Calls().Subscribe()
	defer sub.Close()

	dial(t, s)
	dial(t, s)

	var completed []diagnostics.CallRecord
	timeout := time.After(2 * time.Second)
	for len(completed) < 2 {
		select {
		case rec := <-sub.C:
			if rec.Connection != diagnostics.ConnectionWebSocket || rec.RequestURL != "/events" {
				t.Errorf("record %+v", rec)
			}
			if rec.Completed() {
				completed = append(completed, rec)
			}
		case <-timeout:
			t.Fatalf("got %d completed records", len(completed))
		}
	}

	for i, rec := range completed {
		if want := int64(-(i + 1)); rec.ID != want {
			t.Errorf("record %d id = %d, want %d", i, rec.ID, want)
		}
		if *rec.ResponseCode != 101 || rec.ResponseData != nil {
			t.Errorf("record %d response = %d %v", i, *rec.ResponseCode, rec.ResponseData)
		}
	}
}
