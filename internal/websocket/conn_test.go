package websocket

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/voltlabs/volt/internal/stream"
)

// pipeConn starts a Conn on one end of a net.Pipe and returns the other end.
func pipeConn(t *testing.T, strict bool) (*Conn, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	reader := stream.NewReader(context.Background(), server, stream.WithBufferSize(1024))
	c := newConn(server, reader, strict, 50*time.Millisecond)
	go c.serve(context.Background())

	t.Cleanup(func() {
		_ = client.Close()
		c.Close()
	})
	_ = client.SetDeadline(time.Now().Add(5 * time.Second))
	return c, client
}

func readN(t *testing.T, r io.Reader, n int) []byte {
	t.Helper()
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		t.Fatalf("read %d bytes: %v", n, err)
	}
	return buf
}

func TestPingPongMinimal(t *testing.T) {
	tests := []struct {
		name string
		ping []byte
		pong []byte
	}{
		{"empty ping", []byte{0x89, 0x00}, []byte{0x8A, 0x00}},
		{"length echoed", []byte{0x89, 0x05}, []byte{0x8A, 0x05}},
		{"mask bit dropped", []byte{0x89, 0x83}, []byte{0x8A, 0x03}},
		{"extended marker", []byte{0x89, 0x7E}, []byte{0x8A, 0x7E}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, client := pipeConn(t, false)

			// Wait past one idle timeout so the ping arrives on a re-armed read.
			time.Sleep(80 * time.Millisecond)
			if _, err := client.Write(tt.ping); err != nil {
				t.Fatal(err)
			}
			if got := readN(t, client, 2); !bytes.Equal(got, tt.pong) {
				t.Errorf("pong = % X, want % X", got, tt.pong)
			}
		})
	}
}

func TestNonPingIgnoredMinimal(t *testing.T) {
	c, client := pipeConn(t, false)

	if _, err := client.Write([]byte{0x81, 0x00, 0x89, 0x00}); err != nil {
		t.Fatal(err)
	}
	if got := readN(t, client, 2); !bytes.Equal(got, []byte{0x8A, 0x00}) {
		t.Errorf("reply = % X, want only the pong", got)
	}
	if c.Status() != StatusConnected {
		t.Error("connection dropped after a text frame")
	}
}

func TestStrictPingClose(t *testing.T) {
	c, client := pipeConn(t, true)

	key := [4]byte{1, 2, 3, 4}
	ping := []byte{0x89, 0x84, key[0], key[1], key[2], key[3]}
	for i, b := range []byte("ping") {
		ping = append(ping, b^key[i%4])
	}
	if _, err := client.Write(ping); err != nil {
		t.Fatal(err)
	}
	if got := readN(t, client, 6); !bytes.Equal(got, []byte{0x8A, 0x04, 'p', 'i', 'n', 'g'}) {
		t.Errorf("pong = % X", got)
	}

	closeFrame := []byte{0x88, 0x82, 0, 0, 0, 0, 0x03, 0xE8}
	if _, err := client.Write(closeFrame); err != nil {
		t.Fatal(err)
	}
	if got := readN(t, client, 4); !bytes.Equal(got, []byte{0x88, 0x02, 0x03, 0xE8}) {
		t.Errorf("close reply = % X", got)
	}

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("connection not closed after close handshake")
	}
}

func TestSendFragmentsOverPipe(t *testing.T) {
	c, client := pipeConn(t, false)
	payload := bytes.Repeat([]byte{0xAB}, MaxFramePayload+10)

	errc := make(chan error, 1)
	go func() { errc <- c.Send(payload, true) }()

	r := stream.NewReader(context.Background(), client)
	first, err := ReadFrame(r, 0)
	if err != nil {
		t.Fatal(err)
	}
	second, err := ReadFrame(r, 0)
	if err != nil {
		t.Fatal(err)
	}
	if first.FIN || first.Opcode != OpcodeBinary || len(first.Payload) != MaxFramePayload {
		t.Errorf("first frame = %s", first)
	}
	if !second.FIN || second.Opcode != OpcodeContinuation || len(second.Payload) != 10 {
		t.Errorf("second frame = %s", second)
	}
	if err := <-errc; err != nil {
		t.Errorf("Send: %v", err)
	}
}

func TestSendAfterDisconnect(t *testing.T) {
	c, client := pipeConn(t, false)
	_ = client.Close()

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("peer close not detected")
	}
	if c.Status() != StatusDisconnected {
		t.Errorf("status = %s", c.Status())
	}
	if err := c.SendText("late"); !errors.Is(err, ErrDisconnected) {
		t.Errorf("Send error = %v, want ErrDisconnected", err)
	}
}

func TestWriteFailureDisconnects(t *testing.T) {
	server, client := net.Pipe()
	c := newConn(server, stream.NewReader(context.Background(), server), false, time.Second)
	_ = client.Close()

	if err := c.SendText("x"); err == nil {
		t.Fatal("Send on a broken pipe succeeded")
	}
	if c.Status() != StatusDisconnected {
		t.Errorf("status = %s, want DISCONNECTED", c.Status())
	}
}
