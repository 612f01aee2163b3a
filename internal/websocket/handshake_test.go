package websocket

import (
	"bufio"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/voltlabs/volt/internal/web"
)

func TestAcceptToken(t *testing.T) {
	if got := AcceptToken("dGhlIHNhbXBsZSBub25jZQ=="); got != "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=" {
		t.Errorf("AcceptToken = %q", got)
	}
}

func TestCheckUpgrade(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		wantKey string
		wantErr error
	}{
		{
			name:    "valid",
			headers: map[string]string{"Sec-WebSocket-Version": "13", "Sec-WebSocket-Key": "abc=="},
			wantKey: "abc==",
		},
		{
			name:    "old version",
			headers: map[string]string{"Sec-WebSocket-Version": "8", "Sec-WebSocket-Key": "abc=="},
			wantErr: ErrUnsupportedVersion,
		},
		{
			name:    "no version",
			headers: map[string]string{"Sec-WebSocket-Key": "abc=="},
			wantErr: ErrUnsupportedVersion,
		},
		{
			name:    "no key",
			headers: map[string]string{"Sec-WebSocket-Version": "13"},
			wantErr: ErrMissingKey,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := web.Header{}
			for k, v := range tt.headers {
				h.Set(k, v)
			}
			key, err := checkUpgrade(h)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if key != tt.wantKey {
				t.Errorf("key = %q, want %q", key, tt.wantKey)
			}
		})
	}
}

func TestWriteUpgrade(t *testing.T) {
	var b strings.Builder
	if err := writeUpgrade(&b, "dGhlIHNhbXBsZSBub25jZQ=="); err != nil {
		t.Fatal(err)
	}

	resp, err := http.ReadResponse(bufio.NewReader(strings.NewReader(b.String())), nil)
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	if resp.StatusCode != 101 {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Sec-WebSocket-Accept"); got != "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=" {
		t.Errorf("Sec-WebSocket-Accept = %q", got)
	}
	if got := resp.Header.Get("Upgrade"); got != "websocket" {
		t.Errorf("Upgrade = %q", got)
	}
	if !strings.HasSuffix(b.String(), "\r\n\r\n") {
		t.Error("response head not terminated by an empty line")
	}
}
