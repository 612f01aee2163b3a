package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/voltlabs/volt/internal/web"
)

type fakeBroadcaster struct {
	mu       sync.Mutex
	messages []string
}

func (f *fakeBroadcaster) BroadcastMessage(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, text)
}

func (f *fakeBroadcaster) Connections() int { return 2 }

func (f *fakeBroadcaster) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.messages...)
}

type testServer struct {
	api     *API
	baseURL string
	bc      *fakeBroadcaster
	dir     string
}

func newTestServer(t *testing.T, withBroadcaster bool) *testServer {
	t.Helper()
	ts := &testServer{dir: t.TempDir()}
	opts := Options{UploadDir: ts.dir}
	if withBroadcaster {
		ts.bc = &fakeBroadcaster{}
		opts.Broadcaster = ts.bc
	}
	ts.api = New(opts)

	rt := web.NewRouter()
	ts.api.Register(rt)
	srv := web.NewHTTPServer(rt, &web.Config{Host: "127.0.0.1", LineTimeout: 2 * time.Second})
	if err := srv.Start(0); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = srv.Stop(context.Background()) })
	ts.baseURL = fmt.Sprintf("http://127.0.0.1:%d", srv.Port())
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, contentType string, body []byte) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, ts.baseURL+path, bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("decode %q: %v", data, err)
	}
	return v
}

func TestItemLifecycle(t *testing.T) {
	ts := newTestServer(t, false)

	code, body := ts.do(t, "POST", "/items", "application/json", []byte(`{"name":"lamp","quantity":3}`))
	if code != 201 {
		t.Fatalf("create = %d %s", code, body)
	}
	created := decode[Item](t, body)
	if created.ID != 1 || created.Name != "lamp" || created.Quantity != 3 {
		t.Errorf("created %+v", created)
	}

	ts.do(t, "POST", "/items", "application/json", []byte(`{"name":"desk","quantity":1}`))

	code, body = ts.do(t, "GET", "/items?name=DE", "", nil)
	if list := decode[[]Item](t, body); code != 200 || len(list) != 1 || list[0].Name != "desk" {
		t.Errorf("filtered list = %d %s", code, body)
	}

	code, body = ts.do(t, "PUT", "/items/1", "application/json", []byte(`{"name":"lamp","quantity":5}`))
	if updated := decode[Item](t, body); code != 200 || updated.Quantity != 5 {
		t.Errorf("update = %d %s", code, body)
	}

	code, body = ts.do(t, "GET", "/items/1", "", nil)
	if got := decode[Item](t, body); code != 200 || got.Quantity != 5 {
		t.Errorf("get = %d %s", code, body)
	}

	if code, body = ts.do(t, "DELETE", "/items/1", "", nil); code != 204 {
		t.Errorf("delete = %d %s", code, body)
	}
	if ts.api.Items().Len() != 1 {
		t.Errorf("store has %d items, want 1", ts.api.Items().Len())
	}
}

func TestItemRejections(t *testing.T) {
	ts := newTestServer(t, false)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		code   int
	}{
		{"missing item", "GET", "/items/99", "", CodeItemNotFound},
		{"bad id", "GET", "/items/abc", "", CodeInvalidItem},
		{"bad json", "POST", "/items", `{"name":`, CodeInvalidItem},
		{"empty name", "POST", "/items", `{"name":"  ","quantity":1}`, CodeInvalidItem},
		{"negative quantity", "POST", "/items", `{"name":"x","quantity":-1}`, CodeInvalidItem},
		{"delete missing", "DELETE", "/items/5", "", CodeItemNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := ts.do(t, tt.method, tt.path, "application/json", []byte(tt.body))
			if status != 403 {
				t.Fatalf("status = %d, want 403 (%s)", status, body)
			}
			routeErr := decode[web.RouteError](t, body)
			if routeErr.Code != tt.code || routeErr.Message == "" {
				t.Errorf("route error = %+v, want code %d", routeErr, tt.code)
			}
		})
	}
}

func TestStatusAndEcho(t *testing.T) {
	ts := newTestServer(t, true)

	code, body := ts.do(t, "GET", "/status", "", nil)
	st := decode[Status](t, body)
	if code != 200 || st.Version == "" || st.WebSocketClients != 2 {
		t.Errorf("status = %d %s", code, body)
	}

	if code, body = ts.do(t, "POST", "/echo", "text/plain", []byte("ping")); code != 200 || string(body) != "ping" {
		t.Errorf("echo = %d %q", code, body)
	}
	if code, body = ts.do(t, "POST", "/echo", "application/json", []byte(`{"a":1}`)); code != 200 || string(body) != `{"a":1}` {
		t.Errorf("json echo = %d %q", code, body)
	}
}

func TestUploadAndSnapshot(t *testing.T) {
	ts := newTestServer(t, false)

	fileData := bytes.Repeat([]byte("volt\r\n--not-a-boundary\r\n"), 4000)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("note", "first upload"); err != nil {
		t.Fatal(err)
	}
	fw, err := mw.CreateFormFile("file", "../data.bin")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write(fileData)
	mw.Close()

	code, body := ts.do(t, "POST", "/upload", mw.FormDataContentType(), buf.Bytes())
	if code != 201 {
		t.Fatalf("upload = %d %s", code, body)
	}
	result := decode[uploadResult](t, body)
	if result.Fields["note"] != "first upload" {
		t.Errorf("fields = %v", result.Fields)
	}
	if len(result.Files) != 1 || result.Files[0].FileName != "data.bin" || result.Files[0].Size != int64(len(fileData)) {
		t.Fatalf("files = %+v", result.Files)
	}
	stored, err := os.ReadFile(filepath.Join(ts.dir, "data.bin"))
	if err != nil || !bytes.Equal(stored, fileData) {
		t.Fatalf("stored file differs (%d bytes, %v)", len(stored), err)
	}

	req, _ := http.NewRequest("GET", ts.baseURL+"/snapshot", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	_, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		t.Fatal(err)
	}
	mr := multipart.NewReader(resp.Body, params["boundary"])
	var types []string
	var last []byte
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		types = append(types, part.Header.Get("Content-Type"))
		last, _ = io.ReadAll(part)
	}
	want := "application/json,application/json,text/plain,application/octet-stream"
	if strings.Join(types, ",") != want {
		t.Errorf("section types = %v", types)
	}
	if !bytes.Equal(last, fileData) {
		t.Errorf("binary section is %d bytes, want %d", len(last), len(fileData))
	}
}

func TestUploadRequiresMultipart(t *testing.T) {
	ts := newTestServer(t, false)
	code, body := ts.do(t, "POST", "/upload", "text/plain", []byte("x"))
	if code != 403 || decode[web.RouteError](t, body).Code != CodeNotMultipart {
		t.Errorf("upload = %d %s", code, body)
	}
}

func TestBroadcast(t *testing.T) {
	ts := newTestServer(t, true)

	code, body := ts.do(t, "POST", "/broadcast", "text/plain", []byte("hello clients"))
	if code != 200 {
		t.Fatalf("broadcast = %d %s", code, body)
	}
	if res := decode[broadcastResult](t, body); res.Clients != 2 || res.Bytes != 13 {
		t.Errorf("result = %+v", res)
	}
	if sent := ts.bc.sent(); len(sent) != 1 || sent[0] != "hello clients" {
		t.Errorf("messages = %v", sent)
	}

	if code, body = ts.do(t, "POST", "/broadcast", "text/plain", nil); code != 403 {
		t.Errorf("empty broadcast = %d %s", code, body)
	}

	noWS := newTestServer(t, false)
	code, body = noWS.do(t, "POST", "/broadcast", "text/plain", []byte("x"))
	if code != 403 || decode[web.RouteError](t, body).Code != CodeNoBroadcaster {
		t.Errorf("broadcast without websocket = %d %s", code, body)
	}
}

func TestItemStore(t *testing.T) {
	s := NewItemStore()
	a := s.Create("a", 1)
	b := s.Create("b", 2)
	if a.ID != 1 || b.ID != 2 {
		t.Fatalf("ids %d %d", a.ID, b.ID)
	}
	if _, ok := s.Update(3, "c", 0); ok {
		t.Error("Update of a missing item succeeded")
	}
	s.Delete(1)
	c := s.Create("c", 3)
	if c.ID != 3 {
		t.Errorf("ids are reused: %d", c.ID)
	}
	list := s.List()
	if len(list) != 2 || list[0].ID != 2 || list[1].ID != 3 {
		t.Errorf("List() = %+v", list)
	}
}
