package diagnostics

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func captureOf(t *testing.T, recs ...CallRecord) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	for _, rec := range recs {
		data, err := json.Marshal(rec)
		if err != nil {
			t.Fatal(err)
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}
	return &buf
}

func TestAnalyze(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	done := func(rec CallRecord, code int, after time.Duration) CallRecord {
		rec = rec.WithResponse(code, nil)
		rt := rec.RequestTime.Add(after)
		rec.ResponseTime = &rt
		return rec
	}

	a := CallRecord{ID: 1, RequestTime: base, RequestURL: "/items", RequestType: "GET", Connection: ConnectionHTTP}
	b := CallRecord{ID: 2, RequestTime: base.Add(time.Second), RequestURL: "/items", RequestType: "GET", Connection: ConnectionHTTP}
	c := CallRecord{ID: 3, RequestTime: base.Add(2 * time.Second), RequestURL: "/missing", RequestType: "GET", Connection: ConnectionHTTP}
	ws := CallRecord{ID: -1, RequestTime: base.Add(3 * time.Second), RequestURL: "/", RequestType: "GET", Connection: ConnectionWebSocket}

	buf := captureOf(t,
		a, b, done(a, 200, 10*time.Millisecond),
		c, done(c, 404, 30*time.Millisecond),
		ws, done(ws, 101, 20*time.Millisecond),
	)
	buf.WriteString("not json\n\n")

	s, err := Analyze(buf)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if s.Records != 4 {
		t.Errorf("Records = %d, want 4", s.Records)
	}
	if s.Pending != 1 {
		t.Errorf("Pending = %d, want 1", s.Pending)
	}
	if s.ByKind[ConnectionHTTP] != 3 || s.ByKind[ConnectionWebSocket] != 1 {
		t.Errorf("ByKind = %v", s.ByKind)
	}
	if got := s.Statuses(); len(got) != 3 || got[0] != 101 || got[2] != 404 {
		t.Errorf("Statuses = %v", got)
	}
	if s.MaxLatency != 30*time.Millisecond || s.AvgLatency != 20*time.Millisecond {
		t.Errorf("latency max=%v avg=%v", s.MaxLatency, s.AvgLatency)
	}
	if !s.First.Equal(base) || !s.Last.Equal(base.Add(3*time.Second)) {
		t.Errorf("span = %v..%v", s.First, s.Last)
	}
	if len(s.Malformed) != 1 || s.Malformed[0] != 8 {
		t.Errorf("Malformed = %v, want [8]", s.Malformed)
	}

	top := s.TopURLs(1)
	if len(top) != 1 || top[0].URL != "/items" || top[0].Count != 2 {
		t.Errorf("TopURLs = %+v", top)
	}
}

func TestAnalyzeEmpty(t *testing.T) {
	s, err := Analyze(strings.NewReader(""))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if s.Records != 0 || s.AvgLatency != 0 || len(s.TopURLs(-1)) != 0 {
		t.Errorf("unexpected summary %+v", s)
	}
}
