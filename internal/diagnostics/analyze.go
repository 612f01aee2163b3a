package diagnostics

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"
)

const maxRecordLine = 1 << 20

// Summary aggregates a JSON-lines capture written by Recorder. A record
// captured both pending and completed is counted once, in its last form.
type Summary struct {
	Records    int
	Pending    int
	Malformed  []int // line numbers that could not be decoded
	ByKind     map[ConnectionType]int
	ByStatus   map[int]int
	ByURL      map[string]int
	MaxLatency time.Duration
	AvgLatency time.Duration
	First      time.Time
	Last       time.Time
}

// URLCount is one entry of Summary.TopURLs.
type URLCount struct {
	URL   string
	Count int
}

type recordKey struct {
	kind ConnectionType
	id   int64
}

// Analyze reads a capture and summarizes it. Lines that are not call
// records are reported in Malformed and otherwise skipped.
func Analyze(r io.Reader) (*Summary, error) {
	latest := make(map[recordKey]CallRecord)
	var order []recordKey
	var malformed []int

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxRecordLine)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var rec CallRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil || rec.Connection == "" {
			malformed = append(malformed, line)
			continue
		}
		k := recordKey{kind: rec.Connection, id: rec.ID}
		if _, seen := latest[k]; !seen {
			order = append(order, k)
		}
		latest[k] = rec
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read capture: %w", err)
	}

	s := &Summary{
		Malformed: malformed,
		ByKind:    make(map[ConnectionType]int),
		ByStatus:  make(map[int]int),
		ByURL:     make(map[string]int),
	}
	var total time.Duration
	completed := 0
	for _, k := range order {
		rec := latest[k]
		s.Records++
		s.ByKind[rec.Connection]++
		s.ByURL[rec.RequestURL]++
		if s.First.IsZero() || rec.RequestTime.Before(s.First) {
			s.First = rec.RequestTime
		}
		if rec.RequestTime.After(s.Last) {
			s.Last = rec.RequestTime
		}
		if !rec.Completed() {
			s.Pending++
			continue
		}
		s.ByStatus[*rec.ResponseCode]++
		latency := rec.Latency()
		total += latency
		completed++
		s.MaxLatency = max(s.MaxLatency, latency)
	}
	if completed > 0 {
		s.AvgLatency = total / time.Duration(completed)
	}
	return s, nil
}

// TopURLs returns the n most requested URLs, most frequent first.
func (s *Summary) TopURLs(n int) []URLCount {
	out := make([]URLCount, 0, len(s.ByURL))
	for url, count := range s.ByURL {
		out = append(out, URLCount{URL: url, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].URL < out[j].URL
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Statuses returns the response codes seen, in ascending order.
func (s *Summary) Statuses() []int {
	codes := make([]int, 0, len(s.ByStatus))
	for code := range s.ByStatus {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	return codes
}
