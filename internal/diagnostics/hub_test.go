package diagnostics

import (
	"bufio"
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"
)

func TestNextIDSequences(t *testing.T) {
	httpHub := NewHub(ConnectionHTTP, 0)
	wsHub := NewHub(ConnectionWebSocket, 0)

	for i := int64(1); i <= 3; i++ {
		if got := httpHub.NextID(); got != i {
			t.Errorf("HTTP NextID() = %d, want %d", got, i)
		}
		if got := wsHub.NextID(); got != -i {
			t.Errorf("WebSocket NextID() = %d, want %d", got, -i)
		}
	}
}

func TestNextIDConcurrentUnique(t *testing.T) {
	hub := NewHub(ConnectionHTTP, 0)
	const workers, perWorker = 8, 200

	var mu sync.Mutex
	seen := make(map[int64]bool)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id := hub.NextID()
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != workers*perWorker {
		t.Errorf("got %d unique ids, want %d", len(seen), workers*perWorker)
	}
	if hub.NextID() != workers*perWorker+1 {
		t.Error("sequence did not advance monotonically")
	}
}

func TestSubscribeReplaysLatest(t *testing.T) {
	hub := NewHub(ConnectionHTTP, 0)
	hub.Publish(CallRecord{ID: 1, RequestURL: "/a"})
	hub.Publish(CallRecord{ID: 2, RequestURL: "/b"})

	sub := hub.Subscribe()
	defer sub.Close()

	select {
	case rec := <-sub.C:
		if rec.ID != 2 {
			t.Errorf("replayed record id = %d, want 2", rec.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("latest record not replayed")
	}

	hub.Publish(CallRecord{ID: 3})
	if rec := <-sub.C; rec.ID != 3 {
		t.Errorf("record id = %d, want 3", rec.ID)
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	hub := NewHub(ConnectionHTTP, 0)
	sub := hub.Subscribe()
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*4; i++ {
			hub.Publish(CallRecord{ID: int64(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
	if hub.Dropped() == 0 {
		t.Error("Dropped() = 0, want lagging deliveries counted")
	}
}

func TestHistoryIsBounded(t *testing.T) {
	hub := NewHub(ConnectionWebSocket, 3)
	for i := 1; i <= 5; i++ {
		hub.Publish(CallRecord{ID: int64(-i)})
	}

	history := hub.History()
	if len(history) != 3 {
		t.Fatalf("len(History()) = %d, want 3", len(history))
	}
	for i, want := range []int64{-3, -4, -5} {
		if history[i].ID != want {
			t.Errorf("History()[%d].ID = %d, want %d", i, history[i].ID, want)
		}
	}
}

func TestWithResponse(t *testing.T) {
	rec := CallRecord{ID: 7, RequestTime: time.Now(), RequestType: "GET", RequestURL: "/x", Connection: ConnectionHTTP}
	if rec.Completed() {
		t.Fatal("fresh record reported completed")
	}

	data := "ok"
	done := rec.WithResponse(200, &data)
	if !done.Completed() || *done.ResponseCode != 200 || *done.ResponseData != "ok" {
		t.Errorf("WithResponse() = %+v", done)
	}
	if rec.Completed() {
		t.Error("WithResponse mutated the original record")
	}
	if !done.Equal(rec, true) {
		t.Error("lazy Equal should match on id")
	}
	if done.Equal(rec, false) {
		t.Error("strict Equal should see the response difference")
	}
	if done.Latency() < 0 {
		t.Errorf("Latency() = %v", done.Latency())
	}
}

func TestRecorderWritesJSONLines(t *testing.T) {
	dir := t.TempDir()
	rec, err := NewRecorder(dir)
	if err != nil {
		t.Fatalf("NewRecorder() error = %v", err)
	}

	hub := NewHub(ConnectionHTTP, 0)
	rec.Attach(hub)
	hub.Publish(CallRecord{ID: 1, RequestURL: "/one", Connection: ConnectionHTTP})
	hub.Publish(CallRecord{ID: 2, RequestURL: "/two", Connection: ConnectionHTTP})

	// Wait for the writer goroutine to drain the subscription.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		data, _ := os.ReadFile(rec.Path())
		if len(data) > 0 && countLines(data) == 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	f, err := os.Open(rec.Path())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	var ids []int64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var got CallRecord
		if err := json.Unmarshal(scanner.Bytes(), &got); err != nil {
			t.Fatalf("invalid JSON line %q: %v", scanner.Text(), err)
		}
		ids = append(ids, got.ID)
	}
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 2 {
		t.Errorf("recorded ids = %v, want [1 2]", ids)
	}
}

func TestNewRecorderRejectsFile(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "not-a-dir")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	if _, err := NewRecorder(f.Name()); err == nil {
		t.Error("NewRecorder() on a file should fail")
	}
}

func countLines(data []byte) int {
	n := 0
	for _, b := range data {
		if b == '\n' {
			n++
		}
	}
	return n
}
