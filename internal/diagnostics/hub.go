package diagnostics

import (
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
	"github.com/voltlabs/volt/internal/logging"
	"go.uber.org/zap"
)

const (
	// DefaultHistorySize is the number of records a Hub retains.
	DefaultHistorySize = 256

	subscriberBuffer = 64
)

// Hub is a single-producer, multi-consumer broadcast of call records with
// last-value replay.
type Hub struct {
	kind ConnectionType
	seq  atomic.Int64

	mu          sync.Mutex
	latest      *CallRecord
	history     *queue.Queue
	historySize int
	subs        map[*Subscription]struct{}
	dropped     uint64
}

// Subscription receives records published after (and the one published
// immediately before) Subscribe.
type Subscription struct {
	C <-chan CallRecord

	ch   chan CallRecord
	hub  *Hub
	once sync.Once
}

// NewHub creates a Hub for kind retaining historySize records. A
// non-positive size uses DefaultHistorySize.
func NewHub(kind ConnectionType, historySize int) *Hub {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	return &Hub{
		kind:        kind,
		history:     queue.New(),
		historySize: historySize,
		subs:        make(map[*Subscription]struct{}),
	}
}

// Kind returns the connection type the hub issues ids for.
func (h *Hub) Kind() ConnectionType {
	return h.kind
}

// NextID returns the next record id: increasing for HTTP, decreasing for
// WebSocket.
func (h *Hub) NextID() int64 {
	if h.kind == ConnectionWebSocket {
		return h.seq.Add(-1)
	}
	return h.seq.Add(1)
}

// Publish records rec as the latest value and delivers it to every
// subscriber that has room. It never blocks on a subscriber.
func (h *Hub) Publish(rec CallRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.latest = &rec
	h.history.Add(rec)
	for h.history.Length() > h.historySize {
		h.history.Remove()
	}

	for sub := range h.subs {
		select {
		case sub.ch <- rec:
		default:
			h.dropped++
			logging.Debug("Diagnostics subscriber lagging, record dropped",
				zap.Int64("id", rec.ID),
				zap.Uint64("dropped_total", h.dropped),
			)
		}
	}
}

// Latest returns the most recently published record.
func (h *Hub) Latest() (CallRecord, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.latest == nil {
		return CallRecord{}, false
	}
	return *h.latest, true
}

// History returns the retained records, oldest first.
func (h *Hub) History() []CallRecord {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]CallRecord, 0, h.history.Length())
	for i := 0; i < h.history.Length(); i++ {
		out = append(out, h.history.Get(i).(CallRecord))
	}
	return out
}

// Dropped returns how many deliveries were skipped because a subscriber was
// full.
func (h *Hub) Dropped() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

// Subscribe registers a new subscriber. The latest record, if any, is
// delivered first.
func (h *Hub) Subscribe() *Subscription {
	ch := make(chan CallRecord, subscriberBuffer)
	sub := &Subscription{C: ch, ch: ch, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.latest != nil {
		ch <- *h.latest
	}
	h.subs[sub] = struct{}{}
	return sub
}

// Close unregisters the subscription and closes its channel.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs, s)
		s.hub.mu.Unlock()
		close(s.ch)
	})
}
