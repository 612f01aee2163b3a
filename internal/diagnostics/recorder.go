package diagnostics

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/voltlabs/volt/internal/logging"
	"go.uber.org/zap"
)

// Recorder appends every record from the attached hubs to a JSON Lines file,
// one object per line.
type Recorder struct {
	path string
	file *os.File
	subs []*Subscription
	wg   sync.WaitGroup
	mu   sync.Mutex
}

// NewRecorder creates calls-<timestamp>.jsonl inside dir. dir must exist.
func NewRecorder(dir string) (*Recorder, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot access record directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("record path is not a directory: %s", dir)
	}

	path := filepath.Join(dir, fmt.Sprintf("calls-%s.jsonl", time.Now().Format("20060102-150405")))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open record file: %w", err)
	}

	return &Recorder{path: path, file: f}, nil
}

// Path returns the file records are written to.
func (r *Recorder) Path() string {
	return r.path
}

// Attach starts recording everything published on hub.
func (r *Recorder) Attach(hub *Hub) {
	sub := hub.Subscribe()
	r.subs = append(r.subs, sub)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for rec := range sub.C {
			r.write(rec)
		}
	}()
}

// Close detaches from all hubs, waits for pending writes and closes the file.
func (r *Recorder) Close() error {
	for _, sub := range r.subs {
		sub.Close()
	}
	r.wg.Wait()
	return r.file.Close()
}

func (r *Recorder) write(rec CallRecord) {
	data, err := json.Marshal(rec)
	if err != nil {
		logging.Error("Failed to marshal call record", zap.Error(err))
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.file.Write(append(data, '\n')); err != nil {
		logging.Error("Failed to write call record",
			zap.String("filename", r.path),
			zap.Error(err),
		)
	}
}
