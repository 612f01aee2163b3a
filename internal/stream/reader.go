package stream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/voltlabs/volt/internal/logging"
	"go.uber.org/zap"
)

const (
	// DefaultBufferSize is the capacity of the working buffer.
	DefaultBufferSize = 262144

	// DefaultLineTimeout bounds every refill performed by a line or
	// delimiter scan.
	DefaultLineTimeout = 15 * time.Second
)

var crlf = []byte("\r\n")

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

// Reader is a buffered byte source over a single connection. It is not safe
// for concurrent use; each connection owns its own Reader.
type Reader struct {
	ctx         context.Context
	src         io.Reader
	buf         []byte
	pos         int
	limit       int
	lineTimeout time.Duration
	deadlineSet bool
}

// Option configures a Reader.
type Option func(*Reader)

// WithBufferSize sets the working buffer capacity.
func WithBufferSize(size int) Option {
	return func(r *Reader) {
		if size > 0 {
			r.buf = make([]byte, size)
		}
	}
}

// WithLineTimeout sets the bound applied to refills during delimiter scans.
// Zero disables the bound.
func WithLineTimeout(d time.Duration) Option {
	return func(r *Reader) {
		r.lineTimeout = d
	}
}

// NewReader creates a Reader over src. Cancelling ctx makes the next refill
// fail with the context error.
func NewReader(ctx context.Context, src io.Reader, opts ...Option) *Reader {
	r := &Reader{
		ctx:         ctx,
		src:         src,
		lineTimeout: DefaultLineTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.buf == nil {
		r.buf = make([]byte, DefaultBufferSize)
	}
	return r
}

// Buffered returns the number of bytes that can be consumed without a refill.
func (r *Reader) Buffered() int {
	return r.limit - r.pos
}

// SetLineTimeout replaces the bound applied to refills during delimiter
// scans.
func (r *Reader) SetLineTimeout(d time.Duration) {
	r.lineTimeout = d
}

// Close closes the underlying source when it is an io.Closer.
func (r *Reader) Close() error {
	if c, ok := r.src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// ReadLine reads up to and including the next CRLF.
func (r *Reader) ReadLine() ([]byte, error) {
	return r.ReadBytesUntil(crlf, true)
}

// ReadBytesUntil returns every byte from the current position up to the first
// occurrence of delim. The delimiter is consumed in both cases; include
// controls whether it is part of the returned slice. The result is a copy and
// stays valid after further reads.
func (r *Reader) ReadBytesUntil(delim []byte, include bool) ([]byte, error) {
	if len(delim) == 0 {
		return nil, errors.New("stream: empty delimiter")
	}

	fallback := prefixTable(delim)
	var acc *bytes.Buffer
	start := r.pos
	matched := 0

	for matched < len(delim) {
		if r.pos >= r.limit {
			if r.pos > start {
				acc = r.accumulate(acc, r.buf[start:r.pos])
			}

			if err := r.fill(r.lineTimeout); err != nil {
				logging.Debug("Cannot complete delimiter scan",
					zap.String("delimiter", fmt.Sprintf("%q", delim)),
					zap.Error(err),
				)
				return nil, err
			}
			start = 0
		}

		b := r.buf[r.pos]
		r.pos++

		for matched > 0 && b != delim[matched] {
			matched = fallback[matched-1]
		}
		if b == delim[matched] {
			matched++
		}
	}

	var out []byte
	if acc == nil {
		out = append([]byte(nil), r.buf[start:r.pos]...)
	} else {
		acc = r.accumulate(acc, r.buf[start:r.pos])
		out = acc.Bytes()
	}

	if !include {
		out = out[:len(out)-len(delim)]
	}
	return out, nil
}

// ReadBytes consumes exactly n bytes.
//
// When sink is nil the bytes are returned, assembled across as many refills as
// needed. Otherwise every chunk is written to sink as it arrives and the
// returned slice is nil. onPartial, if set, observes every consumed chunk in
// both modes; the chunk aliases the working buffer and is only valid for the
// duration of the call. A panic in onPartial is logged and ignored.
//
// timeout bounds the wait for the first chunk only. n <= 0 reads nothing.
func (r *Reader) ReadBytes(n int, timeout time.Duration, sink io.Writer, onPartial func([]byte)) ([]byte, error) {
	if n <= 0 {
		logging.Debug("ReadBytes called with nothing to read", zap.Int("n", n))
		return nil, nil
	}

	var acc *bytes.Buffer
	if sink == nil && n > r.Buffered() {
		acc = new(bytes.Buffer)
		acc.Grow(min(n, len(r.buf)))
	}

	remaining := n
	started := false

	for remaining > 0 {
		if r.pos >= r.limit {
			bound := time.Duration(0)
			if !started {
				bound = timeout
			}
			if err := r.fill(bound); err != nil {
				logging.Debug("Cannot complete bounded read",
					zap.Int("requested", n),
					zap.Int("missing", remaining),
					zap.Error(err),
				)
				return nil, err
			}
		}

		end := min(r.limit, r.pos+remaining)
		chunk := r.buf[r.pos:end]
		r.pos = end
		remaining -= len(chunk)
		started = true

		Observe(onPartial, chunk)

		switch {
		case sink != nil:
			if _, err := sink.Write(chunk); err != nil {
				return nil, fmt.Errorf("failed to write to sink: %w", err)
			}
		case acc == nil:
			// Entire read was already buffered.
			return append([]byte(nil), chunk...), nil
		default:
			r.accumulate(acc, chunk)
		}
	}

	if sink != nil {
		return nil, nil
	}
	return acc.Bytes(), nil
}

// Discard consumes n bytes without materializing them.
func (r *Reader) Discard(n int) error {
	_, err := r.ReadBytes(n, 0, io.Discard, nil)
	return err
}

// Observe calls fn with chunk, logging and discarding any panic so an
// observer can never disturb the read path.
func Observe(fn func([]byte), chunk []byte) {
	if fn == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			logging.Warn("Partial read observer panicked", zap.Any("panic", p))
		}
	}()
	fn(chunk)
}

// accumulate appends p to acc, allocating acc on first use. Capacity grows one
// working-buffer size at a time.
func (r *Reader) accumulate(acc *bytes.Buffer, p []byte) *bytes.Buffer {
	if acc == nil {
		acc = new(bytes.Buffer)
		acc.Grow(len(r.buf))
	}
	if acc.Available() < len(p) {
		acc.Grow(max(len(r.buf), len(p)))
	}
	acc.Write(p)
	return acc
}

// fill replaces the working buffer contents with the next chunk from the
// source. A positive timeout bounds the wait.
func (r *Reader) fill(timeout time.Duration) error {
	if err := r.ctx.Err(); err != nil {
		return err
	}

	if d, ok := r.src.(readDeadliner); ok {
		switch {
		case timeout > 0:
			if err := d.SetReadDeadline(time.Now().Add(timeout)); err != nil {
				return ClassifyReadError(err)
			}
			r.deadlineSet = true
		case r.deadlineSet:
			if err := d.SetReadDeadline(time.Time{}); err != nil {
				return ClassifyReadError(err)
			}
			r.deadlineSet = false
		}
	}

	r.pos, r.limit = 0, 0

	for {
		n, err := r.src.Read(r.buf)
		if n > 0 {
			r.limit = n
			return nil
		}
		if err != nil {
			return ClassifyReadError(err)
		}
		if err := r.ctx.Err(); err != nil {
			return err
		}
	}
}

// prefixTable returns the longest proper prefix-suffix length for every
// prefix of pattern.
func prefixTable(pattern []byte) []int {
	table := make([]int, len(pattern))
	k := 0
	for i := 1; i < len(pattern); i++ {
		for k > 0 && pattern[i] != pattern[k] {
			k = table[k-1]
		}
		if pattern[i] == pattern[k] {
			k++
		}
		table[i] = k
	}
	return table
}
