package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
)

var (
	// ErrStreamClosed is returned when the source ends before a bounded read
	// or delimiter scan is satisfied.
	ErrStreamClosed = errors.New("stream closed")

	// ErrReadTimeout is returned when no bytes arrive within the read bound.
	ErrReadTimeout = errors.New("read timeout")
)

// ClassifyReadError maps an error returned by the underlying source onto the
// stream error taxonomy. Context errors are passed through untouched.
func ClassifyReadError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, ErrStreamClosed) || errors.Is(err, ErrReadTimeout) {
		return err
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	if errors.Is(err, os.ErrDeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrReadTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", ErrReadTimeout, err)
	}

	if errors.Is(err, io.EOF) {
		return ErrStreamClosed
	}

	return fmt.Errorf("%w: %w", ErrStreamClosed, err)
}

// IsTimeout reports whether err is a read timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrReadTimeout)
}
