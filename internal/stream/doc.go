// Package stream implements the buffered byte source every volt connection
// reads from.
//
// A Reader owns one fixed-capacity working buffer and refills it from the
// underlying socket on demand. On top of that it offers the three primitives
// the wire codecs need:
//
//   - ReadBytesUntil / ReadLine: scan for a delimiter, possibly across refills
//   - ReadBytes: exactly n bytes, either materialized or streamed to a sink
//   - onPartial hooks that observe every consumed chunk
//
// Reads that span more than one refill are assembled in an accumulation
// buffer that grows one working-buffer capacity at a time, so assembling a
// large body is linear in its size.
//
// # Timeouts
//
// Line and header scans bound every refill with the reader's line timeout.
// Length-bound reads only bound the wait for their first chunk: once the peer
// has started sending a body of known length the rest of it is read without a
// deadline. Timeouts are implemented with SetReadDeadline, so they apply to
// any net.Conn; sources without deadlines are read unbounded.
//
// # Errors
//
// ErrReadTimeout (slow peer) and ErrStreamClosed (dead peer) are distinct so
// callers can tell them apart with errors.Is.
package stream
